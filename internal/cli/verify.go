package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cgast/examiner/pkg/exam"
	"github.com/cgast/examiner/pkg/verify"
)

var (
	verifyTasks []string
	verifyJSON  bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify [exam.yml]",
	Short: "Run the exam's checks once and print the grade",
	Long: `Run checks against the lab machines and print the grade.

By default every task is verified in order. Use --task to verify only some
tasks; the score then counts the other tasks as not started.

Examples:
  examiner verify exams/rhce-1.yml
  examiner verify exams/rhce-1.yml --task 3 --task 4
  examiner verify --json > grade.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(args, false)
		if err != nil {
			return fatal(err)
		}
		defer s.Close()

		var tasks []*exam.Task
		for _, id := range verifyTasks {
			t := s.exam.Task(id)
			if t == nil {
				return fatal(fmt.Errorf("unknown task %q", id))
			}
			tasks = append(tasks, t)
		}

		ctx, cancel := signalContext()
		defer cancel()

		if len(tasks) == 0 {
			err = s.runner.VerifyAll(ctx)
		} else {
			for _, t := range tasks {
				if err = s.runner.VerifyTask(ctx, t); err != nil {
					break
				}
			}
		}
		if err != nil {
			if verify.IsDefinitional(err) {
				return fatal(fmt.Errorf("exam definition is broken: %w", err))
			}
			return fatal(err)
		}

		sum := exam.Summarize(s.exam)
		if verifyJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(sum); err != nil {
				return fatal(err)
			}
		} else {
			printSummary(cmd.OutOrStdout(), s.exam, sum)
		}
		return gradeExit(sum)
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringArrayVar(&verifyTasks, "task", nil, "Verify only this task id (repeatable)")
	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "Print the graded summary as JSON")
}
