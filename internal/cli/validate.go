package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cgast/examiner/pkg/exam"
)

var validateCmd = &cobra.Command{
	Use:   "validate <exam.yml>...",
	Short: "Check exam files for structural problems",
	Long: `Load each exam file and report problems that would make grading
meaningless, such as checks aimed at hosts the exam does not define.

Exits 1 when any file is invalid.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		invalid := 0
		for _, path := range args {
			e, err := exam.LoadExam(path)
			if err != nil {
				failColor.Fprint(w, "FAIL")
				fmt.Fprintf(w, " %s\n       %v\n", path, err)
				invalid++
				continue
			}
			res := exam.ValidateExam(e)
			if res.Valid() {
				passColor.Fprint(w, "OK  ")
				fmt.Fprintf(w, " %s (%s, %d tasks, %.0f points)\n", path, e.ID, len(e.Tasks), e.TotalPoints())
				continue
			}
			failColor.Fprint(w, "FAIL")
			fmt.Fprintf(w, " %s\n", path)
			for _, ve := range res.Errors {
				fmt.Fprintf(w, "       %s\n", ve.Error())
			}
			invalid++
		}
		if invalid > 0 {
			return &exitError{code: ExitBelow, err: fmt.Errorf("%d of %d exam files invalid", invalid, len(args))}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
