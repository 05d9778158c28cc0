package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cgast/examiner/pkg/exam"
	"github.com/cgast/examiner/pkg/verify"
)

var (
	exportPublish  bool
	exportNoVerify bool
)

var exportCmd = &cobra.Command{
	Use:   "export [exam.yml]",
	Short: "Grade the exam and write a markdown grade report",
	Long: `Verify every task, then write a markdown grade report to the results
directory. The report includes the student's playbooks from the control node
and, when the exam declares one, the reference solutions.

With --publish the report is also filed as an issue in github.repo using
github.token from the config file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(args, false)
		if err != nil {
			return fatal(err)
		}
		defer s.Close()

		ctx, cancel := signalContext()
		defer cancel()

		if !exportNoVerify {
			if err := s.runner.VerifyAll(ctx); err != nil {
				if verify.IsDefinitional(err) {
					return fatal(fmt.Errorf("exam definition is broken: %w", err))
				}
				return fatal(err)
			}
		}

		w := cmd.OutOrStdout()
		if exportPublish {
			pub, err := s.publisher()
			if err != nil {
				return fatal(err)
			}
			path, url, err := s.exporter.ExportAndPublish(ctx, s.exam, pub)
			if path != "" {
				fmt.Fprintf(w, "Report saved: %s\n", path)
			}
			if err != nil {
				return fatal(err)
			}
			fmt.Fprintf(w, "Report published: %s\n", url)
		} else {
			path, err := s.exporter.Export(ctx, s.exam)
			if err != nil {
				return fatal(err)
			}
			fmt.Fprintf(w, "Report saved: %s\n", path)
		}

		sum := exam.Summarize(s.exam)
		fmt.Fprintf(w, "Score: %.1f/%.1f (%.0f%%)\n", sum.Earned, sum.Total, sum.Score)
		return gradeExit(sum)
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().BoolVar(&exportPublish, "publish", false, "Also file the report as a GitHub issue")
	exportCmd.Flags().BoolVar(&exportNoVerify, "no-verify", false, "Export without running the checks first")
}
