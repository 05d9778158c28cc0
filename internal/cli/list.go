package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cgast/examiner/pkg/exam"
)

var listCmd = &cobra.Command{
	Use:   "list [dir]",
	Short: "List the exams in a directory",
	Long:  `List the exam files in dir, or in the configured exams directory.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := ""
		if len(args) > 0 {
			dir = args[0]
		} else {
			cfg, err := loadConfig()
			if err != nil {
				return fatal(err)
			}
			dir = cfg.ExamsDir
		}

		infos, err := exam.DiscoverExams(dir)
		if err != nil {
			return fatal(err)
		}
		if len(infos) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No exam files found in %s\n", dir)
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tPATH")
		for _, info := range infos {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", info.ID, info.Title, info.Path)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
