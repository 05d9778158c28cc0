package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cgast/examiner/pkg/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [exam-id]",
	Short: "Show recorded grading runs",
	Long: `Without an argument, list the exams that have recorded runs. With an
exam id, list that exam's runs, newest last.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fatal(err)
		}
		if !cfg.History.Enabled {
			return fatal(errors.New("history is disabled in the config"))
		}
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return fatal(err)
		}
		defer store.Close()

		w := cmd.OutOrStdout()
		if len(args) == 0 {
			ids, err := store.Exams()
			if err != nil {
				return fatal(err)
			}
			if len(ids) == 0 {
				fmt.Fprintln(w, "No runs recorded")
			}
			for _, id := range ids {
				fmt.Fprintln(w, id)
			}
			return nil
		}

		runs, err := store.List(args[0])
		if err != nil {
			return fatal(err)
		}
		if len(runs) == 0 {
			fmt.Fprintf(w, "No runs recorded for %s\n", args[0])
			return nil
		}
		if historyLimit > 0 && len(runs) > historyLimit {
			runs = runs[len(runs)-historyLimit:]
		}

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "STARTED\tSCOPE\tTASK\tSCORE\tCHECKS")
		for _, r := range runs {
			task := r.TaskID
			if task == "" {
				task = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f/%.1f (%.0f%%)\t%d\n",
				r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Scope, task, r.Earned, r.Total, r.Score, len(r.Checks))
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Show at most this many runs (0 = all)")
}
