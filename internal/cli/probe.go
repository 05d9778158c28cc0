package cli

import (
	"github.com/spf13/cobra"

	"github.com/cgast/examiner/pkg/verify"
)

var probeHosts []string

var probeCmd = &cobra.Command{
	Use:   "probe [exam.yml]",
	Short: "Check SSH connectivity to the lab machines",
	Long: `Connect to every lab machine declared by the exam and run a trivial
command on it.

Exits 0 when every host answered and 2 otherwise.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(args, false)
		if err != nil {
			return fatal(err)
		}
		defer s.Close()

		targets, err := verify.Targets(s.exam, probeHosts...)
		if err != nil {
			return fatal(err)
		}

		ctx, cancel := signalContext()
		defer cancel()
		results := s.runner.ProbeHosts(ctx, s.pool, targets)
		printProbes(cmd.OutOrStdout(), s.exam, results)

		for _, r := range results {
			if !r.OK {
				return &exitError{code: ExitErrored}
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().StringArrayVar(&probeHosts, "host", nil, "Probe only this host (repeatable)")
}
