package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cgast/examiner/pkg/protocol"
)

var serveCmd = &cobra.Command{
	Use:   "serve [exam.yml]",
	Short: "Serve the exam over JSON-RPC on stdin/stdout",
	Long: `Read JSON-RPC 2.0 requests, one per line, from stdin and write one
response per line to stdout.

Methods: exam.status, exam.verify_task, exam.verify_all, exam.reset_task,
exam.reset_all, hosts.probe, report.export, history.list.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(args, false)
		if err != nil {
			return fatal(err)
		}
		defer s.Close()

		svc := &protocol.Service{
			Runner:   s.runner,
			Prober:   s.pool,
			Exporter: s.exporter,
			History:  s.historyLister(),
		}
		if pub, err := s.publisher(); err == nil {
			svc.Issuer = pub
		} else {
			s.log.Debug("report publishing unavailable", zap.Error(err))
		}

		h := protocol.NewHandler()
		svc.Register(h)
		s.log.Info("serving", zap.Strings("methods", h.Methods()))

		ctx, cancel := signalContext()
		defer cancel()
		if err := h.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
			return fatal(err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
