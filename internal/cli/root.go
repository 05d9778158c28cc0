package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cgast/examiner/internal/config"
	"github.com/cgast/examiner/internal/status"
	"github.com/cgast/examiner/internal/tui"
	"github.com/cgast/examiner/pkg/verify"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

// Global flags.
var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "examiner [exam.yml]",
	Short: "Grade hands-on infrastructure exams over SSH",
	Long: `Examiner grades practice exams by running check commands on the lab
machines over SSH and comparing the results with each task's expectations.

Without a subcommand it opens the interactive exam screen. When no exam file
is given, the first exam found in the configured exams directory is used.

Examples:
  # Open the exam screen for a specific exam
  examiner exams/rhce-1.yml

  # Grade everything once and print the result
  examiner verify exams/rhce-1.yml

  # Check that every lab machine is reachable
  examiner probe exams/rhce-1.yml

Exit codes (verify, export):
  0 = exam passed
  1 = score below the passing score
  2 = one or more checks could not be executed
  3 = fatal error (nothing was graded)`,
	Args:          cobra.MaximumNArgs(1),
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(args, true)
		if err != nil {
			return fatal(err)
		}
		defer s.Close()

		if s.discovered {
			fmt.Fprintf(cmd.ErrOrStderr(), "Loading: %s\n", s.exam.Title)
		}

		sched := verify.NewScheduler(s.log)
		defer sched.Close()

		ctx, cancel := signalContext()
		defer cancel()
		if s.cfg.Status.Enabled {
			srv := status.New(s.exam, s.bus, s.historyLister(), s.log)
			go func() {
				if err := srv.Serve(ctx, s.cfg.Status.Port); err != nil {
					s.log.Warn("status server stopped", zap.Error(err))
				}
			}()
		}

		return tui.Run(tui.Deps{
			Runner:    s.runner,
			Prober:    s.pool,
			Exporter:  s.exporter,
			Scheduler: sched,
			Bus:       s.bus,
			Log:       s.log,
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to the examiner config file")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Log at debug level to stderr instead of the log file")
}

// SetBuildInfo records the version stamped in by the linker.
func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

// BuildInfo returns the version stamped in by the linker.
func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

// Execute runs the root command and exits with the command's exit code.
func Execute() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	if err == nil {
		return ExitPassed
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
	return ExitFatal
}
