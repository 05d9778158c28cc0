package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/cgast/examiner/internal/config"
	"github.com/cgast/examiner/internal/logging"
	"github.com/cgast/examiner/internal/status"
	"github.com/cgast/examiner/pkg/events"
	"github.com/cgast/examiner/pkg/exam"
	"github.com/cgast/examiner/pkg/history"
	"github.com/cgast/examiner/pkg/report"
	"github.com/cgast/examiner/pkg/sshpool"
	"github.com/cgast/examiner/pkg/verify"
)

// session is everything one command needs to grade an exam.
type session struct {
	cfg        config.Config
	log        *zap.Logger
	exam       *exam.Exam
	discovered bool
	bus        *events.MemoryBus
	pool       *sshpool.Pool
	runner     *verify.Runner
	exporter   *report.Exporter
	history    *history.Store
}

func loadConfig() (config.Config, error) {
	return config.LoadConfig(configPath)
}

// newLogger logs to the configured file, or to stderr with --verbose.
// The interactive screen always logs to the file.
func newLogger(cfg config.Config, interactive bool) (*zap.Logger, error) {
	opts := logging.Options{Level: cfg.LogLevel, Verbose: verbose, File: cfg.LogFile}
	if verbose && !interactive {
		opts.File = ""
	}
	return logging.New(opts)
}

// resolveExamPath returns args[0] or the first exam in dir.
func resolveExamPath(args []string, dir string) (string, bool, error) {
	if len(args) > 0 {
		return args[0], false, nil
	}
	infos, err := exam.DiscoverExams(dir)
	if err != nil {
		return "", false, err
	}
	if len(infos) == 0 {
		return "", false, fmt.Errorf("no exam files found in %s; provide a path: examiner <exam.yml>", dir)
	}
	return infos[0].Path, true, nil
}

// loadValidExam loads path and rejects exams that cannot be graded.
func loadValidExam(path string) (*exam.Exam, error) {
	e, err := exam.LoadExam(path)
	if err != nil {
		return nil, err
	}
	if res := exam.ValidateExam(e); !res.Valid() {
		return nil, fmt.Errorf("%s: %s", path, res.Error())
	}
	e.InitResults()
	return e, nil
}

func openSession(args []string, interactive bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg, interactive)
	if err != nil {
		return nil, err
	}

	path, discovered, err := resolveExamPath(args, cfg.ExamsDir)
	if err != nil {
		return nil, err
	}
	e, err := loadValidExam(path)
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:        cfg,
		log:        log,
		exam:       e,
		discovered: discovered,
		bus:        events.NewMemoryBus(),
	}

	poolOpts := []sshpool.Option{sshpool.WithLogger(log.Named("sshpool"))}
	if cfg.SSH.PerHostLocking {
		poolOpts = append(poolOpts, sshpool.WithPerHostLocking())
	}
	s.pool = sshpool.New(cfg.PoolConfig(), poolOpts...)

	runnerOpts := []verify.Option{
		verify.WithBus(s.bus),
		verify.WithLogger(log.Named("verify")),
	}
	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			log.Warn("history disabled", zap.String("path", cfg.History.Path), zap.Error(err))
		} else {
			s.history = store
			runnerOpts = append(runnerOpts, verify.WithRecorder(store))
		}
	}
	s.runner = verify.NewRunner(e, s.pool, runnerOpts...)
	s.exporter = report.NewExporter(s.pool,
		report.WithDir(cfg.Results.Dir),
		report.WithBus(s.bus),
		report.WithLogger(log.Named("report")))

	log.Info("session opened",
		zap.String("exam", e.ID),
		zap.String("path", path),
		zap.Int("tasks", len(e.Tasks)),
		zap.Int("hosts", len(e.Hosts)))
	return s, nil
}

// historyLister returns the store as an interface that is nil when history
// is off.
func (s *session) historyLister() status.HistoryLister {
	if s.history == nil {
		return nil
	}
	return s.history
}

// publisher builds the GitHub publisher from the github config section.
func (s *session) publisher() (*report.Publisher, error) {
	gh := s.cfg.GitHub
	if gh.Token == "" || gh.Repo == "" {
		return nil, fmt.Errorf("publishing needs github.token and github.repo in %s", configPath)
	}
	return report.NewPublisher(gh.Token, gh.Repo, report.WithLabels(gh.Labels...))
}

// Close releases connections and files.
func (s *session) Close() {
	s.pool.ReleaseAll()
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			s.log.Warn("close history", zap.Error(err))
		}
	}
	s.bus.Close()
	_ = s.log.Sync()
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
