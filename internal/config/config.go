package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cgast/examiner/pkg/sshpool"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = ".examiner/config.yaml"

// Config represents the runtime configuration from .examiner/config.yaml.
type Config struct {
	LogLevel string        `yaml:"log_level"`
	LogFile  string        `yaml:"log_file"`
	ExamsDir string        `yaml:"exams_dir"`
	SSH      SSHConfig     `yaml:"ssh"`
	Results  ResultsConfig `yaml:"results"`
	History  HistoryConfig `yaml:"history"`
	GitHub   GitHubConfig  `yaml:"github"`
	Status   StatusConfig  `yaml:"status"`
}

// SSHConfig defines how lab hosts are reached.
type SSHConfig struct {
	KeyDir         string        `yaml:"key_dir"`
	Password       string        `yaml:"password"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	StaleAfter     time.Duration `yaml:"stale_after"`
	PerHostLocking bool          `yaml:"per_host_locking"`
}

// ResultsConfig defines where grade reports are written.
type ResultsConfig struct {
	Dir string `yaml:"dir"`
}

// HistoryConfig defines result history settings.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// GitHubConfig holds report publishing settings.
type GitHubConfig struct {
	Token  string   `yaml:"token"`
	Repo   string   `yaml:"repo"`
	Labels []string `yaml:"labels"`
}

// StatusConfig defines the read-only status API.
type StatusConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		LogFile:  ".examiner/examiner.log",
		ExamsDir: "exams",
		SSH: SSHConfig{
			KeyDir:         sshpool.DefaultKeyDir,
			Password:       sshpool.DefaultPassword,
			ConnectTimeout: sshpool.DefaultConnectTimeout,
			CommandTimeout: sshpool.DefaultCommandTimeout,
			ProbeTimeout:   sshpool.DefaultProbeTimeout,
			StaleAfter:     sshpool.DefaultStaleAfter,
		},
		Results: ResultsConfig{
			Dir: "results",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    ".examiner/history.db",
		},
		GitHub: GitHubConfig{
			Labels: []string{"grade-report"},
		},
		Status: StatusConfig{
			Port: 4380,
		},
	}
}

// LoadConfig reads and parses a runtime config YAML file, interpolating
// ${VAR} references. Returns the default config if the file doesn't exist.
// EXAMINER_VAGRANT_DIR overrides ssh.key_dir either way.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		interpolated := interpolateEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if dir := os.Getenv(sshpool.KeyDirEnv); dir != "" {
		cfg.SSH.KeyDir = dir
	}
	return cfg, cfg.Validate()
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	var problems []string
	for name, d := range map[string]time.Duration{
		"ssh.connect_timeout": c.SSH.ConnectTimeout,
		"ssh.command_timeout": c.SSH.CommandTimeout,
		"ssh.probe_timeout":   c.SSH.ProbeTimeout,
		"ssh.stale_after":     c.SSH.StaleAfter,
	} {
		if d < 0 {
			problems = append(problems, name+" must not be negative")
		}
	}
	if c.Status.Port < 0 || c.Status.Port > 65535 {
		problems = append(problems, "status.port out of range")
	}
	if c.GitHub.Repo != "" && strings.Count(c.GitHub.Repo, "/") != 1 {
		problems = append(problems, "github.repo must be owner/name")
	}
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
}

// PoolConfig converts the ssh section for sshpool.New.
func (c Config) PoolConfig() sshpool.Config {
	return sshpool.Config{
		KeyDir:         c.SSH.KeyDir,
		Password:       c.SSH.Password,
		ConnectTimeout: c.SSH.ConnectTimeout,
		CommandTimeout: c.SSH.CommandTimeout,
		ProbeTimeout:   c.SSH.ProbeTimeout,
		StaleAfter:     c.SSH.StaleAfter,
	}
}

// Template is the annotated config written by "examiner init". Loading it
// yields DefaultConfig.
const Template = `# examiner configuration
log_level: info
log_file: .examiner/examiner.log
exams_dir: exams

ssh:
  # Directory holding the Vagrantfile; EXAMINER_VAGRANT_DIR overrides it.
  key_dir: .
  password: vagrant
  connect_timeout: 10s
  command_timeout: 30s
  probe_timeout: 5s
  stale_after: 5m
  per_host_locking: false

results:
  dir: results

history:
  enabled: true
  path: .examiner/history.db

github:
  token: ${GITHUB_TOKEN}
  repo: ""
  labels: [grade-report]

status:
  enabled: false
  port: 4380
`

// Write saves the config template at path, creating parent directories.
// An existing file is left untouched.
func Write(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(Template), 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// envVarPattern matches ${VAR_NAME} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// interpolateEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func interpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match // Leave unresolved if not set.
	})
}
