package config

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is read by LoadEnvFile when no path is given.
const DefaultEnvFile = ".env"

// Config holds all service settings, populated from environment variables.
type Config struct {
	ArtifactsDir    string
	PipelineConfig  string
	ScheduleHour    int
	ScheduleMinute  int
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	LogFile         string
	ShutdownTimeout time.Duration

	// GitHub Actions remote control.
	GitHubToken        string
	GitHubOwner        string
	GitHubRepo         string
	WorkflowFile       string
	GitHubBranch       string
	RawBase            string
	GitHubAPIBase      string
	PollInterval       time.Duration
	PollTimeout        time.Duration
	PredictionRepoPath string

	// Optional Kafka publication of predictions.
	KafkaEnabled         bool
	KafkaBrokers         []string
	KafkaPredictionTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	hour, err := parseBounded("SCHEDULE_HOUR", 2, 0, 23)
	if err != nil {
		return nil, err
	}
	minute, err := parseBounded("SCHEDULE_MINUTE", 0, 0, 59)
	if err != nil {
		return nil, err
	}

	pollInterval, err := parsePositiveDuration("POLL_INTERVAL", "6s")
	if err != nil {
		return nil, err
	}
	pollTimeout, err := parsePositiveDuration("POLL_TIMEOUT", "15m")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ArtifactsDir:    sharedcfg.EnvOrDefault("ARTIFACTS_DIR", "artifacts"),
		PipelineConfig:  sharedcfg.EnvOrDefault("PIPELINE_CONFIG", "pipeline.yaml"),
		ScheduleHour:    hour,
		ScheduleMinute:  minute,
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		LogFile:         sharedcfg.EnvOrDefault("LOG_FILE", filepath.Join("logs", "pipeline.log")),
		ShutdownTimeout: shutdownTimeout,

		GitHubToken:        os.Getenv("GITHUB_TOKEN"),
		GitHubOwner:        os.Getenv("GITHUB_OWNER"),
		GitHubRepo:         os.Getenv("GITHUB_REPO"),
		WorkflowFile:       sharedcfg.EnvOrDefault("WORKFLOW_FILE", "pipeline-commit.yml"),
		GitHubBranch:       sharedcfg.EnvOrDefault("GITHUB_BRANCH", "main"),
		RawBase:            sharedcfg.EnvOrDefault("RAW_BASE", "https://raw.githubusercontent.com"),
		GitHubAPIBase:      sharedcfg.EnvOrDefault("GITHUB_API_BASE", "https://api.github.com"),
		PollInterval:       pollInterval,
		PollTimeout:        pollTimeout,
		PredictionRepoPath: sharedcfg.EnvOrDefault("PREDICTION_REPO_PATH", "artifacts/predictions/latest.csv"),

		KafkaEnabled:         os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:         sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaPredictionTopic: sharedcfg.EnvOrDefault("KAFKA_PREDICTION_TOPIC", "aqi-predictions"),
	}

	if cfg.ArtifactsDir == "" {
		return nil, errors.New("ARTIFACTS_DIR is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if topic, set := os.LookupEnv("KAFKA_PREDICTION_TOPIC"); cfg.KafkaEnabled && set && topic == "" {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_PREDICTION_TOPIC is empty")
	}

	return cfg, nil
}

// LoadEnvFile copies KEY=VALUE pairs from path (DefaultEnvFile when empty)
// into the process environment. Variables already set are left alone, and a
// missing file is not an error. Call it before Load.
func LoadEnvFile(path string) error {
	path = cmp.Or(path, DefaultEnvFile)
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// RemoteEnabled reports whether enough GitHub settings are present to
// dispatch the pipeline workflow.
func (c *Config) RemoteEnabled() bool {
	return c.GitHubToken != "" && c.GitHubOwner != "" && c.GitHubRepo != ""
}

// DataDir holds generated readings and the feature table.
func (c *Config) DataDir() string { return filepath.Join(c.ArtifactsDir, "data") }

// ModelsDir holds persisted models.
func (c *Config) ModelsDir() string { return filepath.Join(c.ArtifactsDir, "models") }

// PredictionsDir holds dated prediction files and latest.csv.
func (c *Config) PredictionsDir() string { return filepath.Join(c.ArtifactsDir, "predictions") }

// ReportsDir holds model metrics and spreadsheet reports.
func (c *Config) ReportsDir() string { return filepath.Join(c.ArtifactsDir, "reports") }

// EnsureDirs creates the artifact layout and the log directory.
func EnsureDirs(c *Config) error {
	dirs := []string{c.ArtifactsDir, c.DataDir(), c.ModelsDir(), c.PredictionsDir(), c.ReportsDir()}
	if c.LogFile != "" {
		dirs = append(dirs, filepath.Dir(c.LogFile))
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

func parseBounded(key string, def, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be an integer in [%d, %d]", key, lo, hi)
	}
	return n, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}
