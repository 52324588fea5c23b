// Package config loads the editions configuration: an optional YAML file,
// a .env file and environment overrides, validated against an embedded
// JSON schema.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "editions.yaml"

// Config is the merged configuration of the editions tool.
type Config struct {
	Transkribus TranskribusConfig `yaml:"transkribus"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Store       StoreConfig       `yaml:"store"`
	Report      ReportConfig      `yaml:"report"`
	Mirror      MirrorConfig      `yaml:"mirror"`
	Exist       ExistConfig       `yaml:"exist"`
	Log         LogConfig         `yaml:"log"`
}

// TranskribusConfig holds the remote service account.
type TranskribusConfig struct {
	BaseURL   string `yaml:"base_url"`
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
	OCREngine string `yaml:"ocr_engine"`
}

// PipelineConfig controls polling, timeouts and parallelism.
type PipelineConfig struct {
	PollInterval      time.Duration            `yaml:"poll_interval"`
	Timeout           time.Duration            `yaml:"timeout"`
	StageTimeouts     map[string]time.Duration `yaml:"stage_timeouts"`
	TitleTimeout      time.Duration            `yaml:"title_timeout"`
	Concurrency       int                      `yaml:"concurrency"`
	UploadConcurrency int                      `yaml:"upload_concurrency"`
	DownloadDir       string                   `yaml:"download_dir"`
	Collections       []string                 `yaml:"collections"`
	Schedule          string                   `yaml:"schedule"`
}

// StoreConfig selects the run database.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ReportConfig configures the issue tracker used for reports.
type ReportConfig struct {
	GitLabURL string   `yaml:"gitlab_url"`
	Project   string   `yaml:"project"`
	Token     string   `yaml:"token"`
	Labels    []string `yaml:"labels"`
}

// MirrorConfig configures the repository exports are copied to.
type MirrorConfig struct {
	Provider   string `yaml:"provider"`
	URL        string `yaml:"url"`
	Repository string `yaml:"repository"`
	Branch     string `yaml:"branch"`
	Prefix     string `yaml:"prefix"`
	Token      string `yaml:"token"`
}

// ExistConfig configures the eXist-db publisher.
type ExistConfig struct {
	FetchServer string `yaml:"fetch_server"`
	Server      string `yaml:"server"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	Schema      string `yaml:"schema"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Enabled reports whether a mirror target is configured.
func (m MirrorConfig) Enabled() bool {
	return m.Provider != "" && m.Repository != ""
}

// Enabled reports whether issue reporting is configured.
func (r ReportConfig) Enabled() bool {
	return r.Project != "" && r.Token != ""
}

// Default returns the configuration used when neither file nor environment
// set a value.
func Default() *Config {
	return &Config{
		Transkribus: TranskribusConfig{
			BaseURL:   "https://transkribus.eu/TrpServer/rest",
			OCREngine: "Legacy",
		},
		Pipeline: PipelineConfig{
			PollInterval:      5 * time.Second,
			Timeout:           2 * time.Hour,
			TitleTimeout:      10 * time.Minute,
			Concurrency:       4,
			UploadConcurrency: 4,
		},
		Store: StoreConfig{Driver: "sqlite", DSN: "editions.db"},
		Report: ReportConfig{
			GitLabURL: "https://gitlab.com",
		},
		Mirror: MirrorConfig{Branch: "main"},
		Log:    LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads path (a missing file is fine when path is the default), loads
// .env, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := Parse(data, cfg); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse checks data against the schema and decodes it over cfg.
func Parse(data []byte, cfg *Config) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if raw == nil {
		return nil
	}
	if err := validateSchema(raw); err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// Validate performs the checks the schema cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.Pipeline.PollInterval <= 0 {
		errs = append(errs, errors.New("pipeline.poll_interval must be positive"))
	}
	if c.Pipeline.Timeout <= 0 {
		errs = append(errs, errors.New("pipeline.timeout must be positive"))
	}
	if c.Pipeline.TitleTimeout <= 0 {
		errs = append(errs, errors.New("pipeline.title_timeout must be positive"))
	}
	for kind, d := range c.Pipeline.StageTimeouts {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("pipeline.stage_timeouts.%s must be positive", kind))
		}
	}
	if c.Pipeline.Concurrency < 1 {
		errs = append(errs, errors.New("pipeline.concurrency must be at least 1"))
	}
	switch c.Mirror.Provider {
	case "", "gitlab", "github":
	default:
		errs = append(errs, fmt.Errorf("mirror.provider %q is not gitlab or github", c.Mirror.Provider))
	}
	if c.Mirror.Provider == "github" && c.Mirror.Repository != "" && !strings.Contains(c.Mirror.Repository, "/") {
		errs = append(errs, fmt.Errorf("mirror.repository %q must be owner/name", c.Mirror.Repository))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: invalid: %w", errors.Join(errs...))
	}
	return nil
}
