package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// inTempDir runs the test from an empty directory so no stray .env or
// editions.yaml is picked up.
func inTempDir(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	inTempDir(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.PollInterval)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.False(t, cfg.Mirror.Enabled())
	assert.False(t, cfg.Report.Enabled())
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	inTempDir(t)

	_, err := Load("nope.yaml")
	assert.ErrorContains(t, err, "config: read nope.yaml")
}

func TestLoad_File(t *testing.T) {
	inTempDir(t)
	path := writeFile(t, "editions.yaml", `
transkribus:
  email: editor@example.org
pipeline:
  poll_interval: 10s
  timeout: 1h
  stage_timeouts:
    export: 30m
  concurrency: 2
  collections: ["1", "2"]
report:
  project: 42
  labels: [pipeline]
mirror:
  provider: github
  repository: editions/letters
`)
	t.Setenv("ISSUE_GITLAB_TOKEN", "issue-token")
	t.Setenv("GITHUB_TOKEN", "gh-token")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "editor@example.org", cfg.Transkribus.Email)
	assert.Equal(t, 10*time.Second, cfg.Pipeline.PollInterval)
	assert.Equal(t, time.Hour, cfg.Pipeline.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.Pipeline.StageTimeouts["export"])
	assert.Equal(t, 2, cfg.Pipeline.Concurrency)
	assert.Equal(t, []string{"1", "2"}, cfg.Pipeline.Collections)
	assert.Equal(t, "42", cfg.Report.Project)
	assert.True(t, cfg.Report.Enabled())
	assert.Equal(t, "gh-token", cfg.Mirror.Token)
	assert.Equal(t, "main", cfg.Mirror.Branch)
	assert.True(t, cfg.Mirror.Enabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	inTempDir(t)
	t.Setenv("TRANSKRIBUS_EMAIL", "a@b.c")
	t.Setenv("TRANSKRIBUS_PASSWORD", "secret")
	t.Setenv("EDITIONS_DB_DRIVER", "postgres")
	t.Setenv("EDITIONS_DB_DSN", "host=db")
	t.Setenv("EDITIONS_POLL_INTERVAL", "2s")
	t.Setenv("EDITIONS_COLLECTIONS", "7, 8,,9")
	t.Setenv("exist_server", "http://exist:8080/exist/rest/db")
	t.Setenv("RELAXNG_SCHEMA_PATH", "/schemas/tei.rng")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "a@b.c", cfg.Transkribus.Email)
	assert.Equal(t, "secret", cfg.Transkribus.Password)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "host=db", cfg.Store.DSN)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.PollInterval)
	assert.Equal(t, []string{"7", "8", "9"}, cfg.Pipeline.Collections)
	assert.Equal(t, "http://exist:8080/exist/rest/db", cfg.Exist.Server)
	assert.Equal(t, "/schemas/tei.rng", cfg.Exist.Schema)
}

func TestLoad_DotEnv(t *testing.T) {
	inTempDir(t)
	require.NoError(t, os.WriteFile(".env", []byte("GITLAB_TOKEN=from-dotenv\n"), 0o644))
	require.NoError(t, os.WriteFile(DefaultPath, []byte("mirror:\n  provider: gitlab\n  repository: group/project\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("GITLAB_TOKEN") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Mirror.Token)
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown section", "telemetry: {}\n"},
		{"unknown key", "pipeline:\n  polling: 5s\n"},
		{"bad duration", "pipeline:\n  timeout: soon\n"},
		{"zero concurrency", "pipeline:\n  concurrency: 0\n"},
		{"unknown stage", "pipeline:\n  stage_timeouts:\n    review: 1h\n"},
		{"bad driver", "store:\n  driver: mysql\n"},
		{"bad provider", "mirror:\n  provider: bitbucket\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Parse([]byte(tt.yaml), Default())
			assert.ErrorContains(t, err, "does not match schema")
		})
	}
}

func TestParse_EmptyDocument(t *testing.T) {
	cfg := Default()
	require.NoError(t, Parse([]byte("# nothing here\n"), cfg))
	assert.Equal(t, Default(), cfg)
}

func TestValidate_RequiresPositiveTimeouts(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.Timeout = 0
	cfg.Pipeline.StageTimeouts = map[string]time.Duration{"ocr": -time.Second}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.timeout must be positive")
	assert.Contains(t, err.Error(), "pipeline.stage_timeouts.ocr must be positive")
}

func TestValidate_GitHubRepositoryNeedsOwner(t *testing.T) {
	cfg := Default()
	cfg.Mirror.Provider = "github"
	cfg.Mirror.Repository = "letters"

	assert.ErrorContains(t, cfg.Validate(), "must be owner/name")
}
