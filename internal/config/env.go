package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func applyEnv(c *Config) {
	c.Transkribus.Email = getEnv(c.Transkribus.Email, "TRANSKRIBUS_EMAIL")
	c.Transkribus.Password = getEnv(c.Transkribus.Password, "TRANSKRIBUS_PASSWORD")
	c.Transkribus.BaseURL = getEnv(c.Transkribus.BaseURL, "TRANSKRIBUS_BASE_URL")

	c.Pipeline.PollInterval = getEnvAsDuration(c.Pipeline.PollInterval, "EDITIONS_POLL_INTERVAL")
	c.Pipeline.Timeout = getEnvAsDuration(c.Pipeline.Timeout, "EDITIONS_TIMEOUT")
	c.Pipeline.TitleTimeout = getEnvAsDuration(c.Pipeline.TitleTimeout, "EDITIONS_TITLE_TIMEOUT")
	c.Pipeline.Concurrency = getEnvAsInt(c.Pipeline.Concurrency, "EDITIONS_CONCURRENCY")
	c.Pipeline.DownloadDir = getEnv(c.Pipeline.DownloadDir, "EDITIONS_DOWNLOAD_DIR")
	if v := getEnv("", "EDITIONS_COLLECTIONS"); v != "" {
		c.Pipeline.Collections = splitList(v)
	}

	c.Store.Driver = getEnv(c.Store.Driver, "EDITIONS_DB_DRIVER")
	c.Store.DSN = getEnv(c.Store.DSN, "EDITIONS_DB_DSN")

	c.Report.Token = getEnv(c.Report.Token, "ISSUE_GITLAB_TOKEN")
	c.Report.Project = getEnv(c.Report.Project, "ISSUE_GITLAB_PROJECT")

	switch c.Mirror.Provider {
	case "github":
		c.Mirror.Token = getEnv(c.Mirror.Token, "GITHUB_TOKEN")
	case "gitlab":
		c.Mirror.Token = getEnv(c.Mirror.Token, "GITLAB_TOKEN")
	}

	// The lower-case names are the ones older deployments export.
	c.Exist.Server = getEnv(c.Exist.Server, "EXIST_SERVER", "exist_server")
	c.Exist.User = getEnv(c.Exist.User, "EXIST_USER", "exist_user")
	c.Exist.Password = getEnv(c.Exist.Password, "EXIST_PASSWORD", "exist_password")
	c.Exist.FetchServer = getEnv(c.Exist.FetchServer, "EXIST_FETCH_SERVER")
	c.Exist.Schema = getEnv(c.Exist.Schema, "RELAXNG_SCHEMA_PATH")

	c.Log.Level = getEnv(c.Log.Level, "EDITIONS_LOG_LEVEL")
}

// getEnv returns the first non-empty variable among keys, else defaultValue.
func getEnv(defaultValue string, keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return defaultValue
}

func getEnvAsInt(defaultValue int, key string) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(defaultValue time.Duration, key string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
