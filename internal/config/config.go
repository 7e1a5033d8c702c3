// Package config loads service settings from an optional YAML file and
// PERMAUDIT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"permaudit.io/internal/analytics"
	"permaudit.io/internal/jira"
	"permaudit.io/internal/obs"
	"permaudit.io/internal/runner"
	"permaudit.io/internal/scan"
)

const envPrefix = "PERMAUDIT"

type JiraConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Email         string        `mapstructure:"email"`
	APIToken      string        `mapstructure:"api_token"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	MaxInFlight   int64         `mapstructure:"max_in_flight"`
}

type AnalyticsConfig struct {
	IngestURL string        `mapstructure:"ingest_url"`
	QueryURL  string        `mapstructure:"query_url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig selects the scan-state store: PostgreSQL when URL is set,
// else a SQLite file when SQLitePath is set, else process memory.
type DatabaseConfig struct {
	URL        string `mapstructure:"url"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type AuthConfig struct {
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

type HTTPConfig struct {
	RatePerSecond  float64  `mapstructure:"rate_per_second"`
	Burst          int      `mapstructure:"burst"`
	MaxBodyBytes   int64    `mapstructure:"max_body_bytes"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// AuditConfig tunes the scan pipeline and run policy.
type AuditConfig struct {
	UsersPageSize       int           `mapstructure:"users_page_size"`
	ProjectsPageSize    int           `mapstructure:"projects_page_size"`
	IssuesPageSize      int           `mapstructure:"issues_page_size"`
	ProjectsConcurrency int           `mapstructure:"projects_concurrency"`
	RolesConcurrency    int           `mapstructure:"roles_concurrency"`
	MembersConcurrency  int           `mapstructure:"members_concurrency"`
	UserChecksBatchSize int           `mapstructure:"user_checks_batch_size"`
	AdminRole           string        `mapstructure:"admin_role"`
	MemberRole          string        `mapstructure:"member_role"`
	ViewerRole          string        `mapstructure:"viewer_role"`
	RunTimeout          time.Duration `mapstructure:"run_timeout"`
	Cooldown            time.Duration `mapstructure:"cooldown"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Dev   bool   `mapstructure:"dev"`
	File  string `mapstructure:"file"`
}

type Config struct {
	Port      int             `mapstructure:"port"`
	Env       string          `mapstructure:"env"`
	Jira      JiraConfig      `mapstructure:"jira"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Log       LogConfig       `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	sc := scan.DefaultConfig()
	defaults := map[string]any{
		"port":                         8080,
		"env":                          "development",
		"jira.base_url":                "",
		"jira.email":                   "",
		"jira.api_token":               "",
		"jira.timeout":                 30 * time.Second,
		"jira.rate_per_second":         10.0,
		"jira.burst":                   10,
		"jira.max_in_flight":           16,
		"analytics.ingest_url":         "",
		"analytics.query_url":          "",
		"analytics.api_key":            "",
		"analytics.timeout":            15 * time.Second,
		"database.url":                 "",
		"database.sqlite_path":         "",
		"auth.secret":                  "",
		"auth.token_ttl":               12 * time.Hour,
		"http.rate_per_second":         5.0,
		"http.burst":                   10,
		"http.max_body_bytes":          1 << 20,
		"http.allowed_origins":         []string{"*"},
		"audit.users_page_size":        sc.UsersPageSize,
		"audit.projects_page_size":     sc.ProjectsPageSize,
		"audit.issues_page_size":       sc.IssuesPageSize,
		"audit.projects_concurrency":   sc.ProjectsConcurrency,
		"audit.roles_concurrency":      sc.RolesConcurrency,
		"audit.members_concurrency":    sc.MembersConcurrency,
		"audit.user_checks_batch_size": sc.UserChecksBatchSize,
		"audit.admin_role":             sc.AdminRole,
		"audit.member_role":            sc.MemberRole,
		"audit.viewer_role":            sc.ViewerRole,
		"audit.run_timeout":            30 * time.Minute,
		"audit.cooldown":               time.Duration(0),
		"log.level":                    "info",
		"log.dev":                      false,
		"log.file":                     "",
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// EnvName maps a config key to its environment variable, e.g.
// jira.api_token -> PERMAUDIT_JIRA_API_TOKEN.
func EnvName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load reads defaults, then the file named by PERMAUDIT_CONFIG (if any),
// then the environment. It fails fast listing every missing variable.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("config_file", envPrefix+"_CONFIG"); err != nil {
		return nil, err
	}
	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) IsDevelopment() bool { return c.Env == "development" }

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	switch c.Env {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("invalid %s value %q: must be development, staging, or production", EnvName("env"), c.Env)
	}

	var missing []string
	require := func(key, val string) {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, EnvName(key))
		}
	}
	require("jira.base_url", c.Jira.BaseURL)
	require("jira.email", c.Jira.Email)
	require("jira.api_token", c.Jira.APIToken)
	if !c.IsDevelopment() {
		require("auth.secret", c.Auth.Secret)
		require("analytics.ingest_url", c.Analytics.IngestURL)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}

	if err := validateURL(c.Jira.BaseURL); err != nil {
		return fmt.Errorf("invalid %s: %w", EnvName("jira.base_url"), err)
	}
	for key, val := range map[string]string{
		"analytics.ingest_url": c.Analytics.IngestURL,
		"analytics.query_url":  c.Analytics.QueryURL,
	} {
		if val == "" {
			continue
		}
		if err := validateURL(val); err != nil {
			return fmt.Errorf("invalid %s: %w", EnvName(key), err)
		}
	}
	if c.Database.URL != "" && c.Database.SQLitePath != "" {
		return fmt.Errorf("set only one of %s and %s", EnvName("database.url"), EnvName("database.sqlite_path"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid %s: %d", EnvName("port"), c.Port)
	}
	if c.Audit.Cooldown < 0 || c.Audit.RunTimeout < 0 {
		return errors.New("audit durations must not be negative")
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}

func (c *Config) JiraClient() jira.Config {
	return jira.Config{
		BaseURL:       c.Jira.BaseURL,
		Email:         c.Jira.Email,
		APIToken:      c.Jira.APIToken,
		Timeout:       c.Jira.Timeout,
		RatePerSecond: c.Jira.RatePerSecond,
		Burst:         c.Jira.Burst,
		MaxInFlight:   c.Jira.MaxInFlight,
	}
}

func (c *Config) AnalyticsClient() analytics.Config {
	return analytics.Config{
		IngestURL: c.Analytics.IngestURL,
		QueryURL:  c.Analytics.QueryURL,
		APIKey:    c.Analytics.APIKey,
		Timeout:   c.Analytics.Timeout,
	}
}

func (c *Config) RunnerOptions() runner.Options {
	a := c.Audit
	return runner.Options{
		Scan: scan.Config{
			UsersPageSize:       a.UsersPageSize,
			ProjectsPageSize:    a.ProjectsPageSize,
			IssuesPageSize:      a.IssuesPageSize,
			ProjectsConcurrency: a.ProjectsConcurrency,
			RolesConcurrency:    a.RolesConcurrency,
			MembersConcurrency:  a.MembersConcurrency,
			UserChecksBatchSize: a.UserChecksBatchSize,
			AdminRole:           a.AdminRole,
			MemberRole:          a.MemberRole,
			ViewerRole:          a.ViewerRole,
		},
		RunTimeout: a.RunTimeout,
		Cooldown:   a.Cooldown,
	}
}

func (c *Config) Logging() obs.LogConfig {
	return obs.LogConfig{Level: c.Log.Level, Dev: c.Log.Dev, File: c.Log.File}
}
