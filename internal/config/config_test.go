package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("PERMAUDIT_CONFIG", "")
	t.Setenv("PERMAUDIT_ENV", "")
	t.Setenv("PERMAUDIT_JIRA_BASE_URL", "https://acme.atlassian.net")
	t.Setenv("PERMAUDIT_JIRA_EMAIL", "audit-bot@acme.test")
	t.Setenv("PERMAUDIT_JIRA_API_TOKEN", "atl-token")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.Port != 8080 || cfg.Env != "development" {
		t.Errorf("unexpected port/env: %d %s", cfg.Port, cfg.Env)
	}
	if cfg.Jira.Timeout != 30*time.Second || cfg.Jira.MaxInFlight != 16 {
		t.Errorf("unexpected jira pacing: %+v", cfg.Jira)
	}
	opts := cfg.RunnerOptions()
	if opts.Scan.ProjectsConcurrency != 4 || opts.Scan.RolesConcurrency != 6 ||
		opts.Scan.MembersConcurrency != 10 || opts.Scan.UserChecksBatchSize != 10 {
		t.Errorf("unexpected batch sizes: %+v", opts.Scan)
	}
	if opts.Scan.AdminRole != "Administrator" || opts.Scan.ViewerRole != "Viewer" {
		t.Errorf("unexpected role names: %+v", opts.Scan)
	}
	if opts.RunTimeout != 30*time.Minute || opts.Cooldown != 0 {
		t.Errorf("unexpected run policy: %+v", opts)
	}
	if got := cfg.JiraClient(); got.BaseURL != "https://acme.atlassian.net" || got.APIToken != "atl-token" {
		t.Errorf("unexpected jira client config: %+v", got)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PERMAUDIT_PORT", "9090")
	t.Setenv("PERMAUDIT_AUDIT_ROLES_CONCURRENCY", "3")
	t.Setenv("PERMAUDIT_AUDIT_COOLDOWN", "6h")
	t.Setenv("PERMAUDIT_JIRA_RATE_PER_SECOND", "2.5")
	t.Setenv("PERMAUDIT_HTTP_ALLOWED_ORIGINS", "https://a.test,https://b.test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("port override ignored: %d", cfg.Port)
	}
	if cfg.Audit.RolesConcurrency != 3 {
		t.Errorf("roles concurrency override ignored: %d", cfg.Audit.RolesConcurrency)
	}
	if cfg.Audit.Cooldown != 6*time.Hour {
		t.Errorf("cooldown override ignored: %s", cfg.Audit.Cooldown)
	}
	if cfg.Jira.RatePerSecond != 2.5 {
		t.Errorf("rate override ignored: %v", cfg.Jira.RatePerSecond)
	}
	if len(cfg.HTTP.AllowedOrigins) != 2 || cfg.HTTP.AllowedOrigins[1] != "https://b.test" {
		t.Errorf("origins override ignored: %v", cfg.HTTP.AllowedOrigins)
	}
}

func TestLoad_MissingJiraVars(t *testing.T) {
	t.Setenv("PERMAUDIT_CONFIG", "")
	t.Setenv("PERMAUDIT_JIRA_BASE_URL", "")
	t.Setenv("PERMAUDIT_JIRA_EMAIL", "")
	t.Setenv("PERMAUDIT_JIRA_API_TOKEN", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing jira settings, got nil")
	}
	for _, name := range []string{"PERMAUDIT_JIRA_BASE_URL", "PERMAUDIT_JIRA_EMAIL", "PERMAUDIT_JIRA_API_TOKEN"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error message should mention %s, got: %v", name, err)
		}
	}
}

func TestLoad_ProductionRequiresSecretAndSink(t *testing.T) {
	setRequired(t)
	t.Setenv("PERMAUDIT_ENV", "production")
	t.Setenv("PERMAUDIT_AUTH_SECRET", "")
	t.Setenv("PERMAUDIT_ANALYTICS_INGEST_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "PERMAUDIT_AUTH_SECRET") || !strings.Contains(err.Error(), "PERMAUDIT_ANALYTICS_INGEST_URL") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	setRequired(t)
	t.Setenv("PERMAUDIT_ENV", "qa")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "PERMAUDIT_ENV") {
		t.Fatalf("expected invalid env error, got: %v", err)
	}
}

func TestLoad_InvalidJiraURL(t *testing.T) {
	setRequired(t)
	t.Setenv("PERMAUDIT_JIRA_BASE_URL", "acme.atlassian.net")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "invalid PERMAUDIT_JIRA_BASE_URL") {
		t.Fatalf("expected invalid url error, got: %v", err)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	setRequired(t)
	path := filepath.Join(t.TempDir(), "permaudit.yaml")
	body := `
audit:
  projects_concurrency: 2
  admin_role: Admins
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PERMAUDIT_CONFIG", path)
	t.Setenv("PERMAUDIT_LOG_LEVEL", "warn")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.Audit.ProjectsConcurrency != 2 || cfg.Audit.AdminRole != "Admins" {
		t.Errorf("file values ignored: %+v", cfg.Audit)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("environment should win over file, got %q", cfg.Log.Level)
	}
}

func TestEnvName(t *testing.T) {
	if got := EnvName("analytics.api_key"); got != "PERMAUDIT_ANALYTICS_API_KEY" {
		t.Fatalf("unexpected env name %q", got)
	}
}

func TestLoad_RejectsTwoStores(t *testing.T) {
	setRequired(t)
	t.Setenv("PERMAUDIT_DATABASE_URL", "postgres://audit@localhost/permaudit")
	t.Setenv("PERMAUDIT_DATABASE_SQLITE_PATH", "/var/lib/permaudit/state.db")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "PERMAUDIT_DATABASE_SQLITE_PATH") {
		t.Fatalf("expected conflicting store error, got: %v", err)
	}
}
