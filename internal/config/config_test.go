package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
instances: [TSM1, TSM2]
tsm_user: reporter
dsmadmc_path: /opt/tivoli/tsm/client/ba/bin/dsmadmc
timezone: UTC
mail:
  server_host: smtp.example.com
  from_addr: backup@example.com
  bcc_addr: archive@example.com
server:
  jwt_secret: 0123456789abcdef0123
  admin_pass: secret
cache:
  max_age: 2h
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tsmreport.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFileAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Instances) != 2 || cfg.Instances[1] != "TSM2" {
		t.Errorf("Instances = %v", cfg.Instances)
	}
	if cfg.RetentionDays != 15 || cfg.Mail.ServerPort != 587 || cfg.Mail.TLS != "mandatory" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Cache.MaxAge != 2*time.Hour {
		t.Errorf("Cache.MaxAge = %v", cfg.Cache.MaxAge)
	}
	if cfg.SSH.MaxSessions != 8 {
		t.Errorf("SSH.MaxSessions = %d, want 8", cfg.SSH.MaxSessions)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if err := cfg.ValidateMail(); err != nil {
		t.Errorf("ValidateMail: %v", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		t.Errorf("ValidateServer: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "UTC" {
		t.Errorf("Location = %v, %v", loc, err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TSMREPORT_MAIL_SERVER_HOST", "relay.internal")
	t.Setenv("TSMREPORT_WORKERS", "4")
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mail.ServerHost != "relay.internal" {
		t.Errorf("Mail.ServerHost = %q", cfg.Mail.ServerHost)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d", cfg.Workers)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		check  func(c *Config) error
	}{
		{"no instances", func(c *Config) { c.Instances = nil }, (*Config).Validate},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, (*Config).Validate},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Base" }, (*Config).Validate},
		{"ssh host without user", func(c *Config) { c.SSH.Host = "admin01" }, (*Config).Validate},
		{"zero ssh sessions", func(c *Config) { c.SSH.MaxSessions = 0 }, (*Config).Validate},
		{"bad from address", func(c *Config) { c.Mail.FromAddr = "not-an-address" }, (*Config).ValidateMail},
		{"bad tls mode", func(c *Config) { c.Mail.TLS = "sometimes" }, (*Config).ValidateMail},
		{"short jwt secret", func(c *Config) { c.Server.JWTSecret = "short" }, (*Config).ValidateServer},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, sampleYAML))
			if err != nil {
				t.Fatal(err)
			}
			tc.mutate(cfg)
			if err := tc.check(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestMailNotValidatedByDefault(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	cfg.Mail.FromAddr = ""
	cfg.Server.JWTSecret = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate should ignore mail and server sections: %v", err)
	}
}

func TestLoadPasswordFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pw")
	if err := os.WriteFile(path, []byte("s3cret\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := &Config{PasswordFile: path}
	if err := cfg.LoadPassword(); err != nil {
		t.Fatal(err)
	}
	if cfg.Password != "s3cret" {
		t.Errorf("Password = %q", cfg.Password)
	}

	cfg = &Config{PasswordFile: path + ".missing"}
	if err := cfg.LoadPassword(); err == nil {
		t.Error("expected error for missing password file")
	}
}

func TestRedacted(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	cfg.Password = "pw"
	r := cfg.Redacted()
	if r.Password != "" || strings.Contains(r.Server.JWTSecret, "0123") || r.Server.AdminPass == "secret" {
		t.Errorf("secrets leaked: %+v", r)
	}
	if cfg.Server.AdminPass != "secret" {
		t.Error("Redacted modified the original")
	}
}
