// Package config provides configuration management for tsmreport.
// It uses Viper to load settings from a YAML file and environment variables,
// and validator to reject incomplete setups before anything is queried.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// Config holds all runtime configuration for tsmreport.
type Config struct {
	// ── Backup server ─────────────────────────────────────────────────────────
	Instances       []string `mapstructure:"instances" yaml:"instances" validate:"required,min=1,dive,required"`
	User            string   `mapstructure:"tsm_user" yaml:"tsm_user" validate:"required"`
	PasswordFile    string   `mapstructure:"tsm_password_file" yaml:"tsm_password_file"`
	DsmadmcPath     string   `mapstructure:"dsmadmc_path" yaml:"dsmadmc_path" validate:"required"`
	RetentionDays   int      `mapstructure:"retention_days" yaml:"retention_days" validate:"min=1,max=366"`
	Workers         int      `mapstructure:"workers" yaml:"workers" validate:"min=0"`
	Timezone        string   `mapstructure:"timezone" yaml:"timezone"`
	QueryTimeoutSec int      `mapstructure:"query_timeout_seconds" yaml:"query_timeout_seconds" validate:"min=1"`

	// SSH runs dsmadmc on a remote admin host when SSH.Host is set.
	SSH SSHConfig `mapstructure:"ssh" yaml:"ssh"`

	// ── Reports ──────────────────────────────────────────────────────────────
	Mail         MailConfig `mapstructure:"mail" yaml:"mail" validate:"-"`
	TemplatePath string     `mapstructure:"template_path" yaml:"template_path"`
	ExportDir    string     `mapstructure:"export_dir" yaml:"export_dir"`

	// ── Runtime ──────────────────────────────────────────────────────────────
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
	Cache  CacheConfig  `mapstructure:"cache" yaml:"cache"`
	Server ServerConfig `mapstructure:"server" yaml:"server" validate:"-"`

	// Password is read from PasswordFile or the terminal, never from YAML.
	Password string `mapstructure:"-" yaml:"-"`
}

// SSHConfig selects remote execution of the admin console.
type SSHConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	User     string `mapstructure:"user" yaml:"user" validate:"required_with=Host"`
	Password string `mapstructure:"password" yaml:"password"`
	KeyPath  string `mapstructure:"key_path" yaml:"key_path"`
	// MaxSessions caps concurrent sessions on the shared connection. sshd
	// refuses sessions beyond its MaxSessions (10 by default).
	MaxSessions int `mapstructure:"max_sessions" yaml:"max_sessions" validate:"min=1"`
}

// MailConfig describes the SMTP relay and the envelope of report mails.
type MailConfig struct {
	ServerHost      string `mapstructure:"server_host" yaml:"server_host" validate:"required"`
	ServerPort      int    `mapstructure:"server_port" yaml:"server_port" validate:"min=1,max=65535"`
	Username        string `mapstructure:"username" yaml:"username"`
	Password        string `mapstructure:"password" yaml:"password"`
	TLS             string `mapstructure:"tls" yaml:"tls" validate:"oneof=mandatory opportunistic none"`
	FromAddr        string `mapstructure:"from_addr" yaml:"from_addr" validate:"required,email"`
	ReplyToAddr     string `mapstructure:"replyto_addr" yaml:"replyto_addr" validate:"omitempty,email"`
	BccAddr         string `mapstructure:"bcc_addr" yaml:"bcc_addr" validate:"omitempty,email"`
	SubjectTemplate string `mapstructure:"subject_template" yaml:"subject_template" validate:"required"`
	Attempts        uint   `mapstructure:"attempts" yaml:"attempts" validate:"min=1"`
}

// LogConfig controls the slog handler and optional log file.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Path   string `mapstructure:"path" yaml:"path"`
	Rotate bool   `mapstructure:"rotate" yaml:"rotate"`
	JSON   bool   `mapstructure:"json" yaml:"json"`
}

// CacheConfig locates the snapshot database.
type CacheConfig struct {
	DBPath string        `mapstructure:"db_path" yaml:"db_path" validate:"required"`
	MaxAge time.Duration `mapstructure:"max_age" yaml:"max_age"`
	Keep   time.Duration `mapstructure:"keep" yaml:"keep"`
}

// ServerConfig is used by the "serve" subcommand.
type ServerConfig struct {
	Host      string `mapstructure:"host" yaml:"host"`
	Port      int    `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret" validate:"required,min=16"`
	AdminUser string `mapstructure:"admin_user" yaml:"admin_user" validate:"required"`
	AdminPass string `mapstructure:"admin_pass" yaml:"admin_pass" validate:"required"`
}

// Location returns the time zone console timestamps are printed in.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// QueryTimeout is the per-query limit for the admin console.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSec) * time.Second
}

var validate = validator.New()

// Validate checks the settings every subcommand needs. Mail and server
// settings are checked by ValidateMail and ValidateServer.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid config: timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// ValidateMail checks the mail section.
func (c *Config) ValidateMail() error {
	if err := validate.Struct(c.Mail); err != nil {
		return fmt.Errorf("invalid mail config: %w", err)
	}
	return nil
}

// ValidateServer checks the server section.
func (c *Config) ValidateServer() error {
	if err := validate.Struct(c.Server); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}
	return nil
}

// Load reads config from path, or from ./tsmreport.yaml or
// ~/.tsmreport/tsmreport.yaml when path is empty, and falls back to
// defaults. Environment variables with prefix TSMREPORT_ override file
// values, e.g. TSMREPORT_MAIL_SERVER_HOST.
func Load(path string) (*Config, error) {
	v := viper.New()

	// --- Defaults ---
	v.SetDefault("instances", []string{})
	v.SetDefault("tsm_user", "")
	v.SetDefault("tsm_password_file", "")
	v.SetDefault("dsmadmc_path", "dsmadmc")
	v.SetDefault("retention_days", 15)
	v.SetDefault("workers", 0) // 0 = one per logical CPU
	v.SetDefault("timezone", "Local")
	v.SetDefault("query_timeout_seconds", 300)

	v.SetDefault("ssh.host", "")
	v.SetDefault("ssh.user", "")
	v.SetDefault("ssh.password", "")
	v.SetDefault("ssh.key_path", "")
	v.SetDefault("ssh.max_sessions", 8)

	v.SetDefault("mail.server_host", "localhost")
	v.SetDefault("mail.server_port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.tls", "mandatory")
	v.SetDefault("mail.from_addr", "")
	v.SetDefault("mail.replyto_addr", "")
	v.SetDefault("mail.bcc_addr", "")
	v.SetDefault("mail.subject_template", "[$status] Backup report $tsm_inst / $pd_name ($time)")
	v.SetDefault("mail.attempts", 3)

	v.SetDefault("template_path", "")
	v.SetDefault("export_dir", ".")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "")
	v.SetDefault("log.rotate", false)
	v.SetDefault("log.json", false)

	v.SetDefault("cache.db_path", "tsmreport.db")
	v.SetDefault("cache.max_age", "12h")
	v.SetDefault("cache.keep", "720h")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.admin_user", "admin")
	v.SetDefault("server.admin_pass", "")

	// --- Config file ---
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		v.SetConfigName("tsmreport")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.tsmreport")
		if err := v.ReadInConfig(); err != nil {
			// config file is optional; ignore "not found" errors
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	// --- Environment Variables ---
	v.SetEnvPrefix("TSMREPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// LoadPassword fills c.Password from the password file, or prompts on the
// terminal when no file is configured.
func (c *Config) LoadPassword() error {
	if c.PasswordFile != "" {
		data, err := os.ReadFile(c.PasswordFile)
		if err != nil {
			return fmt.Errorf("password file %q: %w", c.PasswordFile, err)
		}
		c.Password = strings.TrimRight(string(data), "\r\n")
		return nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("no tsm_password_file configured and stdin is not a terminal")
	}
	fmt.Fprintf(os.Stderr, "Password for %s: ", c.User)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	c.Password = string(pw)
	return nil
}

// Redacted returns a copy of c with secrets masked, for display.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	c.Password = ""
	c.SSH.Password = mask(c.SSH.Password)
	c.Mail.Password = mask(c.Mail.Password)
	c.Server.JWTSecret = mask(c.Server.JWTSecret)
	c.Server.AdminPass = mask(c.Server.AdminPass)
	c.Instances = append([]string(nil), c.Instances...)
	return c
}
