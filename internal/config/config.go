// Package config loads and validates the blackhole's configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"blitiri.com.ar/go/log"
	"gopkg.in/yaml.v2"
)

// TLSConfig holds STARTTLS material.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// AuthConfig holds the sole valid SMTP AUTH credential pair.
type AuthConfig struct {
	Required bool   `yaml:"required"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SMTPConfig holds the SMTP front-end's settings.
type SMTPConfig struct {
	Host                string     `yaml:"host"`
	Port                int        `yaml:"port"`
	Domain              string     `yaml:"domain"`
	ReadTimeoutSeconds  int        `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int        `yaml:"write_timeout_seconds"`
	MaxMessageBytes     int64      `yaml:"max_message_bytes"`
	MaxRecipients       int        `yaml:"max_recipients"`
	TLS                 TLSConfig  `yaml:"tls"`
	Auth                AuthConfig `yaml:"auth"`

	// Systemd enables socket-activated listening: instead of binding
	// Host:Port itself, the listener is taken from LISTEN_FDS.
	Systemd bool `yaml:"systemd"`
}

// Address returns the host:port the SMTP listener binds to.
func (s SMTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// WebConfig holds the companion HTTP UI's settings.
type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
	SessionName   string `yaml:"session_name"`
}

// Address returns the host:port the web UI binds to.
func (w WebConfig) Address() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// StoreConfig controls how received mail is persisted.
type StoreConfig struct {
	// Path, if non-empty, enables the filestore: a YAML snapshot of all
	// received mail, written atomically after every accepted message.
	// Empty means memory-only (memstore), lost on restart.
	Path string `yaml:"path"`
}

// AdminConfig seeds the web UI's sole admin account.
type AdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Config is the top-level configuration tree, loaded from a single YAML
// file.
type Config struct {
	SMTP  SMTPConfig  `yaml:"smtp"`
	Web   WebConfig   `yaml:"web"`
	Store StoreConfig `yaml:"store"`
	Admin AdminConfig `yaml:"admin"`
}

var defaultConfig = Config{
	SMTP: SMTPConfig{
		Host:                "0.0.0.0",
		Port:                2525,
		Domain:              "localhost",
		ReadTimeoutSeconds:  10,
		WriteTimeoutSeconds: 10,
		MaxMessageBytes:     10 * 1024 * 1024,
		MaxRecipients:       50,
		Auth: AuthConfig{
			Required: true,
			Username: "mailuser",
			Password: "mailpass",
		},
	},
	Web: WebConfig{
		Host:          "0.0.0.0",
		Port:          8080,
		SessionName:   "smtpblackhole_session",
		SessionSecret: "change-this-to-a-long-random-secret",
	},
	Admin: AdminConfig{
		Username: "admin",
		Password: "changeme",
	},
}

// Load reads and validates the configuration at path, starting from
// defaultConfig and overriding whatever the file sets.
func Load(path string) (*Config, error) {
	c := defaultConfig

	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config at %q: %v", path, err)
	}

	if err := yaml.Unmarshal(buf, &c); err != nil {
		return nil, fmt.Errorf("parsing config: %v", err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func (c *Config) validate() error {
	var errs []string

	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		errs = append(errs, "smtp.port must be between 1 and 65535")
	}
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		errs = append(errs, "web.port must be between 1 and 65535")
	}
	if c.Admin.Username == "" {
		errs = append(errs, "admin.username is required")
	}
	if c.Admin.Password == "" {
		errs = append(errs, "admin.password is required")
	}
	if c.SMTP.Auth.Required && c.SMTP.Auth.Username == "" {
		errs = append(errs, "smtp.auth.username is required when smtp.auth.required is true")
	}
	if c.SMTP.TLS.Enabled {
		if _, err := os.Stat(c.SMTP.TLS.CertFile); err != nil {
			errs = append(errs, fmt.Sprintf("smtp.tls.cert_file not found: %s", c.SMTP.TLS.CertFile))
		}
		if _, err := os.Stat(c.SMTP.TLS.KeyFile); err != nil {
			errs = append(errs, fmt.Sprintf("smtp.tls.key_file not found: %s", c.SMTP.TLS.KeyFile))
		}
	}
	if c.Store.Path != "" {
		dir := filepath.Dir(c.Store.Path)
		if _, err := os.Stat(dir); err != nil {
			errs = append(errs, fmt.Sprintf("store.path directory not found: %s", dir))
		}
	}

	if len(errs) > 0 {
		msg := "configuration validation failed:"
		for _, e := range errs {
			msg += "\n  - " + e
		}
		return fmt.Errorf(msg)
	}
	return nil
}

// LogConfig logs the configuration in a human-friendly way, at startup.
func LogConfig(c *Config) {
	log.Infof("Configuration:")
	log.Infof("  SMTP address: %s", c.SMTP.Address())
	log.Infof("  SMTP domain: %q", c.SMTP.Domain)
	log.Infof("  SMTP systemd socket activation: %v", c.SMTP.Systemd)
	log.Infof("  Max message bytes: %d", c.SMTP.MaxMessageBytes)
	log.Infof("  Max recipients: %d", c.SMTP.MaxRecipients)
	log.Infof("  TLS enabled: %v", c.SMTP.TLS.Enabled)
	log.Infof("  Auth required: %v (user %q)", c.SMTP.Auth.Required, c.SMTP.Auth.Username)
	log.Infof("  Web address: %s", c.Web.Address())
	log.Infof("  Store path: %q (empty means memory-only)", c.Store.Path)
	log.Infof("  Admin user: %q", c.Admin.Username)
}
