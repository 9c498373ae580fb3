package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aaronromeo/epar/pkg/base"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath = "epar.toml"

	EnvConfig = "EPAR_CONFIG"
	envDomain = "EPAR_IMAP_DOMAIN"
	envEmail  = "EPAR_IMAP_USER"
	envOutput = "EPAR_OUTPUT_FILE"
	envHook   = "EPAR_WEBHOOK_URL"
)

// Settings holds the non-secret run configuration. The password is never
// read from the settings file.
type Settings struct {
	Domain     string   `toml:"domain" yaml:"domain"`
	Email      string   `toml:"email" yaml:"email"`
	Mailbox    string   `toml:"mailbox" yaml:"mailbox"`
	Subject    string   `toml:"subject" yaml:"subject"`
	Fields     []string `toml:"fields" yaml:"fields"`
	Separator  string   `toml:"separator" yaml:"separator"`
	OutputFile string   `toml:"output_file" yaml:"output_file"`
	WebhookURL string   `toml:"webhook_url" yaml:"webhook_url"`
}

// Load reads settings from a TOML or YAML file, chosen by extension.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, base.NewError(base.ConfigError, "config.Load", err)
	}

	var cfg Settings
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&cfg)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err = dec.Decode(&cfg); errors.Is(err, io.EOF) {
			err = nil
		}
	default:
		return Settings{}, base.Errorf(base.ConfigError, "config.Load", "unsupported settings format %q", ext)
	}
	if err != nil {
		return Settings{}, base.NewError(base.ConfigError, "config.Load", fmt.Errorf("parse %s: %w", path, err))
	}

	return cfg, nil
}

// ApplyEnv lets the environment override where to connect and write.
func ApplyEnv(cfg *Settings) {
	if v := strings.TrimSpace(os.Getenv(envDomain)); v != "" {
		cfg.Domain = v
	}
	if v := strings.TrimSpace(os.Getenv(envEmail)); v != "" {
		cfg.Email = v
	}
	if v := strings.TrimSpace(os.Getenv(envOutput)); v != "" {
		cfg.OutputFile = v
	}
	if v := strings.TrimSpace(os.Getenv(envHook)); v != "" {
		cfg.WebhookURL = v
	}
}

// Validate checks required settings and fills in defaults.
func Validate(cfg *Settings) error {
	missing := []string{}
	if strings.TrimSpace(cfg.Domain) == "" {
		missing = append(missing, "domain")
	}
	if strings.TrimSpace(cfg.Email) == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(cfg.Subject) == "" {
		missing = append(missing, "subject")
	}
	if len(cfg.Fields) == 0 {
		missing = append(missing, "fields")
	}
	if strings.TrimSpace(cfg.OutputFile) == "" {
		missing = append(missing, "output_file")
	}
	if len(missing) > 0 {
		return base.Errorf(base.ConfigError, "config.Validate", "missing required settings: %s", strings.Join(missing, ", "))
	}

	for i, field := range cfg.Fields {
		if strings.TrimSpace(field) == "" {
			return base.Errorf(base.ConfigError, "config.Validate", "field %d is blank", i+1)
		}
		if strings.ContainsAny(field, "\r\n") {
			return base.Errorf(base.ConfigError, "config.Validate", "field %q spans lines", field)
		}
	}

	cfg.Domain = strings.TrimSpace(cfg.Domain)
	cfg.Mailbox = defaultIfEmpty(cfg.Mailbox, base.DefaultMailbox)
	if cfg.Separator == "" {
		cfg.Separator = base.DefaultSeparator
	}

	return nil
}

// Summary returns a concise, secret-free description of the settings.
func Summary(cfg Settings) string {
	return fmt.Sprintf(
		"Settings summary\n"+
			"- server: %s\n"+
			"- account: %s\n"+
			"- mailbox: %s\n"+
			"- subject: %q\n"+
			"- fields: %s\n"+
			"- output: %s",
		cfg.Domain,
		cfg.Email,
		defaultIfEmpty(cfg.Mailbox, base.DefaultMailbox),
		cfg.Subject,
		strings.Join(cfg.Fields, ", "),
		cfg.OutputFile,
	)
}

func defaultIfEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
