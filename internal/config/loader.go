package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AMPA"

// DefaultPath is the project config file used when no path is given.
func DefaultPath() string {
	return filepath.Join(".ampa", "config.yaml")
}

// Load builds the configuration from defaults, then the YAML file at path,
// then AMPA_* environment variables. An empty path means DefaultPath, which
// may be absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	v := viper.New()
	v.SetConfigType("yaml")

	// Seed viper with the defaults so every key is known to AutomaticEnv.
	base, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("encode defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(base)); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	var raw []byte
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if raw, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.restoreKeyCase(raw); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize replaces maps that viper drops when empty.
func (c *Config) normalize() {
	if c.Job.CooldownByStatus == nil {
		c.Job.CooldownByStatus = map[string]time.Duration{}
	}
	if c.Job.Completion.Flags == nil {
		c.Job.Completion.Flags = map[string]string{}
	}
}

// keyCaseView selects the user-keyed maps of the config file.
type keyCaseView struct {
	Job struct {
		CooldownByStatus map[string]yaml.Node `yaml:"cooldown_by_status"`
		Completion       struct {
			Flags map[string]yaml.Node `yaml:"flags"`
		} `yaml:"completion"`
	} `yaml:"job"`
}

// restoreKeyCase re-keys maps whose keys viper lowercased, using the
// spelling from the config file. Values keep viper's decoding so env
// overrides still apply.
func (c *Config) restoreKeyCase(raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	var view keyCaseView
	if err := yaml.Unmarshal(raw, &view); err != nil {
		return err
	}
	c.Job.Completion.Flags = rekey(c.Job.Completion.Flags, view.Job.Completion.Flags)
	c.Job.CooldownByStatus = rekey(c.Job.CooldownByStatus, view.Job.CooldownByStatus)
	return nil
}

func rekey[V any](decoded map[string]V, file map[string]yaml.Node) map[string]V {
	for key := range file {
		lower := strings.ToLower(key)
		if key == lower {
			continue
		}
		if val, ok := decoded[lower]; ok {
			delete(decoded, lower)
			decoded[key] = val
		}
	}
	return decoded
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Job.ID) == "":
		return errors.New("config: job.id is required")
	case len(c.Job.Stages) == 0:
		return errors.New("config: job.stages must name at least one stage")
	case c.Job.Cooldown < 0:
		return errors.New("config: job.cooldown must not be negative")
	case c.Job.CommentThreshold <= 0:
		return errors.New("config: job.comment_threshold must be positive")
	case len(c.Audit.Command) == 0:
		return errors.New("config: audit.command is required")
	}
	for status, d := range c.Job.CooldownByStatus {
		if d < 0 {
			return fmt.Errorf("config: job.cooldown_by_status.%s must not be negative", status)
		}
	}
	switch c.Cooldown.Backend {
	case "json", "sqlite":
	case "redis":
		if c.Cooldown.RedisURL == "" {
			return errors.New("config: cooldown.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("config: unknown cooldown.backend %q", c.Cooldown.Backend)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log.format %q", c.Log.Format)
	}
	return nil
}

// AuditTimeout is audit.timeout, falling back to command_timeout.
func (c *Config) AuditTimeout() time.Duration {
	if c.Audit.Timeout > 0 {
		return c.Audit.Timeout
	}
	return c.CommandTimeout
}

// Render returns the effective configuration as YAML.
func (c *Config) Render() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("render config: %w", err)
	}
	return string(out), nil
}
