package cli

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5"
	"gopkg.in/yaml.v3"
)

// UserConfig represents ~/.streamddl/config.yaml.
type UserConfig struct {
	CurrentProfile string             `yaml:"current-profile"`
	Profiles       map[string]Profile `yaml:"profiles"`
}

// Profile represents a single named configuration profile.
type Profile struct {
	URL       string `yaml:"url,omitempty"`
	Password  string `yaml:"password,omitempty"`
	Metastore string `yaml:"metastore,omitempty"`
	Output    string `yaml:"output,omitempty"`
}

// ActiveProfile returns the profile to use based on the override or
// current-profile. An unknown name yields an empty profile.
func (c *UserConfig) ActiveProfile(override string) Profile {
	name := c.CurrentProfile
	if override != "" {
		name = override
	}
	if p, ok := c.Profiles[name]; ok {
		return p
	}
	return Profile{}
}

// Validate rejects profiles that would fail on first use: a URL that is not
// a postgres:// connection string, or an unknown output format.
func (p Profile) Validate() error {
	if p.URL != "" {
		if err := validateURL(p.URL); err != nil {
			return err
		}
	}
	return validateOutputFormat(p.Output)
}

// validateURL checks raw the way exec will parse it. Errors never echo raw
// since it may carry a password.
func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		return errors.New("invalid url: expected postgres://[user@]host[:port]/database")
	}
	if u.Host == "" {
		return errors.New("invalid url: missing host")
	}
	if _, err := pgx.ParseConfig(raw); err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	return nil
}

func emptyUserConfig() *UserConfig {
	return &UserConfig{
		CurrentProfile: "default",
		Profiles:       map[string]Profile{},
	}
}

// ConfigDir returns the path to ~/.streamddl/.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".streamddl")
}

// ConfigPath returns the path to ~/.streamddl/config.yaml.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// LoadUserConfig reads ~/.streamddl/config.yaml.
func LoadUserConfig() (*UserConfig, error) {
	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg UserConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]Profile{}
	}
	return &cfg, nil
}

// SaveUserConfig writes ~/.streamddl/config.yaml.
func SaveUserConfig(cfg *UserConfig) error {
	if err := os.MkdirAll(ConfigDir(), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(ConfigPath(), data, 0o600)
}
