// Package config provides configuration types and defaults for sopreg.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/soplang/registry/internal/store"
)

// ErrMissingToken is returned when a commit must be published but no access
// token was configured.
var ErrMissingToken = errors.New("GH_PAT is not set: an access token is required to publish changes")

// Environment variables read once at load time.
const (
	EnvToken      = "GH_PAT"
	EnvRepository = "GITHUB_REPOSITORY"
	EnvPrefix     = "SOPREG"
)

// Config holds all configuration options for sopreg.
type Config struct {
	RegistryPath   string        `mapstructure:"registry_path"`
	DescriptorFile string        `mapstructure:"descriptor_file"`
	Branch         string        `mapstructure:"branch"`
	UserAgent      string        `mapstructure:"user_agent"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	Git            GitConfig     `mapstructure:"git"`
	Log            LogConfig     `mapstructure:"log"`
}

// GitConfig holds the identity and credentials used to publish registry changes.
type GitConfig struct {
	UserName   string `mapstructure:"user_name"`
	UserEmail  string `mapstructure:"user_email"`
	Token      string `mapstructure:"token"`
	Repository string `mapstructure:"repository"` // owner/name on github.com
	Remote     string `mapstructure:"remote"`
}

// LogConfig holds logging options.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" (default) or "json"
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		RegistryPath:   store.DefaultPath,
		DescriptorFile: "sop.toml",
		Branch:         "main",
		UserAgent:      "sopreg/1.0",
		Timeout:        30 * time.Second,
		MaxRetries:     0,
		CacheTTL:       5 * time.Minute,
		Git: GitConfig{
			UserName:   "soplang-bot",
			UserEmail:  "actions@soplang.org",
			Repository: "soplang/registry",
			Remote:     "origin",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("registry_path", d.RegistryPath)
	v.SetDefault("descriptor_file", d.DescriptorFile)
	v.SetDefault("branch", d.Branch)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("max_retries", d.MaxRetries)
	v.SetDefault("cache_ttl", d.CacheTTL)
	v.SetDefault("git.user_name", d.Git.UserName)
	v.SetDefault("git.user_email", d.Git.UserEmail)
	v.SetDefault("git.token", d.Git.Token)
	v.SetDefault("git.repository", d.Git.Repository)
	v.SetDefault("git.remote", d.Git.Remote)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load reads configuration from v, the optional YAML file at path and the
// environment. GH_PAT and GITHUB_REPOSITORY feed git.token and
// git.repository; any other key can be set as SOPREG_<KEY>, e.g.
// SOPREG_GIT_USER_NAME.
func Load(v *viper.Viper, path string) (Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("git.token", EnvToken)
	_ = v.BindEnv("git.repository", EnvRepository)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail far from their source.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	if strings.TrimSpace(c.DescriptorFile) == "" {
		return errors.New("descriptor_file must not be empty")
	}
	return nil
}

// RequireToken returns ErrMissingToken unless a token is configured.
func (g GitConfig) RequireToken() error {
	if strings.TrimSpace(g.Token) == "" {
		return ErrMissingToken
	}
	return nil
}

// RemoteURL is the authenticated https remote for the target repository.
func (g GitConfig) RemoteURL() string {
	return fmt.Sprintf("https://x-access-token:%s@github.com/%s.git", g.Token, g.Repository)
}
