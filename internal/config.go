package internal

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app" toml:"app"`
	Data   DataConfig        `yaml:"data_paths" toml:"data_paths"`
	Search SearchConfig      `yaml:"search" toml:"search"`
	Watch  WatchConfig       `yaml:"watch" toml:"watch"`
	Auth   AuthConfig        `yaml:"auth" toml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Data.Validate(); err != nil {
		return err
	}
	if err := c.Search.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level" toml:"log_level"`
	HTTP     HTTPConfig `yaml:"http" toml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// DataConfig locates the record stores, the skills directory and the index.
type DataConfig struct {
	KnowledgeDir string `yaml:"knowledge_dir" toml:"knowledge_dir"`
	SessionsDir  string `yaml:"sessions_dir" toml:"sessions_dir"`
	SkillsDir    string `yaml:"skills_dir" toml:"skills_dir"`
	DBPath       string `yaml:"db_path" toml:"db_path"`
}

// Validate validates the data paths.
func (c *DataConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.KnowledgeDir, validation.Required),
		validation.Field(&c.SessionsDir, validation.Required),
		validation.Field(&c.SkillsDir, validation.Required),
		validation.Field(&c.DBPath, validation.Required),
	)
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit" toml:"default_limit"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DefaultLimit, validation.Min(0), validation.Max(1000)),
	)
}

// Limit returns the configured default limit, or fallback when unset.
func (c *SearchConfig) Limit(fallback int) int {
	if c.DefaultLimit > 0 {
		return c.DefaultLimit
	}
	return fallback
}

// WatchConfig controls how external edits to the data trees reach the
// index. Both are off by default; `reindex` is the explicit path.
type WatchConfig struct {
	Enabled     bool `yaml:"enabled" toml:"enabled"`
	SyncOnStart bool `yaml:"sync_on_start" toml:"sync_on_start"`
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode" toml:"mode"`
	Token string `yaml:"token" toml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// BearerToken returns the token the API must require, or "" when
// authentication is disabled.
func (c *AuthConfig) BearerToken() string {
	if !c.AuthEnabled() {
		return ""
	}
	return c.Token
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Host: "127.0.0.1",
				Port: 8787,
			},
		},
		Data: DataConfig{
			KnowledgeDir: "./data/knowledge",
			SessionsDir:  "./data/sessions",
			SkillsDir:    "./skills",
			DBPath:       "./data/index.db",
		},
		Search: SearchConfig{
			DefaultLimit: 20,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
