package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/arbor/internal/connector/filesystem"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Connector kinds.
const (
	ConnectorInMemory   = "inmemory"
	ConnectorFilesystem = "filesystem"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Source     SourceConfig      `yaml:"source"`
	Filesystem FilesystemConfig  `yaml:"filesystem"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Auth       AuthConfig        `yaml:"auth"`
	Seed       SeedConfig        `yaml:"seed"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if c.Source.Connector == ConnectorFilesystem {
		if err := c.Filesystem.Validate(); err != nil {
			return fmt.Errorf("filesystem: %w", err)
		}
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	// LogFile, when set, receives the JSON log through a rotating writer
	// in addition to stdout.
	LogFile string     `yaml:"log_file"`
	HTTP    HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SourceConfig describes the one repository source served by the process.
type SourceConfig struct {
	Name      string `yaml:"name"`
	Connector string `yaml:"connector"`
	// RootUUID is shared by every workspace root. Empty derives a stable
	// value from Name.
	RootUUID             string        `yaml:"root_uuid"`
	DefaultWorkspace     string        `yaml:"default_workspace"`
	PredefinedWorkspaces []string      `yaml:"predefined_workspaces"`
	UpdatesAllowed       bool          `yaml:"updates_allowed"`
	RetryLimit           int           `yaml:"retry_limit"`
	LockTimeout          time.Duration `yaml:"lock_timeout"`
	CacheTTL             time.Duration `yaml:"cache_ttl"`
}

// Validate validates the source configuration.
func (c *SourceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.Connector, validation.Required, validation.In(ConnectorInMemory, ConnectorFilesystem)),
		validation.Field(&c.RootUUID, validation.By(isUUID)),
		validation.Field(&c.DefaultWorkspace, validation.Required),
		validation.Field(&c.RetryLimit, validation.Min(0)),
		validation.Field(&c.LockTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.CacheTTL, validation.Min(time.Duration(0))),
	)
}

// Root returns the configured root UUID or one derived from the source name.
func (c *SourceConfig) Root() uuid.UUID {
	if id, err := uuid.Parse(c.RootUUID); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("arbor:"+c.Name))
}

func isUUID(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := uuid.Parse(s); err != nil {
		return fmt.Errorf("must be a UUID")
	}
	return nil
}

// FilesystemConfig configures the filesystem connector.
type FilesystemConfig struct {
	// Path holds one sub-directory per workspace.
	Path            string                     `yaml:"path"`
	ExtraProperties filesystem.ExtraProperties `yaml:"extra_properties"`
}

// Validate validates the filesystem configuration.
func (c *FilesystemConfig) Validate() error {
	if c.ExtraProperties == "" {
		c.ExtraProperties = filesystem.ExtraIgnore
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.ExtraProperties, validation.In(filesystem.ExtraIgnore, filesystem.ExtraError)),
	)
}

// SQLiteConfig holds SQLite database configuration. An empty path keeps the
// in-memory connector volatile and disables full-text search.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Enabled reports whether snapshots are persisted.
func (c *SQLiteConfig) Enabled() bool { return c.Path != "" }

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
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

// SeedConfig names a YAML document imported into the default workspace when
// it is empty at start-up.
type SeedConfig struct {
	Path string `yaml:"path"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Source: SourceConfig{
			Name:             "arbor",
			Connector:        ConnectorInMemory,
			DefaultWorkspace: "default",
			UpdatesAllowed:   true,
			LockTimeout:      5 * time.Second,
		},
		Filesystem: FilesystemConfig{
			Path:            "./content",
			ExtraProperties: filesystem.ExtraIgnore,
		},
		SQLite: SQLiteConfig{
			Path: "./arbor.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
