package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ansuz/internal/zettelid"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Vault      VaultConfig       `yaml:"vault"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Auth       AuthConfig        `yaml:"auth"`
	Classifier ClassifierConfig  `yaml:"classifier"`
	Organizer  OrganizerConfig   `yaml:"organizer"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Classifier.Validate(); err != nil {
		return err
	}
	return c.Organizer.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
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

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

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
	// Normalise empty mode to "disabled" for backward compatibility.
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

// ClassifierConfig holds the Gemini classifier configuration. APIKey is
// typically supplied via ${GEMINI_API_KEY} expansion in the YAML file.
type ClassifierConfig struct {
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MinInterval time.Duration `yaml:"min_interval"`
	MaxRetries  int           `yaml:"max_retries"`
}

// Validate validates the classifier configuration.
func (c *ClassifierConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxRetries, validation.Min(0), validation.Max(10)),
	)
}

// OrganizerConfig holds the organizer pipeline configuration.
type OrganizerConfig struct {
	InboxFolder    string        `yaml:"inbox_folder"`
	NotesFolder    string        `yaml:"notes_folder"`
	ZettelFolder   string        `yaml:"zettel_folder"`
	ProjectsFolder string        `yaml:"projects_folder"`
	IDScheme       string        `yaml:"id_scheme"`
	MergeThreshold float64       `yaml:"merge_threshold"`
	Quiescence     time.Duration `yaml:"quiescence"`
	Pacing         time.Duration `yaml:"pacing"`
}

// Validate validates the organizer configuration.
func (c *OrganizerConfig) Validate() error {
	if c.IDScheme != "" {
		if _, err := zettelid.ParseScheme(c.IDScheme); err != nil {
			return fmt.Errorf("organizer: %w", err)
		}
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.MergeThreshold, validation.Min(0.0), validation.Max(1.0)),
	)
}

// Scheme returns the configured identifier scheme (date-seq when unset).
func (c *OrganizerConfig) Scheme() zettelid.Scheme {
	if c.IDScheme == "" {
		return zettelid.SchemeDateSeq
	}
	s, err := zettelid.ParseScheme(c.IDScheme)
	if err != nil {
		return zettelid.SchemeDateSeq
	}
	return s
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
		Vault: VaultConfig{
			Path: "./vault",
		},
		SQLite: SQLiteConfig{
			Path: "./ansuz.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Classifier: ClassifierConfig{
			Model:       "",
			MinInterval: time.Second,
			MaxRetries:  3,
		},
		Organizer: OrganizerConfig{
			InboxFolder:    "inbox",
			NotesFolder:    "notes",
			ZettelFolder:   "zettel",
			ProjectsFolder: "projects",
			IDScheme:       "date-seq",
			MergeThreshold: 0.8,
			Quiescence:     3 * time.Second,
			Pacing:         500 * time.Millisecond,
		},
	}
}
