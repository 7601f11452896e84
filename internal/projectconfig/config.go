// Package projectconfig provides the ProjectConfig struct and loader for
// .evalforge.yaml configuration files.
package projectconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spboyer/evalforge/internal/models"
	"github.com/spboyer/evalforge/internal/validation"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up by Load.
const FileName = ".evalforge.yaml"

// Default values for project configuration. These are the single source of
// truth; New() references them and no other code should duplicate them.
const (
	DefaultServerHost = "127.0.0.1"
	DefaultServerPort = 8000

	DefaultAuthMode    = "static"
	DefaultUsername    = "admin"
	DefaultPassword    = "password"
	DefaultAccessToken = "fake-token"
	DefaultJWTExpiry   = "1h"

	DefaultStoreDriver = "memory"
	DefaultStorePath   = "evalforge.db"

	DefaultEvaluationTimeout = 30
	DefaultEvaluationMode    = "peer"
	DefaultEvaluationWorkers = 4

	DefaultMaxRetries     = 2
	DefaultResponseFormat = "letter"

	DefaultExportFormat = "csv"
)

// Environment variables that override secrets from the file.
const (
	EnvPassword    = "EVALFORGE_PASSWORD"
	EnvAccessToken = "EVALFORGE_ACCESS_TOKEN"
	EnvJWTSecret   = "EVALFORGE_JWT_SECRET"
	EnvStorePath   = "EVALFORGE_DB"
)

// ServerConfig holds API server settings.
type ServerConfig struct {
	Host           string   `yaml:"host,omitempty"`
	Port           int      `yaml:"port,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// AuthConfig holds login and token settings.
type AuthConfig struct {
	Mode        string `yaml:"mode,omitempty"`
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	AccessToken string `yaml:"access_token,omitempty"`
	JWTSecret   string `yaml:"jwt_secret,omitempty"`
	JWTExpiry   string `yaml:"jwt_expiry,omitempty"`
}

// Expiry parses JWTExpiry, falling back to DefaultJWTExpiry.
func (a AuthConfig) Expiry() time.Duration {
	if d, err := time.ParseDuration(a.JWTExpiry); err == nil && d > 0 {
		return d
	}
	d, _ := time.ParseDuration(DefaultJWTExpiry)
	return d
}

// StoreConfig selects the storage backend.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"`
	Path   string `yaml:"path,omitempty"`
}

// EvaluationConfig holds aggregator settings. Timeout is per answer, in seconds.
type EvaluationConfig struct {
	Timeout int    `yaml:"timeout,omitempty"`
	Mode    string `yaml:"mode,omitempty"`
	Workers int    `yaml:"workers,omitempty"`
}

// TimeoutDuration returns Timeout as a duration. Zero disables the timeout.
func (e EvaluationConfig) TimeoutDuration() time.Duration {
	return time.Duration(e.Timeout) * time.Second
}

// ModelConfig holds defaults for newly registered models.
type ModelConfig struct {
	MaxRetries     *int   `yaml:"max_retries,omitempty"`
	ResponseFormat string `yaml:"response_format,omitempty"`
}

// AnalyticsConfig holds reporting settings.
type AnalyticsConfig struct {
	EnableANOVA  *bool  `yaml:"enable_anova,omitempty"`
	ExportFormat string `yaml:"export_format,omitempty"`
}

// ProjectConfig is the top-level configuration loaded from .evalforge.yaml.
type ProjectConfig struct {
	Server         ServerConfig     `yaml:"server,omitempty"`
	Auth           AuthConfig       `yaml:"auth,omitempty"`
	Store          StoreConfig      `yaml:"store,omitempty"`
	Evaluation     EvaluationConfig `yaml:"evaluation,omitempty"`
	Model          ModelConfig      `yaml:"model,omitempty"`
	Analytics      AnalyticsConfig  `yaml:"analytics,omitempty"`
	KnowledgeUnits []string         `yaml:"knowledge_units,omitempty"`

	// Path is the file the config was loaded from, empty for defaults.
	Path string `yaml:"-"`
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	return &ProjectConfig{
		Server: ServerConfig{
			Host: DefaultServerHost,
			Port: DefaultServerPort,
		},
		Auth: AuthConfig{
			Mode:        DefaultAuthMode,
			Username:    DefaultUsername,
			Password:    DefaultPassword,
			AccessToken: DefaultAccessToken,
			JWTExpiry:   DefaultJWTExpiry,
		},
		Store: StoreConfig{
			Driver: DefaultStoreDriver,
			Path:   DefaultStorePath,
		},
		Evaluation: EvaluationConfig{
			Timeout: DefaultEvaluationTimeout,
			Mode:    DefaultEvaluationMode,
			Workers: DefaultEvaluationWorkers,
		},
		Model: ModelConfig{
			MaxRetries:     intPtr(DefaultMaxRetries),
			ResponseFormat: DefaultResponseFormat,
		},
		Analytics: AnalyticsConfig{
			EnableANOVA:  boolPtr(false),
			ExportFormat: DefaultExportFormat,
		},
		KnowledgeUnits: slices.Clone(models.DefaultKnowledgeUnits),
	}
}

// Load finds .evalforge.yaml by walking up from startDir (max 10 levels),
// validates it against the schema, unmarshals it, and fills in missing
// fields with defaults. If no config file is found, returns defaults with a
// nil error. Environment overrides are applied last.
func Load(startDir string) (*ProjectConfig, error) {
	path, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := New()
			cfg.ApplyEnv(os.LookupEnv)
			return cfg, nil // no file found → return defaults
		}
		return nil, fmt.Errorf("loading %s: %w", FileName, err)
	}
	return LoadFile(path)
}

// LoadFile loads the configuration at path.
func LoadFile(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// Parse validates and decodes raw YAML onto the defaults.
func Parse(data []byte) (*ProjectConfig, error) {
	if errs := validation.ValidateConfigBytes(data); len(errs) > 0 {
		return nil, &SchemaError{Errors: errs}
	}

	var fileCfg ProjectConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}

	cfg := New()
	// Merge file values onto defaults.
	mergeConfig(cfg, &fileCfg)
	return cfg, nil
}

// SchemaError lists every schema violation found in a config file.
type SchemaError struct {
	Errors []string
}

func (e *SchemaError) Error() string {
	return "invalid configuration:\n  " + strings.Join(e.Errors, "\n  ")
}

// ApplyEnv overrides secrets and the database path from the environment.
func (c *ProjectConfig) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvPassword); ok && v != "" {
		c.Auth.Password = v
	}
	if v, ok := lookup(EnvAccessToken); ok && v != "" {
		c.Auth.AccessToken = v
	}
	if v, ok := lookup(EnvJWTSecret); ok && v != "" {
		c.Auth.JWTSecret = v
	}
	if v, ok := lookup(EnvStorePath); ok && v != "" {
		c.Store.Path = v
	}
}

// Marshal renders the config as YAML.
func (c *ProjectConfig) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// findConfigFile walks up from dir looking for .evalforge.yaml (max 10 levels).
// Returns os.ErrNotExist if no config file is found. Propagates real I/O
// errors (e.g. permission denied) instead of silently swallowing them.
func findConfigFile(dir string) (string, error) {
	// Convert to absolute path so filepath.Dir(".") walks correctly.
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, FileName)
		_, err := os.Stat(p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached filesystem root
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *ProjectConfig) {
	// Server
	if src.Server.Host != "" {
		dst.Server.Host = src.Server.Host
	}
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	if len(src.Server.AllowedOrigins) > 0 {
		dst.Server.AllowedOrigins = src.Server.AllowedOrigins
	}

	// Auth
	if src.Auth.Mode != "" {
		dst.Auth.Mode = src.Auth.Mode
	}
	if src.Auth.Username != "" {
		dst.Auth.Username = src.Auth.Username
	}
	if src.Auth.Password != "" {
		dst.Auth.Password = src.Auth.Password
	}
	if src.Auth.AccessToken != "" {
		dst.Auth.AccessToken = src.Auth.AccessToken
	}
	if src.Auth.JWTSecret != "" {
		dst.Auth.JWTSecret = src.Auth.JWTSecret
	}
	if src.Auth.JWTExpiry != "" {
		dst.Auth.JWTExpiry = src.Auth.JWTExpiry
	}

	// Store
	if src.Store.Driver != "" {
		dst.Store.Driver = src.Store.Driver
	}
	if src.Store.Path != "" {
		dst.Store.Path = src.Store.Path
	}

	// Evaluation
	if src.Evaluation.Timeout != 0 {
		dst.Evaluation.Timeout = src.Evaluation.Timeout
	}
	if src.Evaluation.Mode != "" {
		dst.Evaluation.Mode = src.Evaluation.Mode
	}
	if src.Evaluation.Workers != 0 {
		dst.Evaluation.Workers = src.Evaluation.Workers
	}

	// Model
	if src.Model.MaxRetries != nil {
		dst.Model.MaxRetries = src.Model.MaxRetries
	}
	if src.Model.ResponseFormat != "" {
		dst.Model.ResponseFormat = src.Model.ResponseFormat
	}

	// Analytics
	if src.Analytics.EnableANOVA != nil {
		dst.Analytics.EnableANOVA = src.Analytics.EnableANOVA
	}
	if src.Analytics.ExportFormat != "" {
		dst.Analytics.ExportFormat = src.Analytics.ExportFormat
	}

	if len(src.KnowledgeUnits) > 0 {
		dst.KnowledgeUnits = src.KnowledgeUnits
	}
}

func boolPtr(b bool) *bool {
	return &b
}

func intPtr(i int) *int {
	return &i
}
