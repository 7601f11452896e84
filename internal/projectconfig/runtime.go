package projectconfig

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spboyer/evalforge/internal/agents"
	"github.com/spboyer/evalforge/internal/auth"
	"github.com/spboyer/evalforge/internal/evaluation"
	"github.com/spboyer/evalforge/internal/models"
	"github.com/spboyer/evalforge/internal/store"
	"github.com/spboyer/evalforge/internal/webapi"
)

// Verifier builds the auth.Verifier selected by Auth.Mode.
func (c *ProjectConfig) Verifier() (auth.Verifier, error) {
	creds := auth.Credentials{Username: c.Auth.Username, Password: c.Auth.Password}
	switch c.Auth.Mode {
	case "", "static":
		return auth.NewStatic(creds, c.Auth.AccessToken), nil
	case "jwt":
		return auth.NewJWT(creds, c.Auth.JWTSecret, c.Auth.Expiry())
	default:
		return nil, fmt.Errorf("unknown auth mode %q", c.Auth.Mode)
	}
}

// OpenStore opens the store selected by Store.Driver. The caller closes it.
func (c *ProjectConfig) OpenStore(ctx context.Context) (store.Store, error) {
	switch c.Store.Driver {
	case "", "memory":
		return store.NewMemory(), nil
	case "sqlite":
		return store.OpenSQLite(ctx, c.StorePath())
	default:
		return nil, fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
}

// StorePath returns Store.Path, resolved against the directory of the config
// file when it is relative. Absolute paths and defaults are returned unchanged.
func (c *ProjectConfig) StorePath() string {
	p := c.Store.Path
	if p == "" || filepath.IsAbs(p) || c.Path == "" {
		return p
	}
	return filepath.Join(filepath.Dir(c.Path), p)
}

// ServiceOptions maps the evaluation and analytics sections onto
// evaluation.ServiceOptions.
func (c *ProjectConfig) ServiceOptions(logger *slog.Logger) evaluation.ServiceOptions {
	anova := c.Analytics.EnableANOVA != nil && *c.Analytics.EnableANOVA
	return evaluation.ServiceOptions{
		Evaluator: evaluation.Options{
			Workers: c.Evaluation.Workers,
			Timeout: c.Evaluation.TimeoutDuration(),
			Logger:  logger,
		},
		Analytics: agents.Analytics{
			EnableANOVA:  anova,
			ExportFormat: c.Analytics.ExportFormat,
		},
		DefaultMode:   c.Evaluation.Mode,
		BenchmarkSeed: -1,
		Logger:        logger,
	}
}

// ModelDefaults returns the settings applied to newly registered models.
func (c *ProjectConfig) ModelDefaults() webapi.ModelDefaults {
	d := webapi.ModelDefaults{
		MaxRetries:     DefaultMaxRetries,
		ResponseFormat: models.ResponseFormat(c.Model.ResponseFormat),
	}
	if c.Model.MaxRetries != nil {
		d.MaxRetries = *c.Model.MaxRetries
	}
	return d
}
