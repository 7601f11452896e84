package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spboyer/evalforge/internal/dataset"
	"github.com/spboyer/evalforge/internal/projectconfig"
	"github.com/spboyer/evalforge/internal/store"
	"github.com/spboyer/evalforge/internal/webapi"
	"github.com/spboyer/evalforge/internal/webserver"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	host     string
	port     int
	driver   string
	dbPath   string
	seedFile string
	config   string
}

func newServeCommand() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the EvalForge HTTP API",
		Long: `Start the EvalForge HTTP API.

Settings come from .evalforge.yaml (found by walking up from the current
directory) and can be overridden with flags. Every route is served both at
the root and under /api. Prometheus metrics are exposed at /metrics.

Use --seed to load questions from a CSV file (columns id,text,options,correct,ku)
into the store before serving.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.config)
			if err != nil {
				return err
			}
			applyServeFlags(cmd, cfg, opts)
			return serve(cmd.Context(), cfg, opts.seedFile, slog.Default())
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", projectconfig.DefaultServerHost, "Address to bind")
	cmd.Flags().IntVarP(&opts.port, "port", "p", projectconfig.DefaultServerPort, "Port to listen on")
	cmd.Flags().StringVar(&opts.driver, "store", projectconfig.DefaultStoreDriver, "Store driver: memory or sqlite")
	cmd.Flags().StringVar(&opts.dbPath, "db", projectconfig.DefaultStorePath, "SQLite database path")
	cmd.Flags().StringVar(&opts.seedFile, "seed", "", "CSV file of questions to load at startup")
	cmd.Flags().StringVar(&opts.config, "config", "", "Path to a config file (default: search for "+projectconfig.FileName+")")

	return cmd
}

// loadConfig reads path when given, otherwise searches from the working directory.
func loadConfig(path string) (*projectconfig.ProjectConfig, error) {
	if path != "" {
		return projectconfig.LoadFile(path)
	}
	return projectconfig.Load(".")
}

// applyServeFlags lets explicitly set flags win over the config file.
func applyServeFlags(cmd *cobra.Command, cfg *projectconfig.ProjectConfig, opts serveOptions) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = opts.host
	}
	if flags.Changed("port") {
		cfg.Server.Port = opts.port
	}
	if flags.Changed("store") {
		cfg.Store.Driver = opts.driver
	}
	if flags.Changed("db") {
		// Flag paths are relative to the working directory, not the config file.
		cfg.Store.Path = opts.dbPath
		if abs, err := filepath.Abs(opts.dbPath); err == nil {
			cfg.Store.Path = abs
		}
		if !flags.Changed("store") {
			cfg.Store.Driver = "sqlite"
		}
	}
}

// newServer wires the configured store, verifier and evaluation service into
// a webserver. The caller closes the returned store.
func newServer(ctx context.Context, cfg *projectconfig.ProjectConfig, seedFile string, logger *slog.Logger) (*webserver.Server, store.Store, error) {
	verifier, err := cfg.Verifier()
	if err != nil {
		return nil, nil, err
	}

	st, err := cfg.OpenStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	if seedFile != "" {
		n, err := seedQuestions(ctx, st, seedFile)
		if err != nil {
			st.Close() //nolint:errcheck
			return nil, nil, err
		}
		logger.Info("seeded questions", "file", seedFile, "count", n)
	}

	webapi.Version = version
	srv, err := webserver.New(webserver.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		API: webapi.Deps{
			Store:          st,
			Verifier:       verifier,
			KnowledgeUnits: cfg.KnowledgeUnits,
			ModelDefaults:  cfg.ModelDefaults(),
		},
		Evaluation: cfg.ServiceOptions(logger),
		Logger:     logger,
	})
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, nil, err
	}
	return srv, st, nil
}

func serve(ctx context.Context, cfg *projectconfig.ProjectConfig, seedFile string, logger *slog.Logger) error {
	srv, st, err := newServer(ctx, cfg, seedFile, logger)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	logger.Info("starting EvalForge", "address", srv.Addr(), "store", cfg.Store.Driver, "auth", cfg.Auth.Mode)
	return srv.ListenAndServe(ctx)
}

// seedQuestions stores every question in path. IDs are reassigned by the store.
func seedQuestions(ctx context.Context, st store.Store, path string) (int, error) {
	qs, err := dataset.LoadQuestions(path)
	if err != nil {
		return 0, err
	}
	for i := range qs {
		q := qs[i]
		if err := st.CreateQuestion(ctx, &q); err != nil {
			return i, fmt.Errorf("seeding question %d: %w", qs[i].ID, err)
		}
	}
	return len(qs), nil
}
