package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spboyer/evalforge/internal/projectconfig"
	"github.com/spboyer/evalforge/internal/wizard"
	"github.com/spf13/cobra"
)

func newInitCommand() *cobra.Command {
	var (
		force         bool
		noInteractive bool
	)

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Create a " + projectconfig.FileName + " configuration file",
		Long: `Create a ` + projectconfig.FileName + ` configuration file.

By default a short wizard asks for the server, store and evaluation settings.
Use --no-interactive to write the defaults instead. An existing file is only
replaced when --force is given.

If no directory is specified, the current directory is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return initCommandE(cmd, dir, force, !noInteractive)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")
	cmd.Flags().BoolVar(&noInteractive, "no-interactive", false, "Write defaults without prompting")

	return cmd
}

func initCommandE(cmd *cobra.Command, dir string, force, interactive bool) error {
	// Create the root directory if it doesn't exist
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, projectconfig.FileName)
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", path, err)
	}

	cfg := projectconfig.New()
	if interactive {
		if err := wizard.RunInitWizard(cmd.InOrStdin(), cmd.OutOrStdout(), cfg); err != nil {
			return err
		}
	}

	data, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	// Round-trip through the loader so a bad answer never produces an unloadable file.
	if _, err := projectconfig.Parse(data); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path) //nolint:errcheck
	return nil
}
