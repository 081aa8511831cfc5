package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rpattn/invoiceflow/internal/app"
	"github.com/rpattn/invoiceflow/internal/config"
	"github.com/rpattn/invoiceflow/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var errWriter io.Writer = os.Stderr

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "invoicectl",
		Short:         "Manage invoice uploads, mappings and batch inserts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", ".", "Directory containing config.yaml and .env")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(
		newMigrateCmd(opts),
		newUploadsCmd(opts),
		newUploadCmd(opts),
		newProposeCmd(opts),
		newConfirmCmd(opts),
	)
	return cmd
}

// load reads the configuration and builds a logger writing to stderr so command
// output on stdout stays machine readable.
func (o *rootOptions) load() (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if o.verbose {
		cfg.Log.Level = "debug"
	}
	cfg.Log.File = ""
	logger, _, err := logging.New(cfg.Log)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger.SetOutput(errWriter)
	return cfg, logger, nil
}

func (o *rootOptions) withApp(ctx context.Context, fn func(*app.App) error) error {
	cfg, logger, err := o.load()
	if err != nil {
		return err
	}
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()
	return fn(application)
}

func printJSON(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
