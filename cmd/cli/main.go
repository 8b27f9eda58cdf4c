package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	bq "github.com/saveplus/saveplus/internal/bigquery"
	"github.com/saveplus/saveplus/internal/config"
	"github.com/saveplus/saveplus/internal/infra"
	"github.com/saveplus/saveplus/internal/logger"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cliContext holds the persistent flags shared by every subcommand.
type cliContext struct {
	configPath string
	userID     string
	timeout    time.Duration

	cfg *config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cliContext{}

	root := &cobra.Command{
		Use:   "saveplus",
		Short: "$ave+ subscription tools",
		Long: `Operator tools for the $ave+ subscription detector.

Run detection and zombie scoring for a single user, inspect what is stored,
try the voice parser, list anomalies and push bank-sync exports.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init(cmd)
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", os.Getenv("SAVEPLUS_CONFIG"), "Path to YAML config (or set SAVEPLUS_CONFIG env)")
	root.PersistentFlags().StringVarP(&c.userID, "user", "u", "", "User ID")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 5*time.Minute, "Operation timeout")

	root.AddCommand(
		newDetectCmd(c),
		newScoreCmd(c),
		newInspectCmd(c),
		newVoiceCmd(c),
		newAnomaliesCmd(c),
		newIngestCmd(c),
		newUploadCmd(c),
	)
	return root
}

func (c *cliContext) init(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	c.cfg = cfg

	log, err := logger.NewWithOptions(cmd.ErrOrStderr(), logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		log.Warn().Err(err).Msg("Invalid logging options, using defaults")
	}
	c.log = log
	return nil
}

// context returns a logger-carrying context bounded by --timeout.
func (c *cliContext) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
	return logger.WithContext(ctx, c.log), cancel
}

func (c *cliContext) openStore(ctx context.Context) (bq.Store, error) {
	return infra.OpenStore(ctx, c.cfg.Store)
}

func (c *cliContext) requireUser() error {
	if c.userID == "" {
		return fmt.Errorf("--user is required")
	}
	return nil
}
