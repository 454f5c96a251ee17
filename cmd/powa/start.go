package powa

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/power-warden/powa/internal/daemon"
	"github.com/power-warden/powa/internal/power"
	"github.com/power-warden/powa/pkg/config"
	"github.com/power-warden/powa/pkg/logger"
	"github.com/power-warden/powa/pkg/util"
)

func newStartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the foreground until SIGTERM or SIGINT",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfigWithCli(cmd)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			noBanner, _ := cmd.Flags().GetBool("no-banner")
			return runDaemon(cmd.Context(), cfg, !noBanner)
		},
	}
	cmd.Flags().StringP("config", "c", "", "-> Path to the YAML configuration file")
	cmd.Flags().Bool("no-banner", false, "-> Do not print the startup banner")

	initServerFlags(cmd)
	initDaemonFlags(cmd)
	initLogFlags(cmd)
	return cmd
}

func runDaemon(ctx context.Context, cfg *config.Config, banner bool) error {
	if err := logger.Init(cfg.Log); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.GetLogger()
	undo := zap.ReplaceGlobals(log)
	defer undo()

	if banner {
		util.PrintBanner("powa", "ColorBlue")
	}
	log.Info("log initialization successful",
		zap.String("path", cfg.Log.Path),
		zap.String("level", cfg.Log.Level),
		zap.String("format", cfg.Log.Format))

	for _, d := range power.Domains() {
		dc := cfg.Domain(d)
		log.Debug("power domain configured",
			zap.String("domain", d.String()),
			zap.Duration("polling_interval", dc.Interval()),
			zap.Duration("read_timeout", dc.ReadTimeout),
			zap.String("driver", dc.Sensor.Driver),
			zap.Int("address", dc.Sensor.Address))
	}

	return daemon.New(cfg, daemon.WithLogger(log)).Start(ctx)
}
