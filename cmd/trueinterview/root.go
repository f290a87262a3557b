package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"trueinterview/internal/app"
	"trueinterview/internal/config"
	"trueinterview/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "trueinterview",
		Short:        "Real-time coordinator for two-party interview sessions",
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "trueinterview %s\n", version)
		},
	}
}

// serve flags map onto config keys; unset flags leave env, file and defaults in charge
var serveFlagKeys = map[string]string{
	"port":      "http.port",
	"host":      "http.host",
	"db":        "database.path",
	"log-level": "log.level",
}

func newServeCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the WebSocket coordinator and HTTP side channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(cmd, v, cfgFile)
			if err != nil {
				return err
			}
			if err := logging.Setup(cfg.Log); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.Int("port", 0, "HTTP port (default 5001)")
	flags.String("host", "", "HTTP host (default 0.0.0.0)")
	flags.String("db", "", "sqlite archive path")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	return cmd
}

// loadServeConfig binds only the flags the user actually set
func loadServeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) (*config.Config, error) {
	for flag, key := range serveFlagKeys {
		f := cmd.Flags().Lookup(flag)
		if f != nil && f.Changed {
			v.Set(key, f.Value.String())
		}
	}
	return config.LoadWithViper(v, cfgFile)
}

// serve runs the application until ctx is cancelled or the server fails
// FUNCTIONAL DISCOVERY: Timeout context prevents hanging shutdown
func serve(ctx context.Context, cfg *config.Config) error {
	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logrus.Info("Shutdown signal received")
	case err, ok := <-application.Done():
		if ok && err != nil {
			serveErr = fmt.Errorf("HTTP server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil && !errors.Is(err, app.ErrNotStarted) {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return serveErr
}
