// Command aurad is the A.U.R.A server daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/aura/config"
	"github.com/GoCodeAlone/aura/internal/version"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "aurad",
		Short:         "A.U.R.A server daemon",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "aura.yaml", "path to YAML config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the config file and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath, true)
			if err != nil {
				return err
			}
			fmt.Printf("config ok: llm=%s bus=%s addr=%s\n", cfg.LLM.Provider, cfg.Bus.Backend, cfg.Server.Addr)
			return nil
		},
	}

	rootCmd.AddCommand(serveCmd, checkCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads path. When the file is absent and was not named
// explicitly, defaults are used.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !explicit {
		if err := config.LoadEnv(".env"); err != nil {
			return nil, err
		}
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	logger.Info("starting aurad",
		"version", version.Version,
		"commit", version.Commit,
	)

	app, err := build(cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- app.server.Start() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.server.Stop(shutdownCtx); err != nil {
		logger.Error("server stop error", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}
