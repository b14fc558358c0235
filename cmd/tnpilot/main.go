package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tnpilot/tnpilot/internal/api"
	"github.com/tnpilot/tnpilot/internal/config"
	"github.com/tnpilot/tnpilot/internal/domain"
	"github.com/tnpilot/tnpilot/internal/linemode"
	"github.com/tnpilot/tnpilot/internal/service"
	"github.com/tnpilot/tnpilot/internal/storage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "tnpilot",
		Short:         "Terminal automation server for character-grid hosts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newScriptsCmd(&configPath))
	return root
}

type app struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *service.Registry
	runner   *service.Runner
	scripts  *storage.ScriptStorage
	metrics  *service.Metrics
	promReg  *prometheus.Registry
}

func buildApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg.LogLevel)

	scripts, err := storage.NewScriptStorage(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	runLogs, err := storage.NewRunLogStorage(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	promReg := prometheus.NewRegistry()
	metrics := service.NewMetrics(promReg)

	registry := service.NewRegistry(service.RegistryConfig{
		Dialer: linemode.Dialer(linemode.Options{
			Rows: cfg.ScreenRows,
			Cols: cfg.ScreenCols,
		}),
		ConnectTimeout:  cfg.ConnectTimeout.Std(),
		RefreshInterval: cfg.RefreshInterval.Std(),
		IdleTimeout:     cfg.IdleTimeout.Std(),
		Logger:          logger,
		Metrics:         metrics,
	})

	executor := service.NewExecutor(metrics)
	executor.PollInterval = cfg.PollInterval.Std()
	runner := service.NewRunner(registry, executor, runLogs, logger, metrics)

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		runner:   runner,
		scripts:  scripts,
		metrics:  metrics,
		promReg:  promReg,
	}, nil
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the automation server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}

			handler := api.NewHandler(a.registry, a.runner, a.scripts, a.metrics, a.logger, a.promReg)
			router := chi.NewRouter()
			handler.Mount(router)

			server := &http.Server{
				Addr:              a.cfg.Listen,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("server listening", "addr", a.cfg.Listen)
				errCh <- server.ListenAndServe()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case sig := <-sigCh:
				a.logger.Info("shutting down", "signal", sig.String())
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = server.Shutdown(ctx)
			return a.registry.Shutdown(ctx)
		},
	}
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run <script-id>",
		Short: "Execute a stored automation script and print its log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = a.registry.Shutdown(ctx)
			}()

			script, err := a.scripts.Load(args[0])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log, err := a.runner.Run(ctx, script)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(log, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			if log.Status != domain.RunCompleted {
				return fmt.Errorf("run %s", log.Status)
			}
			return nil
		},
	}
}

func newScriptsCmd(configPath *string) *cobra.Command {
	scripts := &cobra.Command{
		Use:   "scripts",
		Short: "Manage stored automation scripts",
	}
	scripts.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored scripts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			summaries, err := a.scripts.List()
			if err != nil {
				var listErr *storage.ListError
				if !errors.As(err, &listErr) {
					return err
				}
				a.logger.Warn("skipped unreadable scripts", "count", len(listErr.Errors))
			}
			for _, s := range summaries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%d steps\n", s.ID, s.Name, s.Host, s.StepsCount)
			}
			return nil
		},
	})
	return scripts
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
