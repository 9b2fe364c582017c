package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fentz26/taskdeck/internal/config"
	"github.com/fentz26/taskdeck/internal/devserver"
	"github.com/fentz26/taskdeck/internal/logging"
	"github.com/spf13/cobra"
)

var (
	listenAddr string
	dbPath     string
	workDir    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the development task backend",
	Long:  `Starts a local task backend that serves the scheduler and legacy task API from a SQLite database.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server")
	serveCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database (default ~/.taskdeck/devserver.db)")
	serveCmd.Flags().StringVar(&workDir, "workdir", "", "Directory allowlisted commands run in")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := logging.NewConsole(os.Stderr, cfg.LogLevel)

	opts := devserver.Options{
		DBPath:  firstNonEmpty(dbPath, cfg.Server.DBPath),
		Addr:    firstNonEmpty(listenAddr, cfg.Server.Listen),
		WorkDir: firstNonEmpty(workDir, cfg.Server.WorkDir),
		Logger:  logger,
	}
	if opts.DBPath == "" {
		dir, err := config.Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
		opts.DBPath = filepath.Join(dir, "devserver.db")
	}
	if opts.WorkDir == "" {
		opts.WorkDir, _ = os.Getwd()
	}

	backend, err := devserver.Open(opts)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		err := backend.Server.Start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("server error")
			_ = backend.Close(context.Background())
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := backend.Close(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		return err
	}
	logger.Info().Msg("shutdown complete")
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
