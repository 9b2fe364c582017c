package main

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/fentz26/taskdeck/internal/config"
	"github.com/fentz26/taskdeck/internal/dashboard"
	"github.com/fentz26/taskdeck/internal/logging"
	"github.com/fentz26/taskdeck/internal/tui"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive dashboard",
	RunE:  runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	logPath := cfg.LogFile
	if logPath == "" {
		dir, err := config.Dir()
		if err != nil {
			return err
		}
		logPath = filepath.Join(dir, "taskdeck.log")
	}
	logger, closer, err := logging.NewFile(logPath, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer closer.Close()

	view := tui.NewProgramView()
	dash := dashboard.New(dashboard.Options{
		BaseURL:         cfg.APIBaseURL,
		HTTPClient:      &http.Client{Timeout: cfg.RequestTimeout.Duration},
		StatusInterval:  cfg.StatusInterval.Duration,
		HealthInterval:  cfg.HealthInterval.Duration,
		LogTailInterval: cfg.LogTailInterval.Duration,
		StartSettle:     cfg.StartSettle.Duration,
		RunSettle:       cfg.RunSettle.Duration,
		LegacyLogLimit:  cfg.LegacyLogLimit,
		Logger:          logger,
	}, view)

	if err := tui.New(dash, view).Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
