package main

import (
	"fmt"
	"os"

	"github.com/fentz26/taskdeck/internal/config"
	"github.com/fentz26/taskdeck/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "taskdeck",
	Short: "TaskDeck - task scheduler dashboard",
	Long:  `TaskDeck is a terminal dashboard for a task scheduler backend. It keeps polling and task operations consistent across backend outages.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if apiAddr != "" {
			loaded.APIBaseURL = apiAddr
			if err := loaded.Validate(); err != nil {
				return err
			}
		}
		cfg = loaded
		return nil
	},
	SilenceUsage: true,
	RunE:         runTUI,
}

var (
	apiAddr    string
	configPath string

	cfg *config.Config
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "", "Backend base URL (overrides config and "+config.EnvAPI+")")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.taskdeck/config.toml)")

	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(schedCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	logging.Setup()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
