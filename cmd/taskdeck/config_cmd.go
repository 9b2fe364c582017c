package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective local configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return toml.NewEncoder(os.Stdout).Encode(cfg)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective configuration to the config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Save(configPath); err != nil {
			return err
		}
		fmt.Println("Configuration saved")
		return nil
	},
}

var configRemoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Print the backend configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, done := newAPIClient()
		defer done()

		values, err := c.GetConfig(cmd.Context())
		if err != nil {
			return apiError("load configuration", err)
		}
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%s=%s\n", k, values[k])
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set key=value...",
	Short: "Save backend configuration values",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		values := make(map[string]string, len(args))
		for _, a := range args {
			k, v, ok := strings.Cut(a, "=")
			if !ok || k == "" {
				return fmt.Errorf("expected key=value, got %q", a)
			}
			values[k] = v
		}

		c, done := newAPIClient()
		defer done()

		msg, err := c.SaveConfig(cmd.Context(), values)
		if err != nil {
			return apiError("save configuration", err)
		}
		printMessage(msg, "Configuration saved")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configInitCmd, configRemoteCmd, configSetCmd)
}
