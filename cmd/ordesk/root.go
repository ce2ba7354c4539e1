package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ordesk/ordesk/pkg/config"
)

var rootCmd = &cobra.Command{
	Use:   "ordesk",
	Short: "Ordesk is a turn-processing engine for conversational order-taking agents",
	Long: `Ordesk buffers rapid user message fragments into complete turns, runs them
through a guarded dialogue state machine, and generates replies with
priority-ordered failover across chat-completion backends.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "ordesk.yaml", "Path to the configuration file")
}

// loadConfig reads the configured YAML file, falling back to defaults when
// the default path does not exist and was not explicitly requested.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}
