package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ordesk/ordesk"
)

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Probe the configured generative backends",
	Long:  `Validates the configuration and probes the highest-priority available provider.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}

		engine, err := ordesk.New(cfg)
		if err != nil {
			fmt.Printf("Error initializing ordesk: %v\n", err)
			os.Exit(1)
		}
		defer engine.Close()

		if err := engine.Preflight(cmd.Context()); err != nil {
			fmt.Printf("Preflight failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Preflight OK")
	},
}

func init() {
	rootCmd.AddCommand(preflightCmd)
}
