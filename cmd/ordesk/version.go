package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ordesk/ordesk"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of ordesk",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ordesk version %s\n", ordesk.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
