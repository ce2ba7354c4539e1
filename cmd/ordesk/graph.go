package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ordesk/ordesk/internal/presentation/graph"
)

// graphCmd exports the dialogue legality graph for documentation.
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the dialogue state graph",
	Long:  `Outputs a Mermaid diagram (graph TD) of the legal dialogue transitions.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(graph.GenerateMermaid(nil))
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
