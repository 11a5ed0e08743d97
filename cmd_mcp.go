package main

import (
	"github.com/spf13/cobra"

	"droidctl/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server over stdio",
	Long: `Serves the Model Context Protocol on stdin/stdout so MCP clients
can drive devices, apps and logcat sessions through droidctl.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv := mcp.NewMCPServer(app)
		return srv.Start()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
