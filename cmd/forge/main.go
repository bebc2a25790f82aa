package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Dexploarer/forge-sub003/internal/cli"
	"github.com/Dexploarer/forge-sub003/internal/cli/client"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "forge",
		Short: "Forge CLI - Game content management for AI context",
		Long: `Forge CLI provides commands to embed game content, manage preview
manifests and assemble AI context payloads.

Environment variables:
  FORGE_API_KEY   API key for authentication (required)
  FORGE_API_URL   API base URL (default: http://localhost:8080)`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-key", "", "API key for authentication (overrides env and config)")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.AuthCmd())
	rootCmd.AddCommand(client.SearchCmd())
	rootCmd.AddCommand(client.ContextCmd())
	rootCmd.AddCommand(client.EmbedCmd())
	rootCmd.AddCommand(client.ManifestCmd())
	rootCmd.AddCommand(client.PolicyCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
