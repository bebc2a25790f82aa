package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// Preferences mirrors the retrieval policy wire format.
type Preferences struct {
	UseOwnPreview     bool   `json:"useOwnPreview"`
	UseCdnContent     bool   `json:"useCdnContent"`
	UseTeamPreview    bool   `json:"useTeamPreview"`
	UseAllSubmissions bool   `json:"useAllSubmissions"`
	MaxContextItems   int    `json:"maxContextItems"`
	PreferRecent      bool   `json:"preferRecent"`
	UpdatedAt         string `json:"updatedAt,omitempty"`
}

// PolicyCmd creates the policy command with subcommands.
func PolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Manage the retrieval policy",
		Long:  "View and update the context retrieval preferences for the authenticated user.",
	}

	cmd.AddCommand(PolicyGetCmd())
	cmd.AddCommand(PolicySetCmd())

	return cmd
}

// PolicyGetCmd creates the policy get command.
func PolicyGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show the current retrieval policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runPolicyGet(outputJSON)
		},
	}
}

func runPolicyGet(outputJSON bool) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	data, err := api.Get("/api/ai-context/preferences")
	if err != nil {
		return fmt.Errorf("failed to fetch policy: %w", err)
	}

	var prefs Preferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(prefs, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	printPreferences(&prefs)
	return nil
}

// PolicySetCmd creates the policy set command.
func PolicySetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update the retrieval policy",
		Long:  "Updates the retrieval preferences. Flags not provided keep their current value.",
		RunE:  runPolicySet,
	}

	cmd.Flags().Bool("own-preview", false, "Include the user's own preview manifests")
	cmd.Flags().Bool("team-preview", false, "Include team preview manifests")
	cmd.Flags().Bool("cdn", false, "Include published CDN content")
	cmd.Flags().Bool("all-submissions", false, "Include vector search over all submissions")
	cmd.Flags().Int("max-items", 0, "Maximum number of context items")
	cmd.Flags().Bool("prefer-recent", false, "Order context items by recency")

	return cmd
}

func runPolicySet(cmd *cobra.Command, args []string) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	// Fetch current policy so unset flags keep their value
	data, err := api.Get("/api/ai-context/preferences")
	if err != nil {
		return fmt.Errorf("failed to fetch policy: %w", err)
	}

	var prefs Preferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}

	if cmd.Flags().Changed("own-preview") {
		prefs.UseOwnPreview, _ = cmd.Flags().GetBool("own-preview")
	}
	if cmd.Flags().Changed("team-preview") {
		prefs.UseTeamPreview, _ = cmd.Flags().GetBool("team-preview")
	}
	if cmd.Flags().Changed("cdn") {
		prefs.UseCdnContent, _ = cmd.Flags().GetBool("cdn")
	}
	if cmd.Flags().Changed("all-submissions") {
		prefs.UseAllSubmissions, _ = cmd.Flags().GetBool("all-submissions")
	}
	if cmd.Flags().Changed("max-items") {
		prefs.MaxContextItems, _ = cmd.Flags().GetInt("max-items")
	}
	if cmd.Flags().Changed("prefer-recent") {
		prefs.PreferRecent, _ = cmd.Flags().GetBool("prefer-recent")
	}
	prefs.UpdatedAt = ""

	respData, err := api.Put("/api/ai-context/preferences", prefs)
	if err != nil {
		return fmt.Errorf("failed to update policy: %w", err)
	}

	var updated Preferences
	if err := json.Unmarshal(respData, &updated); err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}

	fmt.Println("Policy updated:")
	printPreferences(&updated)
	return nil
}

func printPreferences(prefs *Preferences) {
	onOff := func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	}

	fmt.Printf("Own preview:     %s\n", onOff(prefs.UseOwnPreview))
	fmt.Printf("Team preview:    %s\n", onOff(prefs.UseTeamPreview))
	fmt.Printf("CDN content:     %s\n", onOff(prefs.UseCdnContent))
	fmt.Printf("All submissions: %s\n", onOff(prefs.UseAllSubmissions))
	fmt.Printf("Max items:       %d\n", prefs.MaxContextItems)
	fmt.Printf("Prefer recent:   %s\n", onOff(prefs.PreferRecent))
	if prefs.UpdatedAt != "" {
		fmt.Printf("Updated at:      %s\n", prefs.UpdatedAt)
	}
}
