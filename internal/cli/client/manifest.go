package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

// Manifest mirrors the preview manifest wire format.
type Manifest struct {
	ID           string            `json:"id"`
	UserID       string            `json:"userId,omitempty"`
	TeamID       string            `json:"teamId,omitempty"`
	ManifestType string            `json:"manifestType"`
	Content      []json.RawMessage `json:"content"`
	Version      int32             `json:"version"`
	IsActive     bool              `json:"isActive"`
	CreatedAt    string            `json:"createdAt"`
	UpdatedAt    string            `json:"updatedAt"`
}

// ManifestCmd creates the manifest command with subcommands.
func ManifestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Manage preview manifests",
		Long:  "Push, fetch, list and deactivate preview manifests.",
	}

	cmd.AddCommand(ManifestPushCmd())
	cmd.AddCommand(ManifestGetCmd())
	cmd.AddCommand(ManifestListCmd())
	cmd.AddCommand(ManifestDeactivateCmd())

	return cmd
}

// ManifestPushCmd creates the manifest push command.
func ManifestPushCmd() *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "push <type> <file>",
		Short: "Push a preview manifest",
		Long:  "Uploads a manifest of the given type from a JSON file containing an array of content items. Pushing to an existing scope bumps the version.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runManifestPush(args[0], args[1], scope, outputJSON)
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "user", "Manifest scope (user, team or global)")

	return cmd
}

func runManifestPush(manifestType, contentFile, scope string, outputJSON bool) error {
	data, err := os.ReadFile(contentFile)
	if err != nil {
		return fmt.Errorf("failed to read content file: %w", err)
	}

	var content []json.RawMessage
	if err := json.Unmarshal(data, &content); err != nil {
		return fmt.Errorf("content file %s must contain a JSON array: %w", contentFile, err)
	}

	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	req := map[string]interface{}{
		"manifestType": manifestType,
		"scope":        scope,
		"content":      content,
	}

	respData, err := api.Put("/api/manifests", req)
	if err != nil {
		return fmt.Errorf("manifest push failed: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(respData, &manifest); err != nil {
		return fmt.Errorf("failed to parse manifest response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(manifest, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Pushed manifest %s (version %d, %d items)\n", manifest.ManifestType, manifest.Version, len(manifest.Content))
	return nil
}

// ManifestGetCmd creates the manifest get command.
func ManifestGetCmd() *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "get <type>",
		Short: "Fetch the active manifest of a type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runManifestGet(args[0], scope, outputJSON)
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "user", "Manifest scope (user, team or global)")

	return cmd
}

func runManifestGet(manifestType, scope string, outputJSON bool) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/api/manifests/%s?scope=%s", url.PathEscape(manifestType), url.QueryEscape(scope))
	data, err := api.Get(path)
	if err != nil {
		return fmt.Errorf("manifest fetch failed: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("failed to parse manifest response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(manifest, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Manifest %s (version %d, %d items, updated %s)\n",
		manifest.ManifestType, manifest.Version, len(manifest.Content), manifest.UpdatedAt)
	for _, item := range manifest.Content {
		fmt.Printf("  %s\n", compactJSON(item))
	}

	return nil
}

// ManifestListCmd creates the manifest list command.
func ManifestListCmd() *cobra.Command {
	var (
		scope  string
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List manifests in a scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runManifestList(scope, limit, cursor, outputJSON)
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "user", "Manifest scope (user, team or global)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of manifests")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from a previous page")

	return cmd
}

func runManifestList(scope string, limit int, cursor string, outputJSON bool) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	query := url.Values{}
	query.Set("scope", scope)
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	data, err := api.Get("/api/manifests?" + query.Encode())
	if err != nil {
		return fmt.Errorf("manifest list failed: %w", err)
	}

	var resp struct {
		Manifests []Manifest `json:"manifests"`
		Cursor    string     `json:"cursor,omitempty"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("failed to parse manifest list: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(resp.Manifests) == 0 {
		fmt.Println("No manifests found")
		return nil
	}

	for _, m := range resp.Manifests {
		fmt.Printf("%s: %s (version %d, %d items, updated %s)\n", m.ID, m.ManifestType, m.Version, len(m.Content), m.UpdatedAt)
	}
	if resp.Cursor != "" {
		fmt.Printf("\nMore results available. Next page: --cursor %s\n", resp.Cursor)
	}

	return nil
}

// ManifestDeactivateCmd creates the manifest deactivate command.
func ManifestDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Deactivate a manifest",
		Long:  "Deactivates a manifest so it no longer contributes to context assembly.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManifestDeactivate(args[0])
		},
	}
}

func runManifestDeactivate(id string) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/api/manifests/%s", url.PathEscape(id))
	if _, err := api.Delete(path); err != nil {
		return fmt.Errorf("manifest deactivate failed: %w", err)
	}

	fmt.Printf("Manifest %s deactivated\n", id)
	return nil
}

func compactJSON(raw json.RawMessage) string {
	s := string(raw)
	if len(s) > 120 {
		return s[:117] + "..."
	}
	return s
}
