package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ContextCmd creates the context command with subcommands.
func ContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Context assembly commands",
		Long:  "Commands for building AI context payloads from manifests and embedded content.",
	}

	cmd.AddCommand(ContextQueryCmd())
	cmd.AddCommand(ContextBuildCmd())

	return cmd
}

// QueryContextResponse represents the query-driven context API response.
type QueryContextResponse struct {
	Query      string `json:"query"`
	HasContext bool   `json:"hasContext"`
	Context    string `json:"context"`
	Sources    []struct {
		Type       string  `json:"type"`
		ID         string  `json:"id"`
		Similarity float32 `json:"similarity"`
	} `json:"sources"`
	Duration int64 `json:"duration"`
}

// ContextQueryCmd creates the context query command.
func ContextQueryCmd() *cobra.Command {
	var (
		limit     int
		threshold float32
		projectID string
	)

	cmd := &cobra.Command{
		Use:   "query <query>",
		Short: "Build context from a search query",
		Long:  "Assembles a context string from the content most similar to the query.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runContextQuery(args[0], limit, threshold, projectID, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Maximum number of source items")
	cmd.Flags().Float32Var(&threshold, "threshold", 0, "Minimum similarity score (0-1)")
	cmd.Flags().StringVar(&projectID, "project", "", "Filter by project ID")

	return cmd
}

func runContextQuery(query string, limit int, threshold float32, projectID string, outputJSON bool) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	req := map[string]interface{}{
		"query": query,
	}
	if limit > 0 {
		req["limit"] = limit
	}
	if threshold > 0 {
		req["threshold"] = threshold
	}
	if projectID != "" {
		req["projectId"] = projectID
	}

	data, err := api.Post("/api/embeddings/build-context", req)
	if err != nil {
		return fmt.Errorf("context build failed: %w", err)
	}

	var resp QueryContextResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("failed to parse context response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if !resp.HasContext {
		fmt.Println("No relevant context found.")
		return nil
	}

	fmt.Println(resp.Context)
	fmt.Printf("\n%s\n", strings.Repeat("-", 40))
	fmt.Printf("Sources (%dms):\n", resp.Duration)
	for _, src := range resp.Sources {
		fmt.Printf("  [%s] %s (%.2f)\n", src.Type, src.ID, src.Similarity)
	}

	return nil
}

// PolicyContextResponse represents the policy-driven context API response.
type PolicyContextResponse struct {
	Context []struct {
		Type      string          `json:"type"`
		ID        string          `json:"id"`
		Source    string          `json:"source"`
		Data      json.RawMessage `json:"data,omitempty"`
		Score     float32         `json:"score,omitempty"`
		UpdatedAt string          `json:"updatedAt,omitempty"`
	} `json:"context"`
	TotalItems int `json:"totalItems"`
	Sources    struct {
		OwnPreview   int `json:"ownPreview"`
		TeamPreview  int `json:"teamPreview"`
		CDN          int `json:"cdn"`
		VectorSearch int `json:"vectorSearch"`
	} `json:"sources"`
	Metadata struct {
		UserID     string `json:"userId"`
		TeamID     string `json:"teamId"`
		Query      string `json:"query"`
		DurationMS int64  `json:"durationMs"`
	} `json:"metadata"`
}

// ContextBuildCmd creates the context build command.
func ContextBuildCmd() *cobra.Command {
	var (
		types     string
		query     string
		projectID string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build context from retrieval policy",
		Long:  "Assembles a context payload according to the authenticated user's retrieval policy.",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runContextBuild(types, query, projectID, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&types, "types", "t", "", "Comma-separated content types to include")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Optional query for the vector search source")
	cmd.Flags().StringVar(&projectID, "project", "", "Filter by project ID")

	return cmd
}

func runContextBuild(types, query, projectID string, outputJSON bool) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	req := map[string]interface{}{}
	if types != "" {
		req["types"] = strings.Split(types, ",")
	}
	if query != "" {
		req["query"] = query
	}
	if projectID != "" {
		req["projectId"] = projectID
	}

	data, err := api.Post("/api/ai-context/build", req)
	if err != nil {
		return fmt.Errorf("context build failed: %w", err)
	}

	var resp PolicyContextResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("failed to parse context response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Context: %d items (own: %d, team: %d, cdn: %d, search: %d)\n\n",
		resp.TotalItems, resp.Sources.OwnPreview, resp.Sources.TeamPreview,
		resp.Sources.CDN, resp.Sources.VectorSearch)
	for i, item := range resp.Context {
		fmt.Printf("%d. [%s] %s (source: %s)\n", i+1, item.Type, item.ID, item.Source)
	}

	return nil
}
