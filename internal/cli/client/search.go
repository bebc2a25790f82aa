package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// SearchRequest represents the semantic search API request.
type SearchRequest struct {
	Query       string  `json:"query"`
	ContentType string  `json:"contentType,omitempty"`
	Limit       int     `json:"limit,omitempty"`
	Threshold   float32 `json:"threshold,omitempty"`
	ProjectID   string  `json:"projectId,omitempty"`
}

// SearchResult represents a single scored search hit.
type SearchResult struct {
	ID          string  `json:"id"`
	ContentType string  `json:"contentType"`
	ContentID   string  `json:"contentId"`
	Content     string  `json:"content"`
	Similarity  float32 `json:"similarity"`
	CreatedAt   string  `json:"createdAt"`
}

// SearchResponse represents the search API response.
type SearchResponse struct {
	Query       string         `json:"query"`
	ContentType string         `json:"contentType"`
	Results     []SearchResult `json:"results"`
	Count       int            `json:"count"`
	Duration    int64          `json:"duration"`
}

// SearchCmd creates the search command.
func SearchCmd() *cobra.Command {
	var (
		contentType string
		limit       int
		threshold   float32
		projectID   string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search embedded content",
		Long:  "Searches embedded game content by semantic similarity.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runSearch(args[0], contentType, limit, threshold, projectID, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&contentType, "type", "t", "", "Filter by content type (npc, lore, quest, item, asset, character)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().Float32Var(&threshold, "threshold", 0, "Minimum similarity score (0-1)")
	cmd.Flags().StringVar(&projectID, "project", "", "Filter by project ID")

	return cmd
}

func runSearch(query, contentType string, limit int, threshold float32, projectID string, outputJSON bool) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	req := SearchRequest{
		Query:       query,
		ContentType: contentType,
		Limit:       limit,
		Threshold:   threshold,
		ProjectID:   projectID,
	}

	data, err := api.Post("/api/embeddings/search", req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	var searchResp SearchResponse
	if err := json.Unmarshal(data, &searchResp); err != nil {
		return fmt.Errorf("failed to parse search results: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(searchResp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(searchResp.Results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d results (%dms):\n\n", searchResp.Count, searchResp.Duration)
	for i, result := range searchResp.Results {
		fmt.Printf("%d. [%s] %s (%.2f)\n", i+1, result.ContentType, result.ContentID, result.Similarity)
		content := result.Content
		if len(content) > 100 {
			content = content[:97] + "..."
		}
		if content != "" {
			fmt.Printf("   %s\n", content)
		}
		if i < len(searchResp.Results)-1 {
			fmt.Println(strings.Repeat("-", 40))
		}
	}

	return nil
}
