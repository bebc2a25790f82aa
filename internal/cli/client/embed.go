package client

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// EmbedCmd creates the embed command with subcommands.
func EmbedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Manage content embeddings",
		Long:  "Embed game content into the vector store, or remove embeddings.",
	}

	cmd.AddCommand(EmbedContentCmd())
	cmd.AddCommand(EmbedBatchCmd())
	cmd.AddCommand(EmbedDeleteCmd())

	return cmd
}

// EmbedContentCmd creates the embed content command.
func EmbedContentCmd() *cobra.Command {
	var (
		dataFile  string
		projectID string
	)

	cmd := &cobra.Command{
		Use:   "content <type> <id>",
		Short: "Embed a single content item",
		Long:  "Embeds a single content item from a JSON file into the vector store.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runEmbedContent(args[0], args[1], dataFile, projectID, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&dataFile, "file", "f", "", "Path to JSON file with the content data (required)")
	cmd.Flags().StringVar(&projectID, "project", "", "Project ID to associate with the embedding")
	cmd.MarkFlagRequired("file")

	return cmd
}

func runEmbedContent(contentType, contentID, dataFile, projectID string, outputJSON bool) error {
	data, err := os.ReadFile(dataFile)
	if err != nil {
		return fmt.Errorf("failed to read data file: %w", err)
	}
	if !json.Valid(data) {
		return fmt.Errorf("data file %s is not valid JSON", dataFile)
	}

	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	req := map[string]interface{}{
		"contentType": contentType,
		"contentId":   contentID,
		"data":        json.RawMessage(data),
	}
	if projectID != "" {
		req["projectId"] = projectID
	}

	respData, err := api.Post("/api/embeddings/embed", req)
	if err != nil {
		return fmt.Errorf("embed failed: %w", err)
	}

	if outputJSON {
		var pretty map[string]interface{}
		_ = json.Unmarshal(respData, &pretty)
		output, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Embedded %s/%s\n", contentType, contentID)
	return nil
}

// EmbedBatchCmd creates the embed batch command.
func EmbedBatchCmd() *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "batch <type> <file>",
		Short: "Embed a batch of content items",
		Long:  "Embeds multiple content items of one type from a JSON file. The file must contain an array of {id, data} objects.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runEmbedBatch(args[0], args[1], projectID, outputJSON)
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project ID to associate with the embeddings")

	return cmd
}

func runEmbedBatch(contentType, itemsFile, projectID string, outputJSON bool) error {
	data, err := os.ReadFile(itemsFile)
	if err != nil {
		return fmt.Errorf("failed to read items file: %w", err)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("items file %s must contain a JSON array: %w", itemsFile, err)
	}

	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	req := map[string]interface{}{
		"contentType": contentType,
		"items":       items,
	}
	if projectID != "" {
		req["projectId"] = projectID
	}

	respData, err := api.Post("/api/embeddings/batch", req)
	if err != nil {
		return fmt.Errorf("batch embed failed: %w", err)
	}

	var resp struct {
		Success  bool `json:"success"`
		Count    int  `json:"count"`
		Failures []struct {
			ContentID string `json:"contentId"`
			Error     string `json:"error"`
		} `json:"failures,omitempty"`
	}
	if err := json.Unmarshal(respData, &resp); err != nil {
		return fmt.Errorf("failed to parse batch response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Embedded %d items of type %s\n", resp.Count, contentType)
	if len(resp.Failures) > 0 {
		fmt.Printf("\n%d items failed:\n", len(resp.Failures))
		for _, f := range resp.Failures {
			fmt.Printf("  %s: %s\n", f.ContentID, f.Error)
		}
	}

	return nil
}

// EmbedDeleteCmd creates the embed delete command.
func EmbedDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <type> <id>",
		Short: "Delete an embedding",
		Long:  "Removes a content item's embedding from the vector store.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmbedDelete(args[0], args[1])
		},
	}
}

func runEmbedDelete(contentType, contentID string) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/api/embeddings/%s/%s", strings.TrimSpace(contentType), strings.TrimSpace(contentID))
	if _, err := api.Delete(path); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}

	fmt.Printf("Deleted embedding %s/%s\n", contentType, contentID)
	return nil
}
