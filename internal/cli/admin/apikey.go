package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Dexploarer/forge-sub003/internal/domain"
	"github.com/Dexploarer/forge-sub003/internal/pagination"
	"github.com/Dexploarer/forge-sub003/internal/repository"
	"github.com/Dexploarer/forge-sub003/internal/service"
)

func APIKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
		Long:  "Create, list and revoke API keys",
	}

	cmd.AddCommand(APIKeyCreateCmd())
	cmd.AddCommand(APIKeyListCmd())
	cmd.AddCommand(APIKeyRevokeCmd())

	return cmd
}

func APIKeyCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Create a new API key for a user. The token is shown once and cannot be retrieved later.",
		RunE:  runAPIKeyCreate,
	}

	cmd.Flags().StringP("user", "u", "", "User ID or name the key belongs to (required)")
	cmd.Flags().StringP("name", "n", "default", "Name for the API key")
	cmd.MarkFlagRequired("user")

	return cmd
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	userFlag, _ := cmd.Flags().GetString("user")
	keyName, _ := cmd.Flags().GetString("name")

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	uuidGen := &service.DefaultUUIDGenerator{}
	authSvc := service.NewAuthService(userRepo, apiKeyRepo, uuidGen)

	userID, err := resolveUserID(ctx, userRepo, userFlag)
	if err != nil {
		return err
	}

	token, err := authSvc.CreateAPIKey(ctx, userID, keyName)
	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}

	fmt.Printf("API key created for user %s:\n\n", userID)
	fmt.Printf("  %s\n\n", token)
	fmt.Println("Save this token now. You won't be able to see it again!")

	return nil
}

func APIKeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for a user",
		RunE:  runAPIKeyList,
	}

	cmd.Flags().StringP("user", "u", "", "User ID or name to list keys for (required)")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().String("cursor", "", "Pagination cursor from a previous page")
	cmd.Flags().Int("limit", 20, "Maximum number of keys to return")
	cmd.MarkFlagRequired("user")

	return cmd
}

func runAPIKeyList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	userFlag, _ := cmd.Flags().GetString("user")
	outputFormat, _ := cmd.Flags().GetString("output")
	cursorStr, _ := cmd.Flags().GetString("cursor")
	limit, _ := cmd.Flags().GetInt("limit")

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)

	userID, err := resolveUserID(ctx, userRepo, userFlag)
	if err != nil {
		return err
	}

	var cursor *pagination.Cursor
	if cursorStr != "" {
		cursor, err = pagination.DecodeCursor(cursorStr)
		if err != nil {
			return fmt.Errorf("invalid cursor: %w", err)
		}
	}

	page, err := apiKeyRepo.ListByUserWithCursor(ctx, userID, cursor, limit)
	if err != nil {
		return fmt.Errorf("failed to list API keys: %w", err)
	}

	if outputFormat == "json" {
		data := make([]map[string]interface{}, len(page.Items))
		for i, key := range page.Items {
			data[i] = map[string]interface{}{
				"id":         key.ID,
				"name":       key.Name,
				"created_at": key.CreatedAt,
				"revoked_at": key.RevokedAt,
			}
		}
		out := map[string]interface{}{
			"keys":        data,
			"next_cursor": page.NextCursor,
			"has_more":    page.HasMore,
		}
		jsonBytes, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(jsonBytes))
		return nil
	}

	if len(page.Items) == 0 {
		fmt.Println("No API keys found")
		return nil
	}

	fmt.Printf("API keys for user %s:\n", userID)
	for _, key := range page.Items {
		status := "active"
		if key.IsRevoked() {
			status = fmt.Sprintf("revoked %s", key.RevokedAt.Format("2006-01-02"))
		}
		fmt.Printf("  %s: %s (%s, created: %s)\n", key.ID, key.Name, status, key.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	if page.HasMore {
		fmt.Printf("\nMore results available. Next page: --cursor %s\n", page.NextCursor)
	}

	return nil
}

func APIKeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Long:  "Revoke an API key so it can no longer be used for authentication",
		Args:  cobra.ExactArgs(1),
		RunE:  runAPIKeyRevoke,
	}
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	keyID := args[0]

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	uuidGen := &service.DefaultUUIDGenerator{}
	authSvc := service.NewAuthService(userRepo, apiKeyRepo, uuidGen)

	if err := authSvc.RevokeAPIKey(ctx, keyID); err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}

	fmt.Printf("API key %s revoked\n", keyID)
	return nil
}

// resolveUserID accepts either a user UUID or a user name
func resolveUserID(ctx context.Context, userRepo *repository.UserRepository, idOrName string) (string, error) {
	if _, err := uuid.Parse(idOrName); err == nil {
		user, err := userRepo.GetByID(ctx, idOrName)
		if err != nil {
			return "", fmt.Errorf("user %q not found: %w", idOrName, err)
		}
		return user.ID, nil
	}

	user, err := userRepo.GetByName(ctx, idOrName)
	if err != nil {
		if err == domain.ErrUserNotFound {
			return "", fmt.Errorf("user %q not found", idOrName)
		}
		return "", err
	}
	return user.ID, nil
}
