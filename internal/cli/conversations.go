package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avanlaar/glimmer/internal/models"
)

var conversationsUser string

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List a user's conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		convs, err := dbClient.ListConversations(context.Background(), conversationsUser)
		if err != nil {
			return fmt.Errorf("list conversations: %w", err)
		}

		if len(convs) == 0 {
			fmt.Println("No conversations found")
			return nil
		}

		fmt.Printf("%-38s %-12s %-20s %s\n", "ID", "MODEL", "UPDATED", "TITLE")
		for _, conv := range convs {
			title := conv.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%-38s %-12s %-20s %s\n",
				models.MustRecordIDString(conv.ID),
				conv.Model,
				conv.UpdatedAt.Format("2006-01-02 15:04:05"),
				title)
		}
		return nil
	},
}

func init() {
	conversationsCmd.Flags().StringVar(&conversationsUser, "user", "", "user ID")
	_ = conversationsCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(conversationsCmd)
}
