package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/avanlaar/glimmer/internal/models"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Administer user accounts and credit balances",
}

var usersCreateCredits int

var usersCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a user with an initial credit balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		user, err := dbClient.CreateUser(ctx, uuid.New().String(), args[0], usersCreateCredits)
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		fmt.Printf("Created user %s\n", models.MustRecordIDString(user.ID))
		fmt.Printf("  Name: %s\n", user.Name)
		fmt.Printf("  Credits: %d\n", user.Credits)
		return nil
	},
}

var usersTopupAmount int

var usersTopupCmd = &cobra.Command{
	Use:   "topup <user-id>",
	Short: "Add credits to a user's balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if usersTopupAmount <= 0 {
			return fmt.Errorf("amount must be positive, got %d", usersTopupAmount)
		}
		balance, err := dbClient.CreditCredits(context.Background(), args[0], usersTopupAmount)
		if err != nil {
			return fmt.Errorf("topup: %w", err)
		}
		fmt.Printf("Credited %d, new balance: %d\n", usersTopupAmount, balance)
		return nil
	},
}

var usersBalanceCmd = &cobra.Command{
	Use:   "balance <user-id>",
	Short: "Show a user's credit balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := dbClient.GetUser(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		fmt.Printf("%s (%s): %d credits\n", user.Name, models.MustRecordIDString(user.ID), user.Credits)
		return nil
	},
}

func init() {
	usersCreateCmd.Flags().IntVar(&usersCreateCredits, "credits", 1000, "initial credit balance")
	usersTopupCmd.Flags().IntVar(&usersTopupAmount, "amount", 0, "credits to add")
	_ = usersTopupCmd.MarkFlagRequired("amount")

	usersCmd.AddCommand(usersCreateCmd)
	usersCmd.AddCommand(usersTopupCmd)
	usersCmd.AddCommand(usersBalanceCmd)
	rootCmd.AddCommand(usersCmd)
}
