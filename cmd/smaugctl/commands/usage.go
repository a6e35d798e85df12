package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/benvon/smaug/internal/database"
	"github.com/benvon/smaug/internal/models"
	"github.com/spf13/cobra"
)

// NewUsageCmd creates the usage command
func NewUsageCmd() *cobra.Command {
	var customer string

	cmd := &cobra.Command{
		Use:   "usage MONTH",
		Short: "List billed calls of a month (YYYY-MM)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			month := args[0]
			if err := database.ValidateMonth(month); err != nil {
				return err
			}

			url, err := connectionURL(cmd, "database-url")
			if err != nil {
				return err
			}
			db, err := database.New(url)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer func() {
				if err := db.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
				}
			}()

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			rows, err := database.NewBillingRepository(db).ListByMonth(ctx, month, customer)
			if err != nil {
				return err
			}
			if rows == nil {
				rows = []models.BillingUsage{}
			}
			return render(cmd, rows)
		},
	}

	cmd.Flags().StringVar(&customer, "customer", "", "Only show this customer")
	return cmd
}
