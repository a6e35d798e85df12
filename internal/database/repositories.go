package database

import (
	"context"

	"github.com/benvon/smaug/internal/models"
)

// BillingRepositoryInterface defines the billing operations used by the worker and CLI.
// This interface enables better testability by allowing mock implementations
type BillingRepositoryInterface interface {
	AddUsage(ctx context.Context, rows []models.BillingUsage) error
	ListByMonth(ctx context.Context, month, customer string) ([]models.BillingUsage, error)
}

// Ensure concrete types implement the interfaces
var _ BillingRepositoryInterface = (*BillingRepository)(nil)
