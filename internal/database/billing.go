package database

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/benvon/smaug/internal/models"
)

var monthPattern = regexp.MustCompile(`^[0-9]{4}-(0[1-9]|1[0-2])$`)

// BillingRepository stores monthly call totals.
type BillingRepository struct {
	db *DB
}

// NewBillingRepository creates a new billing repository
func NewBillingRepository(db *DB) *BillingRepository {
	return &BillingRepository{db: db}
}

// AddUsage adds every row's TotalCalls to the stored total of its group
// inside one transaction. Rows of an unknown month format are rejected
// before anything is written.
func (r *BillingRepository) AddUsage(ctx context.Context, rows []models.BillingUsage) error {
	if len(rows) == 0 {
		return nil
	}
	for _, u := range rows {
		if err := ValidateMonth(u.Month); err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin billing transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO billing_usage (month, whitelabel, customer, stage, api, total_calls, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (month, whitelabel, customer, stage, api) DO UPDATE SET
			total_calls = billing_usage.total_calls + EXCLUDED.total_calls,
			updated_at = EXCLUDED.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare billing upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for _, u := range rows {
		if _, err := stmt.ExecContext(ctx, u.Month, u.WhiteLabel, u.Customer, u.Stage, u.API, u.TotalCalls, now); err != nil {
			return fmt.Errorf("upsert billing usage: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit billing usage: %w", err)
	}
	return nil
}

// ListByMonth returns every group of month, optionally narrowed to one customer.
func (r *BillingRepository) ListByMonth(ctx context.Context, month, customer string) ([]models.BillingUsage, error) {
	if err := ValidateMonth(month); err != nil {
		return nil, err
	}

	query := `
		SELECT month, whitelabel, customer, stage, api, total_calls, updated_at
		FROM billing_usage
		WHERE month = $1 AND ($2::text = '' OR customer = $2)
		ORDER BY whitelabel, customer, stage, api
	`
	rows, err := r.db.QueryContext(ctx, query, month, customer)
	if err != nil {
		return nil, fmt.Errorf("list billing usage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.BillingUsage
	for rows.Next() {
		var u models.BillingUsage
		if err := rows.Scan(&u.Month, &u.WhiteLabel, &u.Customer, &u.Stage, &u.API, &u.TotalCalls, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan billing usage: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate billing usage: %w", err)
	}
	return out, nil
}

// ValidateMonth checks a YYYY-MM billing month.
func ValidateMonth(month string) error {
	if !monthPattern.MatchString(month) {
		return fmt.Errorf("invalid billing month %q, want YYYY-MM", month)
	}
	return nil
}
