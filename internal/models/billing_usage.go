package models

import "time"

// BillingUsage is one aggregated row of billable calls.
// Rows are keyed by (Month, WhiteLabel, Customer, Stage, API).
type BillingUsage struct {
	Month      string    `json:"month" yaml:"month"` // YYYY-MM
	WhiteLabel string    `json:"whitelabel" yaml:"whitelabel"`
	Customer   string    `json:"customer" yaml:"customer"`
	Stage      string    `json:"stage" yaml:"stage"`
	API        string    `json:"api" yaml:"api"`
	TotalCalls int64     `json:"total_calls" yaml:"total_calls"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"updated_at"`
}
