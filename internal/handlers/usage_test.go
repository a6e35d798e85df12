package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/benvon/smaug/internal/models"
	"github.com/gorilla/mux"
)

type fakeUsage struct {
	rows      []models.BillingUsage
	err       error
	gotMonth  string
	gotFilter string
}

func (f *fakeUsage) ListByMonth(_ context.Context, month, customer string) ([]models.BillingUsage, error) {
	f.gotMonth, f.gotFilter = month, customer
	return f.rows, f.err
}

func TestUsageHandler_List(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		usage      *fakeUsage
		wantStatus int
		wantRows   int
		wantFilter string
	}{
		{
			name: "rows for customer",
			path: "/v1/usage/2026-03?customer=c1",
			usage: &fakeUsage{rows: []models.BillingUsage{
				{Month: "2026-03", Customer: "c1", Stage: "dev", API: "/v1/a", TotalCalls: 4},
				{Month: "2026-03", Customer: "c1", Stage: "dev", API: "/v1/b", TotalCalls: 7},
			}},
			wantStatus: http.StatusOK,
			wantRows:   2,
			wantFilter: "c1",
		},
		{
			name:       "empty month",
			path:       "/v1/usage/2026-04",
			usage:      &fakeUsage{},
			wantStatus: http.StatusOK,
		},
		{
			name:       "bad month",
			path:       "/v1/usage/2026-13",
			usage:      &fakeUsage{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "store down",
			path:       "/v1/usage/2026-03",
			usage:      &fakeUsage{err: errors.New("connection refused")},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := mux.NewRouter()
			NewUsageHandler(tt.usage, nil).RegisterRoutes(r.PathPrefix("/v1").Subrouter())

			resp, body := do(t, r, "GET", tt.path, "")
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			rows, ok := body["data"].([]any)
			if !ok {
				t.Fatalf("Expected data array, got %v", body["data"])
			}
			if len(rows) != tt.wantRows {
				t.Errorf("Expected %d rows, got %d", tt.wantRows, len(rows))
			}
			if tt.usage.gotFilter != tt.wantFilter {
				t.Errorf("Expected customer filter %q, got %q", tt.wantFilter, tt.usage.gotFilter)
			}
		})
	}
}
