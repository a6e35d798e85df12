package handlers

import (
	"context"
	"net/http"

	"github.com/benvon/smaug/internal/database"
	logpkg "github.com/benvon/smaug/internal/logger"
	"github.com/benvon/smaug/internal/models"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// UsageLister reads aggregated billing rows.
type UsageLister interface {
	ListByMonth(ctx context.Context, month, customer string) ([]models.BillingUsage, error)
}

// UsageHandler serves billing totals written by the worker.
type UsageHandler struct {
	usage UsageLister
	log   *zap.Logger
}

// NewUsageHandler creates a usage handler
func NewUsageHandler(usage UsageLister, log *zap.Logger) *UsageHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &UsageHandler{usage: usage, log: log}
}

// RegisterRoutes registers usage routes on r
func (h *UsageHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/usage/{month}", h.List).Methods("GET")
}

// List handles GET /v1/usage/{month}?customer=
func (h *UsageHandler) List(w http.ResponseWriter, r *http.Request) {
	month := mux.Vars(r)["month"]
	if err := database.ValidateMonth(month); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	rows, err := h.usage.ListByMonth(r.Context(), month, r.URL.Query().Get("customer"))
	if err != nil {
		h.log.Error("failed_to_list_usage",
			zap.String("month", month),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Billing store unavailable")
		return
	}
	if rows == nil {
		rows = []models.BillingUsage{}
	}

	respondJSON(w, http.StatusOK, rows)
}
