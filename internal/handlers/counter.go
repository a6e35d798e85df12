package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/benvon/smaug/internal/counter"
	logpkg "github.com/benvon/smaug/internal/logger"
	"github.com/benvon/smaug/internal/models"
	"github.com/benvon/smaug/internal/request"
	"github.com/benvon/smaug/internal/store"
	"github.com/benvon/smaug/internal/validation"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// CounterService is the part of counter.RateLimiter the HTTP API uses.
type CounterService interface {
	CheckAndIncrement(ctx context.Context, d counter.Descriptor, n int64) (bool, error)
	GetCountsConfig(ctx context.Context, cfg *models.CounterConfig) (map[models.Period]int64, error)
}

// CounterHandler serves the counter endpoints
type CounterHandler struct {
	counters CounterService
	records  store.RecordReader
	log      *zap.Logger
}

// NewCounterHandler creates a counter handler. records may be nil, which disables config lookups.
func NewCounterHandler(counters CounterService, records store.RecordReader, log *zap.Logger) *CounterHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CounterHandler{counters: counters, records: records, log: log}
}

// RegisterRoutes registers counter routes on r
func (h *CounterHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/counters/increment", h.Increment).Methods("POST")
	r.HandleFunc("/counters/get", h.Get).Methods("POST")
	r.HandleFunc("/configs/{key}", h.GetConfigRecord).Methods("GET")
}

// IncrementRequest is the body of POST /v1/counters/increment.
// A missing n counts one event.
type IncrementRequest struct {
	Config json.RawMessage `json:"config" validate:"required,json_object"`
	N      *int64          `json:"n,omitempty"`
}

// GetRequest is the body of POST /v1/counters/get.
type GetRequest struct {
	Config json.RawMessage `json:"config" validate:"required,json_object"`
}

// IncrementResponse reports the decision.
type IncrementResponse struct {
	Incremented bool `json:"incremented"`
}

// CountsResponse reports the live count of every period.
type CountsResponse struct {
	ConfigKey string `json:"config_key"`
	Minute    int64  `json:"minute"`
	Hour      int64  `json:"hour"`
	Day       int64  `json:"day"`
	Month     int64  `json:"month"`
}

// Increment handles POST /v1/counters/increment
func (h *CounterHandler) Increment(w http.ResponseWriter, r *http.Request) {
	var req IncrementRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validation.Validate.Struct(req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", validation.Describe(err))
		return
	}

	d, err := counter.DecodeDescriptor(req.Config)
	if err != nil {
		h.respondCounterError(w, r, err)
		return
	}

	n := int64(1)
	if req.N != nil {
		n = *req.N
	}

	incremented, err := h.counters.CheckAndIncrement(r.Context(), d, n)
	if err != nil {
		h.respondCounterError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, IncrementResponse{Incremented: incremented})
}

// Get handles POST /v1/counters/get
func (h *CounterHandler) Get(w http.ResponseWriter, r *http.Request) {
	var req GetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validation.Validate.Struct(req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", validation.Describe(err))
		return
	}

	cfg, err := counter.VetJSON(req.Config)
	if err != nil {
		h.respondCounterError(w, r, err)
		return
	}

	counts, err := h.counters.GetCountsConfig(r.Context(), cfg)
	if err != nil {
		h.respondCounterError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, CountsResponse{
		ConfigKey: counter.DeriveKey(cfg),
		Minute:    counts[models.PeriodMinute],
		Hour:      counts[models.PeriodHour],
		Day:       counts[models.PeriodDay],
		Month:     counts[models.PeriodMonth],
	})
}

// GetConfigRecord handles GET /v1/configs/{key}
func (h *CounterHandler) GetConfigRecord(w http.ResponseWriter, r *http.Request) {
	if h.records == nil {
		respondJSONError(w, http.StatusNotImplemented, "Not Implemented", "Config records are not readable from this store")
		return
	}

	key := mux.Vars(r)["key"]
	if err := validation.ValidateConfigKey(key); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	fields, err := h.records.ConfigRecord(r.Context(), key)
	if err != nil {
		h.respondCounterError(w, r, err)
		return
	}
	if fields == nil {
		respondJSONError(w, http.StatusNotFound, "Not Found", "No config record for this key")
		return
	}

	respondJSON(w, http.StatusOK, fields)
}

// respondCounterError maps validation failures to 400 and everything else to 503.
func (h *CounterHandler) respondCounterError(w http.ResponseWriter, r *http.Request, err error) {
	if counter.IsValidationError(err) {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	h.log.Error("counter_store_error",
		zap.String("error", logpkg.SanitizeError(err)),
		zap.String("path", logpkg.SanitizePath(r.URL.Path)),
		zap.String("request_id", request.RequestIDFromContext(r.Context())),
	)
	respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Counter store unavailable")
}
