package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/benvon/smaug/internal/request"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
})

func TestErrorHandler_PanicRecovery(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	handler := ErrorHandler(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var nilMap map[string]string
		nilMap["key"] = "value"
	}))

	req := httptest.NewRequest("GET", "/v1/counters/get", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", resp.StatusCode)
	}
	var body ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Success || body.Error != "Internal Server Error" || body.Path != "/v1/counters/get" {
		t.Errorf("Unexpected error body %+v", body)
	}
	if logs.FilterMessage("panic_recovered").Len() != 1 {
		t.Error("Expected panic_recovered to be logged")
	}
}

func TestErrorHandler_NoPanic(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	ErrorHandler(zap.NewNop())(okHandler).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = request.RequestIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if _, err := uuid.Parse(seen); err != nil {
		t.Errorf("Expected generated UUID, got %q", seen)
	}
	if w.Header().Get(RequestIDHeader) != seen {
		t.Errorf("Expected response header %q, got %q", seen, w.Header().Get(RequestIDHeader))
	}

	given := uuid.NewString()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, given)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != given {
		t.Errorf("Expected client request ID %q to be kept, got %q", given, seen)
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "\nforged")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen == "\nforged" {
		t.Error("Expected invalid client request ID to be replaced")
	}
}

func TestLogging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		level  zapcore.Level
	}{
		{"ok", http.StatusOK, zapcore.InfoLevel},
		{"throttled", http.StatusTooManyRequests, zapcore.WarnLevel},
		{"server error", http.StatusServiceUnavailable, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zapcore.DebugLevel)
			handler := Logging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.WriteHeader(http.StatusTeapot)
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest("POST", "/v1/counters/increment", nil))

			entries := logs.FilterMessage("http_request").All()
			if len(entries) != 1 {
				t.Fatalf("Expected 1 http_request entry, got %d", len(entries))
			}
			if entries[0].Level != tt.level {
				t.Errorf("Expected level %v, got %v", tt.level, entries[0].Level)
			}
			if got := entries[0].ContextMap()["status_code"]; got != int64(tt.status) {
				t.Errorf("Expected status_code %d, got %v", tt.status, got)
			}
		})
	}
}

func TestJSONBody(t *testing.T) {
	t.Parallel()

	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	handler := JSONBody(16)(echo)

	tests := []struct {
		name        string
		method      string
		contentType string
		body        string
		want        int
	}{
		{"json", "POST", "application/json", `{"config":{}}`, http.StatusOK},
		{"json with charset", "POST", "application/json; charset=utf-8", `{}`, http.StatusOK},
		{"missing content type", "POST", "", `{}`, http.StatusUnsupportedMediaType},
		{"form", "POST", "application/x-www-form-urlencoded", `a=b`, http.StatusUnsupportedMediaType},
		{"too large", "POST", "application/json", strings.Repeat("x", 17), http.StatusRequestEntityTooLarge},
		{"get skips checks", "GET", "", "", http.StatusOK},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tt.method, "/", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	SecurityHeaders(okHandler).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Content-Security-Policy": "default-src 'none'",
		"Cache-Control":           "no-store",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("Expected %s %q, got %q", header, want, got)
		}
	}
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Error("Expected no HSTS header over plain HTTP")
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()

	handler := CORS([]string{"https://console.example"})(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/v1/counters/get", nil)
	req.Header.Set("Origin", "https://console.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://console.example" {
		t.Errorf("Expected allowed origin header, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Expected no CORS header for unknown origin, got %q", got)
	}

	passthrough := CORS(nil)(okHandler)
	w = httptest.NewRecorder()
	passthrough.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected passthrough without origins, got %d", w.Code)
	}
}

func TestIngressRateLimit(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tests := []struct {
		name   string
		client *redis.Client
	}{
		{"in process", nil},
		{"redis", client},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mw, err := IngressRateLimit(tt.client, "2-M", zap.NewNop())
			if err != nil {
				t.Fatalf("IngressRateLimit() unexpected error: %v", err)
			}
			handler := mw(okHandler)

			// Each subtest uses its own client address so the buckets do not overlap.
			remote := "10.0.0.1:1234"
			if tt.client != nil {
				remote = "10.0.0.2:1234"
			}

			want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
			for i, code := range want {
				req := httptest.NewRequest("POST", "/v1/counters/increment", nil)
				req.RemoteAddr = remote
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)
				if w.Code != code {
					t.Errorf("request %d: expected status %d, got %d", i+1, code, w.Code)
				}
				if w.Header().Get("X-RateLimit-Limit") != "2" {
					t.Errorf("request %d: expected X-RateLimit-Limit 2, got %q", i+1, w.Header().Get("X-RateLimit-Limit"))
				}
			}
		})
	}
}

func TestIngressRateLimit_InvalidRate(t *testing.T) {
	t.Parallel()

	if _, err := IngressRateLimit(nil, "lots", zap.NewNop()); err == nil {
		t.Error("Expected error for invalid rate")
	}
}

func TestIngressRateLimit_StoreDownFailsOpen(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	core, logs := observer.New(zapcore.WarnLevel)
	mw, err := IngressRateLimit(client, "1-M", zap.New(core))
	if err != nil {
		t.Fatalf("IngressRateLimit() unexpected error: %v", err)
	}
	mr.Close()

	w := httptest.NewRecorder()
	mw(okHandler).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected request to pass while the store is down, got %d", w.Code)
	}
	if logs.FilterMessage("ingress_limiter_unavailable").Len() != 1 {
		t.Error("Expected ingress_limiter_unavailable to be logged")
	}
}
