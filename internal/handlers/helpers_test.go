package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return body
}

func TestRespondJSON(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	respondJSON(w, http.StatusOK, IncrementResponse{Incremented: true})

	resp := w.Result()
	defer func() { _ = resp.Body.Close() }()

	if resp.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Expected Content-Type 'application/json', got '%s'", resp.Header.Get("Content-Type"))
	}
	body := decodeBody(t, resp)
	if success, ok := body["success"].(bool); !ok || !success {
		t.Error("Expected success to be true")
	}
	data, ok := body["data"].(map[string]any)
	if !ok || data["incremented"] != true {
		t.Errorf("Expected data.incremented true, got %v", body["data"])
	}
	ts, _ := body["timestamp"].(string)
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("Timestamp '%s' is not valid RFC3339: %v", ts, err)
	}
}

func TestRespondJSONError(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	respondJSONError(w, http.StatusBadRequest, "Bad Request", "bad\nline "+strings.Repeat("x", 300))

	resp := w.Result()
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if success, ok := body["success"].(bool); !ok || success {
		t.Error("Expected success to be false")
	}
	msg, _ := body["message"].(string)
	if strings.Contains(msg, "\n") {
		t.Errorf("Expected control characters to be stripped, got %q", msg)
	}
	if len(msg) > maxErrorMessageLength+3 {
		t.Errorf("Expected message truncated to %d bytes, got %d", maxErrorMessageLength, len(msg))
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		wantOK bool
		status int
	}{
		{"object", `{"config":{"id":"svc"}}`, true, http.StatusOK},
		{"empty body", ``, false, http.StatusBadRequest},
		{"unknown field", `{"config":{},"extra":1}`, false, http.StatusBadRequest},
		{"trailing value", `{"config":{}} {"config":{}}`, false, http.StatusBadRequest},
		{"too large", `{"config":{"id":"` + strings.Repeat("x", 64) + `"}}`, false, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/", bytes.NewBufferString(tt.body))
			req.Body = http.MaxBytesReader(w, req.Body, 48)

			var dst GetRequest
			if got := decodeJSON(w, req, &dst); got != tt.wantOK {
				t.Fatalf("decodeJSON() = %v, want %v", got, tt.wantOK)
			}
			if !tt.wantOK && w.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, w.Code)
			}
		})
	}
}
