package validation

import (
	"encoding/json"
	"strings"
	"testing"
)

type configRequest struct {
	Config json.RawMessage `json:"config" validate:"required,json_object"`
	Key    string          `json:"key" validate:"omitempty,config_key"`
}

func TestValidate_Struct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     configRequest
		wantErr bool
	}{
		{"object", configRequest{Config: json.RawMessage(`{"id":"svc"}`)}, false},
		{"padded object", configRequest{Config: json.RawMessage(" {\"id\":\"svc\"} ")}, false},
		{"valid key", configRequest{Config: json.RawMessage(`{}`), Key: "a0f109817eb6f7ae4b201fb00338386354c026de"}, false},
		{"missing config", configRequest{}, true},
		{"array", configRequest{Config: json.RawMessage(`[1]`)}, true},
		{"string", configRequest{Config: json.RawMessage(`"svc"`)}, true},
		{"truncated", configRequest{Config: json.RawMessage(`{"id":`)}, true},
		{"uppercase key", configRequest{Config: json.RawMessage(`{}`), Key: "A0F109817EB6F7AE4B201FB00338386354C026DE"}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := Validate.Struct(tt.req)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate.Struct() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateConfigKey(t *testing.T) {
	t.Parallel()

	if err := ValidateConfigKey("a0f109817eb6f7ae4b201fb00338386354c026de"); err != nil {
		t.Errorf("Expected valid key, got %v", err)
	}
	for _, key := range []string{"", "abc", "../../etc/passwd", strings.Repeat("g", 40)} {
		if err := ValidateConfigKey(key); err == nil {
			t.Errorf("ValidateConfigKey(%q) expected error", key)
		}
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	err := Validate.Struct(configRequest{})
	if got := Describe(err); !strings.Contains(got, "Config failed on 'required'") {
		t.Errorf("Describe() = %q, expected required failure for Config", got)
	}
	if got := Describe(nil); got != "Validation failed" {
		t.Errorf("Describe(nil) = %q, want generic message", got)
	}
}
