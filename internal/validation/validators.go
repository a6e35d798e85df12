package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate

	configKeyPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)
)

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("json_object", validateJSONObject); err != nil {
		panic(fmt.Sprintf("failed to register json_object validator: %v", err))
	}
	if err := Validate.RegisterValidation("config_key", validateConfigKey); err != nil {
		panic(fmt.Sprintf("failed to register config_key validator: %v", err))
	}
}

// validateJSONObject accepts raw JSON whose top-level value is an object.
func validateJSONObject(fl validator.FieldLevel) bool {
	raw, ok := fl.Field().Interface().(json.RawMessage)
	if !ok {
		return false
	}
	raw = bytes.TrimSpace(raw)
	return len(raw) >= 2 && raw[0] == '{' && json.Valid(raw)
}

// validateConfigKey accepts a lowercase hex SHA-1 digest.
func validateConfigKey(fl validator.FieldLevel) bool {
	return configKeyPattern.MatchString(fl.Field().String())
}

// ValidateConfigKey validates a config key path parameter
func ValidateConfigKey(key string) error {
	if !configKeyPattern.MatchString(key) {
		return fmt.Errorf("invalid config key: %s (must be 40 lowercase hex characters)", key)
	}
	return nil
}

// Describe turns validator errors into one readable message.
func Describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return "Validation failed"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed on '%s'", fe.Field(), fe.Tag()))
	}
	return "Validation failed: " + strings.Join(parts, ", ")
}
