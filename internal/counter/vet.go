package counter

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"github.com/benvon/smaug/internal/models"
)

// Descriptor is a raw counter descriptor as received from a caller.
type Descriptor map[string]any

type fieldKind int

const (
	intKind fieldKind = iota
	stringKind
)

// schemaField declares the type and default of a recognized descriptor field.
type schemaField struct {
	kind       fieldKind
	period     models.Period
	dimension  models.Dimension
	intDefault int64
	strDefault string
}

// schema is the defaulting table. Fields absent from it are dropped by Vet.
var schema = func() map[string]schemaField {
	s := make(map[string]schemaField, len(models.Periods)+len(models.Dimensions))
	for _, p := range models.Periods {
		s[string(p)] = schemaField{kind: intKind, period: p, intDefault: models.Unlimited}
	}
	for _, d := range models.Dimensions {
		s[string(d)] = schemaField{kind: stringKind, dimension: d, strDefault: ""}
	}
	return s
}()

// Vet canonicalizes a descriptor. id must be a non-empty string. Every
// recognized field keeps its value when the type matches and takes its
// declared default otherwise; unrecognized fields are dropped.
func Vet(d Descriptor) (*models.CounterConfig, error) {
	id, ok := d["id"].(string)
	if !ok || id == "" {
		return nil, &ValidationError{Field: "id", Err: ErrInvalidID}
	}

	cfg := &models.CounterConfig{ID: id}
	for name, value := range d {
		field, known := schema[name]
		if !known {
			continue
		}
		switch field.kind {
		case intKind:
			n, ok := asInt64(value)
			if !ok {
				n = field.intDefault
			}
			cfg.SetLimit(field.period, n)
		case stringKind:
			s, ok := value.(string)
			if !ok {
				s = field.strDefault
			}
			cfg.SetDimension(field.dimension, s)
		}
	}
	return cfg, nil
}

// VetJSON decodes a JSON object and vets it. Numbers are kept exact so that
// 10 is an integer and 10.0 is not.
func VetJSON(data []byte) (*models.CounterConfig, error) {
	d, err := DecodeDescriptor(data)
	if err != nil {
		return nil, err
	}
	return Vet(d)
}

// DecodeDescriptor decodes a JSON object into a Descriptor using json.Number for numbers.
func DecodeDescriptor(data []byte) (Descriptor, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var d Descriptor
	if err := dec.Decode(&d); err != nil {
		return nil, &ValidationError{Field: "config", Err: err}
	}
	return d, nil
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return uintToInt64(uint64(n))
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return uintToInt64(n)
	case json.Number:
		i, err := strconv.ParseInt(string(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func uintToInt64(n uint64) (int64, bool) {
	if n > math.MaxInt64 {
		return 0, false
	}
	return int64(n), true
}
