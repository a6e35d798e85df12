package models

// Period is a calendar counting window.
type Period string

const (
	PeriodMinute Period = "minute"
	PeriodHour   Period = "hour"
	PeriodDay    Period = "day"
	PeriodMonth  Period = "month"
)

// Periods lists every supported period, finest first.
var Periods = []Period{PeriodMinute, PeriodHour, PeriodDay, PeriodMonth}

// Dimension is a categorical (string-typed) descriptor field.
type Dimension string

const (
	DimensionWhiteLabel Dimension = "whitelabel"
	DimensionCustomer   Dimension = "customer"
	DimensionUser       Dimension = "user"
	DimensionPrefix     Dimension = "prefix"
)

// Dimensions lists every dimension in declared order. The audit line
// interpolates present dimensions in this order.
var Dimensions = []Dimension{DimensionWhiteLabel, DimensionCustomer, DimensionUser, DimensionPrefix}

// Unlimited is the limit sentinel meaning "no limit for this period".
const Unlimited int64 = -1

// Exceeds reports whether adding delta to count goes past limit. It never
// overflows for a non-negative count, whatever the delta.
func Exceeds(count, delta, limit int64) bool {
	return delta > limit-count
}

// CounterConfig is a vetted, canonical counter descriptor.
// A nil pointer means the field was not supplied.
type CounterConfig struct {
	ID string `json:"id" yaml:"id"`

	WhiteLabel *string `json:"whitelabel,omitempty" yaml:"whitelabel,omitempty"`
	Customer   *string `json:"customer,omitempty" yaml:"customer,omitempty"`
	User       *string `json:"user,omitempty" yaml:"user,omitempty"`
	Prefix     *string `json:"prefix,omitempty" yaml:"prefix,omitempty"`

	Minute *int64 `json:"minute,omitempty" yaml:"minute,omitempty"`
	Hour   *int64 `json:"hour,omitempty" yaml:"hour,omitempty"`
	Day    *int64 `json:"day,omitempty" yaml:"day,omitempty"`
	Month  *int64 `json:"month,omitempty" yaml:"month,omitempty"`
}

func (c *CounterConfig) limitField(p Period) **int64 {
	switch p {
	case PeriodMinute:
		return &c.Minute
	case PeriodHour:
		return &c.Hour
	case PeriodDay:
		return &c.Day
	case PeriodMonth:
		return &c.Month
	}
	return nil
}

func (c *CounterConfig) dimensionField(d Dimension) **string {
	switch d {
	case DimensionWhiteLabel:
		return &c.WhiteLabel
	case DimensionCustomer:
		return &c.Customer
	case DimensionUser:
		return &c.User
	case DimensionPrefix:
		return &c.Prefix
	}
	return nil
}

// Limit returns the configured limit for p and whether the field is present.
func (c *CounterConfig) Limit(p Period) (int64, bool) {
	f := c.limitField(p)
	if f == nil || *f == nil {
		return 0, false
	}
	return **f, true
}

// SetLimit sets the limit for p. Unknown periods are ignored.
func (c *CounterConfig) SetLimit(p Period, v int64) {
	if f := c.limitField(p); f != nil {
		*f = &v
	}
}

// Dimension returns the value of d and whether the field is present.
func (c *CounterConfig) Dimension(d Dimension) (string, bool) {
	f := c.dimensionField(d)
	if f == nil || *f == nil {
		return "", false
	}
	return **f, true
}

// SetDimension sets d. Unknown dimensions are ignored.
func (c *CounterConfig) SetDimension(d Dimension, v string) {
	if f := c.dimensionField(d); f != nil {
		*f = &v
	}
}

// FinitePeriods returns the periods that carry a limit other than Unlimited, finest first.
func (c *CounterConfig) FinitePeriods() []Period {
	var out []Period
	for _, p := range Periods {
		if v, ok := c.Limit(p); ok && v != Unlimited {
			out = append(out, p)
		}
	}
	return out
}

// PresentPeriods returns the periods supplied in the config, finest first.
func (c *CounterConfig) PresentPeriods() []Period {
	var out []Period
	for _, p := range Periods {
		if _, ok := c.Limit(p); ok {
			out = append(out, p)
		}
	}
	return out
}
