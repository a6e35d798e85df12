// Package billing turns audit lines into per-tenant call totals.
package billing

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/benvon/smaug/internal/models"
)

// MonthLayout formats the billing month of a usage row.
const MonthLayout = "2006-01"

var (
	// ErrNotAuditLine is returned for input without an audit line.
	ErrNotAuditLine = errors.New("not an audit line")

	auditLinePattern = regexp.MustCompile(`^smaug#id#(?P<id>\S+?)` +
		`(?:#whitelabel#(?P<whitelabel>\S*?))?` +
		`(?:#customer#(?P<customer>\S*?))?` +
		`(?:#user#(?P<user>\S*?))?` +
		`(?:#prefix#(?P<prefix>\S*?))?` +
		`#key#(?P<key>[0-9a-f]{40})#n#(?P<n>-?[0-9]+)$`)

	endpointPattern = regexp.MustCompile(`(?P<endpoint>[^\s?#]+)(?:\?(?P<query>\S+))?`)
	stagePattern    = regexp.MustCompile(`(?P<stage>[^\s/]+)(?P<api>\S+)?`)
)

// Entry is one parsed audit line.
type Entry struct {
	ID         string
	WhiteLabel string
	Customer   string
	User       string
	Prefix     string
	Key        string
	Calls      int64

	Endpoint string
	Query    string
	Stage    string
	API      string
}

// ExtractLine finds the audit line inside s, which may be a whole log entry.
func ExtractLine(s string) (string, bool) {
	i := strings.Index(s, "smaug#id#")
	if i < 0 {
		return "", false
	}
	line := s[i:]
	if end := strings.IndexAny(line, " \t\r\n\","); end >= 0 {
		line = line[:end]
	}
	return line, true
}

// ParseLine parses a single audit line.
func ParseLine(line string) (Entry, error) {
	m := auditLinePattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return Entry{}, ErrNotAuditLine
	}
	group := func(name string) string {
		return m[auditLinePattern.SubexpIndex(name)]
	}

	calls, err := strconv.ParseInt(group("n"), 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("parse call count: %w", err)
	}

	e := Entry{
		ID:         group("id"),
		WhiteLabel: group("whitelabel"),
		Customer:   group("customer"),
		User:       group("user"),
		Prefix:     group("prefix"),
		Key:        group("key"),
		Calls:      calls,
	}
	e.Endpoint, e.Query = splitEndpoint(e.ID)
	e.Stage, e.API = splitStage(e.Endpoint)
	return e, nil
}

// splitEndpoint splits an id like "dev/v1/things?page=2" at the query.
func splitEndpoint(id string) (endpoint, query string) {
	m := endpointPattern.FindStringSubmatch(id)
	if m == nil {
		return "", ""
	}
	return m[1], m[2]
}

// splitStage splits an endpoint like "dev/v1/things" into "dev" and "/v1/things".
func splitStage(endpoint string) (stage, api string) {
	m := stagePattern.FindStringSubmatch(endpoint)
	if m == nil {
		return "", ""
	}
	return m[1], m[2]
}

type usageKey struct {
	month, whiteLabel, customer, stage, api string
}

// Aggregator sums calls by month, whitelabel, customer, stage and api.
// It is not safe for concurrent use.
type Aggregator struct {
	totals map[usageKey]int64
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{totals: make(map[usageKey]int64)}
}

// Add counts e in the month of at. Corrections (negative calls) reduce the total.
func (a *Aggregator) Add(e Entry, at time.Time) {
	k := usageKey{
		month:      at.UTC().Format(MonthLayout),
		whiteLabel: e.WhiteLabel,
		customer:   e.Customer,
		stage:      e.Stage,
		api:        e.API,
	}
	a.totals[k] += e.Calls
}

// Len reports the number of distinct groups.
func (a *Aggregator) Len() int {
	return len(a.totals)
}

// Usage returns the totals in a stable order.
func (a *Aggregator) Usage() []models.BillingUsage {
	out := make([]models.BillingUsage, 0, len(a.totals))
	for k, calls := range a.totals {
		out = append(out, models.BillingUsage{
			Month:      k.month,
			WhiteLabel: k.whiteLabel,
			Customer:   k.customer,
			Stage:      k.stage,
			API:        k.api,
			TotalCalls: calls,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		if a.WhiteLabel != b.WhiteLabel {
			return a.WhiteLabel < b.WhiteLabel
		}
		if a.Customer != b.Customer {
			return a.Customer < b.Customer
		}
		if a.Stage != b.Stage {
			return a.Stage < b.Stage
		}
		return a.API < b.API
	})
	return out
}

// Reset drops every total.
func (a *Aggregator) Reset() {
	a.totals = make(map[usageKey]int64)
}
