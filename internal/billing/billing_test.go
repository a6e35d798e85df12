package billing

import (
	"errors"
	"testing"
	"time"
)

const testKey = "547446c9c3dc681ad0a9f20ffb55dedbece519b4"

func TestParseLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
		want Entry
	}{
		{
			name: "whitelabel and customer",
			line: "smaug#id#test-api-call#whitelabel##customer#789#key#" + testKey + "#n#3",
			want: Entry{
				ID: "test-api-call", Customer: "789", Key: testKey, Calls: 3,
				Endpoint: "test-api-call", Stage: "test-api-call",
			},
		},
		{
			name: "endpoint with query",
			line: "smaug#id#dev/v1/things?page=2#whitelabel#acme#customer#c1#user#u1#prefix#p#key#" + testKey + "#n#1",
			want: Entry{
				ID: "dev/v1/things?page=2", WhiteLabel: "acme", Customer: "c1", User: "u1", Prefix: "p",
				Key: testKey, Calls: 1,
				Endpoint: "dev/v1/things", Query: "page=2", Stage: "dev", API: "/v1/things",
			},
		},
		{
			name: "correction without dimensions",
			line: "smaug#id#prod/search#key#" + testKey + "#n#-10",
			want: Entry{
				ID: "prod/search", Key: testKey, Calls: -10,
				Endpoint: "prod/search", Stage: "prod", API: "/search",
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseLine(tt.line)
			if err != nil {
				t.Fatalf("ParseLine() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseLine() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseLine_Rejects(t *testing.T) {
	t.Parallel()

	for _, line := range []string{
		"",
		"hello world",
		"smaug#id#svc#key#nothex#n#1",
		"smaug#id#svc#key#" + testKey + "#n#one",
		"other#id#svc#key#" + testKey + "#n#1",
	} {
		if _, err := ParseLine(line); !errors.Is(err, ErrNotAuditLine) {
			t.Errorf("ParseLine(%q) expected ErrNotAuditLine, got %v", line, err)
		}
	}
}

func TestExtractLine(t *testing.T) {
	t.Parallel()

	line := "smaug#id#svc#key#" + testKey + "#n#1"
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{line, line, true},
		{`{"level":"info","logger":"audit","msg":"` + line + `"}`, line, true},
		{"[INFO] 2026-03-10T12:00:30Z rid " + line + " trailing", line, true},
		{"no audit here", "", false},
	}

	for _, tt := range tests {
		got, ok := ExtractLine(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ExtractLine(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestAggregator(t *testing.T) {
	t.Parallel()

	march := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	april := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)

	lines := []struct {
		line string
		at   time.Time
	}{
		{"smaug#id#dev/v1/a?x=1#whitelabel#w#customer#c#key#" + testKey + "#n#3", march},
		{"smaug#id#dev/v1/a?x=2#whitelabel#w#customer#c#key#" + testKey + "#n#2", march},
		{"smaug#id#dev/v1/a#whitelabel#w#customer#c#key#" + testKey + "#n#-1", march},
		{"smaug#id#dev/v1/b#whitelabel#w#customer#c#key#" + testKey + "#n#7", march},
		{"smaug#id#dev/v1/a#whitelabel#w#customer#c#key#" + testKey + "#n#4", april},
	}

	agg := NewAggregator()
	for _, l := range lines {
		e, err := ParseLine(l.line)
		if err != nil {
			t.Fatalf("ParseLine(%q) unexpected error: %v", l.line, err)
		}
		agg.Add(e, l.at)
	}

	if agg.Len() != 3 {
		t.Fatalf("Expected 3 groups, got %d", agg.Len())
	}
	usage := agg.Usage()
	want := []struct {
		month, api string
		calls      int64
	}{
		{"2026-03", "/v1/a", 4},
		{"2026-03", "/v1/b", 7},
		{"2026-04", "/v1/a", 4},
	}
	for i, w := range want {
		u := usage[i]
		if u.Month != w.month || u.API != w.api || u.TotalCalls != w.calls {
			t.Errorf("usage[%d] = %+v, want month=%s api=%s calls=%d", i, u, w.month, w.api, w.calls)
		}
		if u.WhiteLabel != "w" || u.Customer != "c" || u.Stage != "dev" {
			t.Errorf("usage[%d] has unexpected grouping %+v", i, u)
		}
	}

	agg.Reset()
	if agg.Len() != 0 {
		t.Errorf("Expected empty aggregator after Reset, got %d", agg.Len())
	}
}
