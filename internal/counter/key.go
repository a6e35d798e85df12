package counter

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"unicode/utf16"

	"github.com/benvon/smaug/internal/models"
)

// DeriveKey returns the config key: the hex SHA-1 of the canonical serialization.
func DeriveKey(cfg *models.CounterConfig) string {
	sum := sha1.Sum(CanonicalJSON(cfg))
	return hex.EncodeToString(sum[:])
}

// CanonicalJSON serializes cfg as a JSON object with keys sorted
// lexicographically, ", " and ": " separators and ASCII-only string
// escaping. Keys already stored under this format stay addressable.
func CanonicalJSON(cfg *models.CounterConfig) []byte {
	type member struct {
		name  string
		value string
	}
	members := []member{{name: "id", value: quoteASCII(cfg.ID)}}
	for _, p := range models.Periods {
		if v, ok := cfg.Limit(p); ok {
			members = append(members, member{name: string(p), value: strconv.FormatInt(v, 10)})
		}
	}
	for _, d := range models.Dimensions {
		if v, ok := cfg.Dimension(d); ok {
			members = append(members, member{name: string(d), value: quoteASCII(v)})
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].name < members[j].name })

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(quoteASCII(m.name))
		buf.WriteString(": ")
		buf.WriteString(m.value)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

func quoteASCII(s string) string {
	var buf bytes.Buffer
	buf.Grow(len(s) + 2)
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			switch {
			case r >= 0x20 && r < 0x7f:
				buf.WriteRune(r)
			case r > 0xffff:
				r1, r2 := utf16.EncodeRune(r)
				fmt.Fprintf(&buf, `\u%04x\u%04x`, r1, r2)
			default:
				fmt.Fprintf(&buf, `\u%04x`, r)
			}
		}
	}
	buf.WriteByte('"')
	return buf.String()
}
