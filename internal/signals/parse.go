// Package signals implements the independent heuristic detectors that
// inspect one account record each and report a typed finding.
//
// Detectors never fail on malformed input. Every field goes through the
// parse-with-default helpers in this file, so an unparseable count is 0, an
// unparseable list is empty and an unparseable date is treated as absent.
package signals

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/opensource-finance/fakeguard/internal/domain"
)

// Int reads a count field.
// Numbers are truncated toward zero, numeric strings may carry whitespace or
// a trailing non-numeric suffix ("120 posts"), and anything else yields 0.
func Int(rec domain.AccountRecord, key string) int {
	switch v := rec[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return truncate(v)
	case json.Number:
		return parseIntString(v.String())
	case string:
		return parseIntString(v)
	default:
		return 0
	}
}

func truncate(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(f)
}

func parseIntString(s string) int {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return truncate(f)
	}

	// leading integer prefix
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// IsFalse reports whether a boolean field is explicitly false, either as a
// boolean or as the string "false". Absent fields are not false.
func IsFalse(rec domain.AccountRecord, key string) bool {
	switch v := rec[key].(type) {
	case bool:
		return !v
	case string:
		return v == "false"
	default:
		return false
	}
}

// Blank reports whether a field is absent or only whitespace.
func Blank(rec domain.AccountRecord, key string) bool {
	return strings.TrimSpace(rec.String(key)) == ""
}

// List reads a comma-separated field, or a JSON array, as trimmed non-empty tokens.
func List(rec domain.AccountRecord, key string) []string {
	var raw []string
	switch v := rec[key].(type) {
	case nil:
		return nil
	case []any:
		for _, item := range v {
			raw = append(raw, domain.Stringify(item))
		}
	case []string:
		raw = v
	default:
		raw = strings.Split(rec.String(key), ",")
	}

	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}
