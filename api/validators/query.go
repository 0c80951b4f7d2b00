package validators

import (
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/escrowledger/pkg/errors"
)

// query returns the trimmed parameter and whether it was non-blank.
func query(r *http.Request, key string) (string, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	return raw, raw != ""
}

func badParam(key, want string, extra map[string]any) error {
	details := map[string]any{"field": key}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "query parameter "+key+" must be "+want).WithDetails(details)
}

// ParseQueryInt returns def when the parameter is absent and rejects values outside [min, max].
func ParseQueryInt(r *http.Request, key string, def, min, max int) (int, error) {
	raw, ok := query(r, key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badParam(key, "an integer", nil)
	}
	if n < min || n > max {
		return 0, badParam(key, "between "+strconv.Itoa(min)+" and "+strconv.Itoa(max), map[string]any{"min": min, "max": max})
	}
	return n, nil
}

// ParseQueryUUID returns nil when the parameter is absent.
func ParseQueryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	raw, ok := query(r, key)
	if !ok {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, badParam(key, "a uuid", nil)
	}
	return &id, nil
}

// ParseQueryTime accepts RFC3339 timestamps, normalized to UTC. Absent means nil.
func ParseQueryTime(r *http.Request, key string) (*time.Time, error) {
	raw, ok := query(r, key)
	if !ok {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, badParam(key, "an RFC3339 timestamp", nil)
	}
	t = t.UTC()
	return &t, nil
}

// ParseQueryString trims the parameter and caps its length.
func ParseQueryString(r *http.Request, key string, maxLen int) string {
	raw, _ := query(r, key)
	return SanitizeString(raw, maxLen)
}

// SanitizeString trims input and caps it at maxLen bytes without splitting a
// UTF-8 sequence. maxLen <= 0 means no cap.
func SanitizeString(input string, maxLen int) string {
	s := strings.TrimSpace(input)
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
