package cascade

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/compresr/llm-relay/internal/utils"
)

// Parser converts a raw tier value into T. Raw values come from env vars,
// cache entries and store rows, which all hold the same text encoding.
type Parser[T any] func(raw string) (T, error)

// StringList parses a JSON array of strings or a comma-separated list.
// Blank members are dropped; order is preserved.
func StringList(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty list")
	}
	var items []string
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return nil, fmt.Errorf("invalid JSON list: %w", err)
		}
	} else {
		items = strings.Split(raw, ",")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out, nil
}

// StringSet parses the same encodings as StringList into a set.
func StringSet(raw string) (map[string]struct{}, error) {
	items, err := StringList(raw)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set, nil
}

// NonEmptyString accepts any non-blank string. JSON-quoted strings are unquoted
// so values written by the CLI with or without quotes read back the same.
func NonEmptyString(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, `"`) {
		var unq string
		if err := json.Unmarshal([]byte(s), &unq); err == nil {
			s = strings.TrimSpace(unq)
		}
	}
	if s == "" {
		return "", fmt.Errorf("empty string")
	}
	return s, nil
}

// PositiveInt parses an integer >= 1.
func PositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	if n < 1 {
		return 0, fmt.Errorf("value %d must be >= 1", n)
	}
	return n, nil
}

// JSON returns a parser decoding raw into T.
func JSON[T any]() Parser[T] {
	return func(raw string) (T, error) {
		var v T
		if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &v); err != nil {
			return v, fmt.Errorf("invalid JSON: %w", err)
		}
		return v, nil
	}
}

// IsEmptyValue reports whether raw means "no value": blank, null, [] or {}.
// Writing an empty value deletes the setting.
func IsEmptyValue(raw string) bool {
	switch strings.Join(strings.Fields(raw), "") {
	case "", "null", "[]", "{}", `""`:
		return true
	}
	return false
}

// marshalValue encodes v for storage. Strings are stored verbatim.
func marshalValue(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := utils.MarshalNoEscape(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
