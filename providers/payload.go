package providers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Traversal helpers for the generic payload form. JSON numbers arrive as
// float64; provider ids may be numbers or strings, so id lookups go through
// asString.

func getMap(m map[string]any, keys ...string) map[string]any {
	current := m
	for _, key := range keys {
		next, ok := current[key].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

func getString(m map[string]any, keys ...string) string {
	if len(keys) == 0 {
		return ""
	}
	parent := m
	if len(keys) > 1 {
		parent = getMap(m, keys[:len(keys)-1]...)
	}
	if parent == nil {
		return ""
	}
	return asString(parent[keys[len(keys)-1]])
}

func getInt(m map[string]any, keys ...string) int {
	if len(keys) == 0 {
		return 0
	}
	parent := m
	if len(keys) > 1 {
		parent = getMap(m, keys[:len(keys)-1]...)
	}
	if parent == nil {
		return 0
	}
	switch v := parent[keys[len(keys)-1]].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

func getBool(m map[string]any, keys ...string) bool {
	if len(keys) == 0 {
		return false
	}
	parent := m
	if len(keys) > 1 {
		parent = getMap(m, keys[:len(keys)-1]...)
	}
	if parent == nil {
		return false
	}
	b, _ := parent[keys[len(keys)-1]].(bool)
	return b
}

func getSlice(m map[string]any, keys ...string) []any {
	if len(keys) == 0 {
		return nil
	}
	parent := m
	if len(keys) > 1 {
		parent = getMap(m, keys[:len(keys)-1]...)
	}
	if parent == nil {
		return nil
	}
	s, _ := parent[keys[len(keys)-1]].([]any)
	return s
}

func asString(v any) string {
	switch typed := v.(type) {
	case string:
		return typed
	case float64:
		// Provider numeric ids are integral; render without exponent.
		return strconv.FormatInt(int64(typed), 10)
	case bool:
		return strconv.FormatBool(typed)
	}
	return ""
}

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05Z0700"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// stripRefPrefix reduces a full git ref to a branch or tag name.
func stripRefPrefix(ref string) string {
	ref = strings.TrimPrefix(ref, "refs/heads/")
	ref = strings.TrimPrefix(ref, "refs/tags/")
	return ref
}

// verifyHMACSignature checks an hmac-sha256 hex signature over the raw body
// with a timing-safe comparison. The signature may carry a "sha256=" prefix.
// Any malformed input compares as invalid rather than erroring out.
func verifyHMACSignature(secret string, body []byte, signature string) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}

// headerLookup is a case-insensitive header get.
func headerLookup(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
