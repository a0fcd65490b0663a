package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// deepCopy returns a deep copy of a document by round-tripping through JSON.
// A value JSON cannot represent (NaN, Inf, channels, funcs) is an error.
func deepCopy(src map[string]any) (map[string]any, error) {
	if src == nil {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("store: encode item: %w", err)
	}
	var dst map[string]any
	if err := json.Unmarshal(b, &dst); err != nil {
		return nil, fmt.Errorf("store: decode item: %w", err)
	}
	if dst == nil {
		dst = map[string]any{}
	}
	return dst, nil
}

// normalize restores the Go types of the managed fields after a JSON round
// trip: integral ids become int64 and lastUpdate becomes a time.Time.
func normalize(doc map[string]any) Item {
	if f, ok := doc["id"].(float64); ok && f == math.Trunc(f) {
		doc["id"] = int64(f)
	}
	if s, ok := doc["lastUpdate"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			doc["lastUpdate"] = t.UTC()
		}
	}
	return Item(doc)
}

func cloneItem(it Item) (Item, error) {
	if it == nil {
		return nil, nil
	}
	doc, err := deepCopy(it)
	if err != nil {
		return nil, err
	}
	return normalize(doc), nil
}

func cloneItems(items []Item) ([]Item, error) {
	out := make([]Item, len(items))
	for i, it := range items {
		c, err := cloneItem(it)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// newItem builds a fresh item from caller data. The managed fields always win.
func newItem(id any, data map[string]any, now time.Time) (Item, error) {
	doc, err := deepCopy(data)
	if err != nil {
		return nil, err
	}
	doc["id"] = id
	doc["lastUpdate"] = now
	return normalize(doc), nil
}

// mergeItem overlays data on a copy of existing. The id never changes.
func mergeItem(existing Item, data map[string]any, now time.Time) (Item, error) {
	out, err := cloneItem(existing)
	if err != nil {
		return nil, err
	}
	patch, err := deepCopy(data)
	if err != nil {
		return nil, err
	}
	for k, v := range patch {
		if k == "id" {
			continue
		}
		out[k] = v
	}
	out["lastUpdate"] = now
	return out, nil
}

// decimalLiteral is the decimal form a numeric cast accepts: optional sign,
// digits with an optional fraction, optional exponent. No digit separators.
var decimalLiteral = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// coerceID converts a path id the way a numeric cast would: surrounding space
// is ignored and the empty string is zero. Unsigned 0x, 0o and 0b integers
// and the spelling Infinity are accepted too.
func coerceID(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return 0, true
	case "Infinity", "+Infinity":
		return math.Inf(1), true
	case "-Infinity":
		return math.Inf(-1), true
	}
	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			n, ok := new(big.Int).SetString(s[2:], base)
			if !ok || n.Sign() < 0 || strings.ContainsAny(s[2:], "+-_") {
				return 0, false
			}
			f, _ := new(big.Float).SetInt(n).Float64()
			return f, true
		}
	}
	if !decimalLiteral.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	return f, true
}

func numericID(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, !math.IsNaN(n)
	case string:
		return coerceID(n)
	}
	return 0, false
}

// sameID reports whether a stored id matches a requested one after numeric
// coercion of both.
func sameID(stored any, id string) bool {
	want, ok := coerceID(id)
	if !ok {
		return false
	}
	got, ok := numericID(stored)
	return ok && got == want
}

// integralID returns the requested id as an int64 when it names a possible
// sequential id.
func integralID(id string) (int64, bool) {
	f, ok := coerceID(id)
	if !ok || f != math.Trunc(f) || f < 1 || f > math.MaxInt64/2 {
		return 0, false
	}
	return int64(f), true
}

// nextID returns the next sequential id: one past the largest live id, and
// never less than len(items)+1.
func nextID(items []Item) int64 {
	next := int64(len(items)) + 1
	for _, it := range items {
		if f, ok := numericID(it.ID()); ok && int64(f) >= next {
			next = int64(f) + 1
		}
	}
	return next
}
