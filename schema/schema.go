// Package schema describes the fields a document-store item may carry and
// casts incoming documents to them.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Type is the declared type of an item field.
type Type string

const (
	String  Type = "string"
	Number  Type = "number"
	Boolean Type = "boolean"
	Date    Type = "date"
	Object  Type = "object"
	Array   Type = "array"
	Any     Type = "any"
)

func (t Type) valid() bool {
	switch t {
	case String, Number, Boolean, Date, Object, Array, Any:
		return true
	}
	return false
}

// Field declares one item field.
type Field struct {
	Type     Type
	Required bool
	// Default, when set, fills the field on create if the caller omitted it.
	Default func() any
}

// Built-in item fields.
const (
	FieldIsActive   = "isActive"
	FieldLastUpdate = "lastUpdate"
)

// Schema is a strict field set: undeclared fields are dropped by Cast.
type Schema struct {
	fields map[string]Field
}

// New returns the item schema: isActive and lastUpdate plus the extra fields
// given as name -> type.
func New(extra map[string]string) (*Schema, error) {
	s := &Schema{fields: map[string]Field{
		FieldIsActive: {
			Type:     Boolean,
			Required: true,
			Default:  func() any { return true },
		},
		FieldLastUpdate: {
			Type:    Date,
			Default: func() any { return time.Now().UTC() },
		},
	}}
	for name, typ := range extra {
		if _, builtin := s.fields[name]; builtin {
			return nil, fmt.Errorf("schema: field %q is built in", name)
		}
		if name == "" || name == "id" || name == "_id" || strings.HasPrefix(name, "$") {
			return nil, fmt.Errorf("schema: invalid field name %q", name)
		}
		t := Type(strings.ToLower(typ))
		if !t.valid() {
			return nil, fmt.Errorf("schema: field %q has unknown type %q", name, typ)
		}
		s.fields[name] = Field{Type: t}
	}
	return s, nil
}

// Fields returns the declared field names, sorted.
func (s *Schema) Fields() []string {
	names := make([]string, 0, len(s.fields))
	for name := range s.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Field returns the declaration for name.
func (s *Schema) Field(name string) (Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Cast returns a copy of doc holding only declared fields, each cast to its
// declared type. On create, defaults fill omitted fields and required fields
// must end up non-null. Every failing field is reported.
func (s *Schema) Cast(doc map[string]any, forCreate bool) (map[string]any, error) {
	out := make(map[string]any, len(doc))
	var errs ValidationErrors

	for name, raw := range doc {
		f, ok := s.fields[name]
		if !ok {
			continue
		}
		v, err := castValue(f.Type, raw)
		if err != nil {
			errs = append(errs, ValidationError{Field: name, Message: err.Error()})
			continue
		}
		out[name] = v
	}

	for name, f := range s.fields {
		if errs.has(name) {
			continue
		}
		v, present := out[name]
		if forCreate && !present && f.Default != nil {
			out[name] = f.Default()
			continue
		}
		if !f.Required {
			continue
		}
		if (forCreate && !present) || (present && v == nil) {
			errs = append(errs, ValidationError{Field: name, Message: "is required"})
		}
	}

	if len(errs) > 0 {
		sort.Slice(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
		return nil, errs
	}
	return out, nil
}

func castValue(t Type, v any) (any, error) {
	if v == nil || t == Any {
		return v, nil
	}
	switch t {
	case String:
		switch x := v.(type) {
		case string:
			return x, nil
		case bool:
			return strconv.FormatBool(x), nil
		}
		if n, ok := toFloat(v); ok {
			return strconv.FormatFloat(n, 'f', -1, 64), nil
		}
	case Number:
		if n, ok := toFloat(v); ok {
			return n, nil
		}
		if s, ok := v.(string); ok {
			if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return n, nil
			}
		}
	case Boolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(x)) {
			case "true", "1", "yes":
				return true, nil
			case "false", "0", "no":
				return false, nil
			}
		}
		if n, ok := toFloat(v); ok && (n == 0 || n == 1) {
			return n == 1, nil
		}
	case Date:
		switch x := v.(type) {
		case time.Time:
			return x.UTC(), nil
		case string:
			if d, err := parseDate(x); err == nil {
				return d, nil
			}
		}
		if n, ok := toFloat(v); ok {
			return time.UnixMilli(int64(n)).UTC(), nil
		}
	case Object:
		if m, ok := v.(map[string]any); ok {
			return m, nil
		}
	case Array:
		if a, ok := v.([]any); ok {
			return a, nil
		}
	}
	return nil, fmt.Errorf("cast to %s failed for %s value", t, jsonType(v))
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date: %s", s)
}

func jsonType(v any) string {
	if v == nil {
		return "null"
	}
	switch v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, json.Number, int, int64:
		return "number"
	case time.Time:
		return "date"
	default:
		return reflect.TypeOf(v).String()
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
