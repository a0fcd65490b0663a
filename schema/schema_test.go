package schema_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/simple-items-server/schema"
)

func mustSchema(t *testing.T, extra map[string]string) *schema.Schema {
	t.Helper()
	s, err := schema.New(extra)
	require.NoError(t, err)
	return s
}

func TestNewBuiltins(t *testing.T) {
	s := mustSchema(t, nil)
	assert.Equal(t, []string{"isActive", "lastUpdate"}, s.Fields())

	f, ok := s.Field("isActive")
	require.True(t, ok)
	assert.Equal(t, schema.Boolean, f.Type)
	assert.True(t, f.Required)
}

func TestNewExtraFields(t *testing.T) {
	s := mustSchema(t, map[string]string{"name": "string", "price": "Number"})
	assert.Equal(t, []string{"isActive", "lastUpdate", "name", "price"}, s.Fields())
}

func TestNewRejectsBadFields(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown type":     {"name": "uuid"},
		"builtin redeclar": {"isActive": "string"},
		"reserved id":      {"id": "string"},
		"operator":         {"$set": "object"},
	}
	for name, extra := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := schema.New(extra)
			assert.Error(t, err)
		})
	}
}

func TestCastCreateAppliesDefaults(t *testing.T) {
	s := mustSchema(t, nil)
	out, err := s.Cast(map[string]any{}, true)
	require.NoError(t, err)
	assert.Equal(t, true, out["isActive"])
	assert.IsType(t, time.Time{}, out["lastUpdate"])
}

func TestCastDropsUndeclaredFields(t *testing.T) {
	s := mustSchema(t, nil)
	out, err := s.Cast(map[string]any{"name": "widget", "isActive": false}, true)
	require.NoError(t, err)
	assert.NotContains(t, out, "name")
	assert.Equal(t, false, out["isActive"])
}

func TestCastUpdateSkipsDefaults(t *testing.T) {
	s := mustSchema(t, nil)
	out, err := s.Cast(map[string]any{"junk": 1}, false)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCastBoolean(t *testing.T) {
	s := mustSchema(t, nil)
	for _, v := range []any{true, "true", "1", "yes", float64(1)} {
		out, err := s.Cast(map[string]any{"isActive": v}, false)
		require.NoError(t, err, "value %v", v)
		assert.Equal(t, true, out["isActive"], "value %v", v)
	}
	for _, v := range []any{false, "false", "0", "no", float64(0)} {
		out, err := s.Cast(map[string]any{"isActive": v}, false)
		require.NoError(t, err, "value %v", v)
		assert.Equal(t, false, out["isActive"], "value %v", v)
	}
}

func TestCastDate(t *testing.T) {
	s := mustSchema(t, nil)
	want := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	for _, v := range []any{"2024-01-15T10:00:00Z", float64(want.UnixMilli()), want} {
		out, err := s.Cast(map[string]any{"lastUpdate": v}, false)
		require.NoError(t, err)
		assert.True(t, want.Equal(out["lastUpdate"].(time.Time)), "value %v", v)
	}
}

func TestCastExtraTypes(t *testing.T) {
	s := mustSchema(t, map[string]string{
		"name":  "string",
		"price": "number",
		"meta":  "object",
		"tags":  "array",
		"blob":  "any",
	})
	out, err := s.Cast(map[string]any{
		"name":  float64(12),
		"price": "9.5",
		"meta":  map[string]any{"a": "b"},
		"tags":  []any{"x"},
		"blob":  []any{float64(1)},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, "12", out["name"])
	assert.Equal(t, 9.5, out["price"])
	assert.Equal(t, map[string]any{"a": "b"}, out["meta"])
	assert.Equal(t, []any{"x"}, out["tags"])
	assert.Equal(t, []any{float64(1)}, out["blob"])
}

func TestCastReportsEveryFailure(t *testing.T) {
	s := mustSchema(t, map[string]string{"price": "number"})
	_, err := s.Cast(map[string]any{"isActive": "maybe", "price": "cheap"}, false)
	require.Error(t, err)

	var ve schema.ValidationErrors
	require.True(t, errors.As(err, &ve))
	require.Len(t, ve, 2)
	assert.Equal(t, "isActive", ve[0].Field)
	assert.Equal(t, "price", ve[1].Field)
	assert.Contains(t, ve.Map()["isActive"], "cast to boolean failed")
}

func TestCastRequiredNull(t *testing.T) {
	s := mustSchema(t, nil)
	_, err := s.Cast(map[string]any{"isActive": nil}, false)

	var ve schema.ValidationErrors
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, map[string]string{"isActive": "is required"}, ve.Map())
}
