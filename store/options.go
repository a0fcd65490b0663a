package store

import (
	"log/slog"

	"github.com/stevemurr/simple-items-server/schema"
)

// Option configures a store.
type Option func(*settings)

type settings struct {
	clock  *Clock
	logger *slog.Logger
	schema *schema.Schema
}

// WithClock sets the clock that stamps lastUpdate.
func WithClock(c *Clock) Option {
	return func(s *settings) { s.clock = c }
}

// WithLogger sets the logger backend failures are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithSchema constrains items to a schema. Document backends always use one
// and default to schema.New(nil); the others are schemaless unless given one.
func WithSchema(sc *schema.Schema) Option {
	return func(s *settings) { s.schema = sc }
}

func newSettings(opts []Option) settings {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	if s.clock == nil {
		s.clock = NewClock(nil)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// cast applies the schema, if any, to caller data.
func (s settings) cast(data map[string]any, forCreate bool) (map[string]any, error) {
	if s.schema == nil {
		return data, nil
	}
	return s.schema.Cast(data, forCreate)
}

// requireSchema fills in the default item schema.
func (s *settings) requireSchema() {
	if s.schema == nil {
		sc, err := schema.New(nil)
		if err != nil {
			panic(err)
		}
		s.schema = sc
	}
}
