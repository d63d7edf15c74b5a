// Package logsink persists snapshot records. Each Write produces exactly one
// record; the sink stamps the time, not the caller.
package logsink

import (
	"context"
	"errors"
	"sort"
)

// Fields holds the key/value pairs of a single record. A nil value marks a
// metric that was unavailable and is encoded as null.
type Fields map[string]any

// Keys returns the field names in sorted order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for key := range f {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Float returns the numeric value stored under key.
func (f Fields) Float(key string) (float64, bool) {
	switch v := f[key].(type) {
	case float64:
		return v, true
	case *float64:
		if v == nil {
			return 0, false
		}
		return *v, true
	default:
		return 0, false
	}
}

// Sink accepts one record per call.
type Sink interface {
	Write(ctx context.Context, message string, fields Fields) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, message string, fields Fields) error

// Write calls f.
func (f SinkFunc) Write(ctx context.Context, message string, fields Fields) error {
	return f(ctx, message, fields)
}

// Discard drops every record.
var Discard Sink = SinkFunc(func(context.Context, string, Fields) error { return nil })

type multiSink []Sink

// Multi fans a record out to every sink. All sinks are written even when one
// fails; failures are joined.
func Multi(sinks ...Sink) Sink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multiSink) Write(ctx context.Context, message string, fields Fields) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, message, fields); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
