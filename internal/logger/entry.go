package logger

import (
	"context"
	"time"
)

// Entry carries metric fields for a summary line, such as the duration and
// counters of an update run.
type Entry struct {
	logger *Logger
	fields Fields
}

// With starts an Entry from fields, logging through the default logger
// unless a context logger is supplied at emit time.
//
//	logger.With(logger.Fields{"fetched": 2}).WithDuration(d).Info(ctx, "Update completed")
func With(fields Fields) *Entry {
	return &Entry{logger: GetDefault(), fields: fields}
}

// With returns a copy of e with fields merged in; later keys win.
func (e *Entry) With(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{logger: e.logger, fields: merged}
}

// WithDuration records d in whole milliseconds under duration_ms.
func (e *Entry) WithDuration(d time.Duration) *Entry {
	return e.With(Fields{FieldDurationMs: d.Milliseconds()})
}

// Info emits the entry at info level.
func (e *Entry) Info(ctx context.Context, format string, args ...interface{}) {
	l := e.logger
	if ctx != nil {
		l = FromContext(ctx)
	}
	l.WithFields(e.fields).Infof(format, args...)
}
