package log

import (
	"strconv"
	"time"
)

// LogEvent is a single structured log entry under construction. Events come
// from the owning logger's pool and return to it in Msg; never retain one.
//
// Every method is safe on a nil receiver, which is how disabled levels cost
// nothing at the call site.
type LogEvent struct {
	logger Logger
	level  Level
	buf    []byte
}

func newEvent(logger Logger) *LogEvent {
	return &LogEvent{logger: logger, buf: make([]byte, 0, 256)}
}

// Reset prepares a pooled event for reuse.
func (e *LogEvent) Reset() {
	e.buf = e.buf[:0]
}

func (e *LogEvent) key(k string) {
	if len(e.buf) > 0 {
		e.buf = append(e.buf, ' ')
	}
	e.buf = append(e.buf, k...)
	e.buf = append(e.buf, '=')
}

// Str appends a string field.
func (e *LogEvent) Str(k, v string) *LogEvent {
	if e == nil {
		return nil
	}
	e.key(k)
	e.buf = strconv.AppendQuote(e.buf, v)
	return e
}

// Int appends an int field.
func (e *LogEvent) Int(k string, v int) *LogEvent {
	if e == nil {
		return nil
	}
	e.key(k)
	e.buf = strconv.AppendInt(e.buf, int64(v), 10)
	return e
}

// Int64 appends an int64 field.
func (e *LogEvent) Int64(k string, v int64) *LogEvent {
	if e == nil {
		return nil
	}
	e.key(k)
	e.buf = strconv.AppendInt(e.buf, v, 10)
	return e
}

// Uint32 appends a uint32 field.
func (e *LogEvent) Uint32(k string, v uint32) *LogEvent {
	if e == nil {
		return nil
	}
	e.key(k)
	e.buf = strconv.AppendUint(e.buf, uint64(v), 10)
	return e
}

// Uint64 appends a uint64 field.
func (e *LogEvent) Uint64(k string, v uint64) *LogEvent {
	if e == nil {
		return nil
	}
	e.key(k)
	e.buf = strconv.AppendUint(e.buf, v, 10)
	return e
}

// Float64 appends a float field.
func (e *LogEvent) Float64(k string, v float64) *LogEvent {
	if e == nil {
		return nil
	}
	e.key(k)
	e.buf = strconv.AppendFloat(e.buf, v, 'f', -1, 64)
	return e
}

// Bool appends a bool field.
func (e *LogEvent) Bool(k string, v bool) *LogEvent {
	if e == nil {
		return nil
	}
	e.key(k)
	e.buf = strconv.AppendBool(e.buf, v)
	return e
}

// Dur appends a duration field.
func (e *LogEvent) Dur(k string, v time.Duration) *LogEvent {
	if e == nil {
		return nil
	}
	e.key(k)
	e.buf = append(e.buf, v.String()...)
	return e
}

// Time appends a timestamp field in RFC3339 with milliseconds.
func (e *LogEvent) Time(k string, t *time.Time) *LogEvent {
	if e == nil {
		return nil
	}
	e.key(k)
	e.buf = t.AppendFormat(e.buf, "2006-01-02T15:04:05.000Z07:00")
	return e
}

// Err appends an error field; a nil error appends nothing.
func (e *LogEvent) Err(err error) *LogEvent {
	if e == nil || err == nil {
		return e
	}
	return e.Str("error", err.Error())
}

// Msg finishes the event with its message and hands it to the logger's
// appenders. The event is invalid afterwards.
func (e *LogEvent) Msg(msg string) {
	if e == nil {
		return
	}
	e.key("msg")
	e.buf = strconv.AppendQuote(e.buf, msg)
	e.buf = append(e.buf, '\n')
	e.logger.OnEventEnd(e)
}
