package telemetry

import (
	"context"
	"io"
	"log/slog"
)

// Counters maintained by SlogHandler.
const (
	CounterLogWarnings = "log_warnings"
	CounterLogErrors   = "log_errors"
)

// SlogHandler is a slog.Handler that writes text lines to a console writer
// (machine.Serial on the device, os.Stderr on the host) and also queues
// INFO-and-above records for the telemetry collector.
type SlogHandler struct {
	textHandler slog.Handler
	group       string
}

// NewSlogHandler creates a new handler writing to w.
func NewSlogHandler(w io.Writer, opts *slog.HandlerOptions) *SlogHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &SlogHandler{
		textHandler: slog.NewTextHandler(w, opts),
	}
}

// Enabled reports whether the handler handles records at the given level.
func (h *SlogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.textHandler.Enabled(ctx, level)
}

// Handle writes the record to the console and queues it for telemetry.
func (h *SlogHandler) Handle(ctx context.Context, r slog.Record) error {
	err := h.textHandler.Handle(ctx, r)

	switch {
	case r.Level >= slog.LevelError:
		Inc(CounterLogErrors)
	case r.Level >= slog.LevelWarn:
		Inc(CounterLogWarnings)
	}

	// DEBUG stays local to save queue space.
	if r.Level >= slog.LevelInfo {
		Log(slogLevelToOTLP(r.Level), buildTelemetryMessage(h.group, r))
	}
	return err
}

// WithAttrs returns a new Handler with the given attributes added.
// Attributes only reach the console; telemetry messages carry record attrs.
func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SlogHandler{
		textHandler: h.textHandler.WithAttrs(attrs),
		group:       h.group,
	}
}

// WithGroup returns a new Handler with the given group name.
func (h *SlogHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &SlogHandler{
		textHandler: h.textHandler.WithGroup(name),
		group:       group,
	}
}

// slogLevelToOTLP converts slog.Level to OTLP severity number
func slogLevelToOTLP(level slog.Level) uint8 {
	switch {
	case level >= slog.LevelError:
		return SeverityError
	case level >= slog.LevelWarn:
		return SeverityWarn
	case level >= slog.LevelInfo:
		return SeverityInfo
	default:
		return SeverityDebug
	}
}

// msgBuf is a fixed-size append buffer that silently truncates.
type msgBuf struct {
	b   [128]byte
	pos int
}

func (m *msgBuf) full() bool { return m.pos >= len(m.b) }

func (m *msgBuf) putStr(s string) {
	for i := 0; i < len(s) && !m.full(); i++ {
		m.b[m.pos] = s[i]
		m.pos++
	}
}

func (m *msgBuf) putByte(c byte) {
	if !m.full() {
		m.b[m.pos] = c
		m.pos++
	}
}

func (m *msgBuf) putUint(n uint64) {
	var digits [20]byte
	i := len(digits)
	for {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
		if n == 0 {
			break
		}
	}
	for ; i < len(digits); i++ {
		m.putByte(digits[i])
	}
}

func (m *msgBuf) putInt(n int64) {
	if n < 0 {
		m.putByte('-')
		m.putUint(uint64(-n))
		return
	}
	m.putUint(uint64(n))
}

// putDuration writes d in its largest whole unit ("5s", "200ms").
func (m *msgBuf) putDuration(d int64) {
	switch {
	case d == 0:
		m.putStr("0s")
	case d >= 1e9 || d <= -1e9:
		m.putInt(d / 1e9)
		m.putStr("s")
	case d >= 1e6 || d <= -1e6:
		m.putInt(d / 1e6)
		m.putStr("ms")
	case d >= 1e3 || d <= -1e3:
		m.putInt(d / 1e3)
		m.putStr("us")
	default:
		m.putInt(d)
		m.putStr("ns")
	}
}

func (m *msgBuf) putValue(v slog.Value) {
	switch v.Kind() {
	case slog.KindString:
		m.putStr(v.String())
	case slog.KindInt64:
		m.putInt(v.Int64())
	case slog.KindUint64:
		m.putUint(v.Uint64())
	case slog.KindBool:
		if v.Bool() {
			m.putStr("true")
		} else {
			m.putStr("false")
		}
	case slog.KindDuration:
		m.putDuration(int64(v.Duration()))
	case slog.KindFloat64:
		m.putInt(int64(v.Float64()))
	default:
		m.putByte('?')
	}
}

// buildTelemetryMessage builds a compact message string for telemetry.
// Format: "[group:]msg key=val key2=val2", at most 4 attributes, truncated.
func buildTelemetryMessage(group string, r slog.Record) string {
	var m msgBuf
	if group != "" {
		m.putStr(group)
		m.putByte(':')
	}
	m.putStr(r.Message)

	n := 0
	r.Attrs(func(a slog.Attr) bool {
		if n >= 4 || m.pos >= len(m.b)-10 {
			return false
		}
		m.putByte(' ')
		m.putStr(a.Key)
		m.putByte('=')
		m.putValue(a.Value)
		n++
		return true
	})
	return string(m.b[:m.pos])
}
