package telemetry

import (
	"strconv"

	"oledanim/version"
)

// OTLP/JSON envelopes. Records are written between head and tail.
const (
	logsHead     = `{"resourceLogs":[{`
	logsScope    = `,"scopeLogs":[{"scope":{"name":"oledanim"},"logRecords":[`
	metricsHead  = `{"resourceMetrics":[{`
	metricsScope = `,"scopeMetrics":[{"scope":{"name":"oledanim"},"metrics":[`
	envelopeTail = `]}]}]}`
)

// body appends into BodyBuf and never grows past it; whatever does not
// fit is cut off, leaving the body full.
type body []byte

func newBody() body { return body(BodyBuf[:0]) }

func (b *body) str(s string) {
	if room := cap(*b) - len(*b); len(s) > room {
		s = s[:room]
	}
	*b = append(*b, s...)
}

func (b *body) ch(c byte) {
	if len(*b) < cap(*b) {
		*b = append(*b, c)
	}
}

func (b *body) num(n int64) {
	var tmp [20]byte
	for _, c := range strconv.AppendInt(tmp[:0], n, 10) {
		b.ch(c)
	}
}

// quotedNum writes n as a JSON string; OTLP carries 64-bit values that way.
func (b *body) quotedNum(n int64) {
	b.str(`"`)
	b.num(n)
	b.str(`"`)
}

// quoted writes p as a JSON string. Control characters other than
// tab, CR and LF are dropped, as is anything outside printable ASCII.
func (b *body) quoted(p []byte) {
	b.str(`"`)
	for _, c := range p {
		switch {
		case c == '"' || c == '\\':
			b.ch('\\')
			b.ch(c)
		case c == '\n':
			b.str(`\n`)
		case c == '\r':
			b.str(`\r`)
		case c == '\t':
			b.str(`\t`)
		case c >= ' ' && c < 0x7f:
			b.ch(c)
		}
	}
	b.str(`"`)
}

func (b *body) attr(key, value string) {
	b.str(`{"key":"`)
	b.str(key)
	b.str(`","value":{"stringValue":`)
	b.quoted([]byte(value))
	b.str(`}}`)
}

func (b *body) resource() {
	sha := version.GitSHA
	if len(sha) > 7 {
		sha = sha[:7]
	}
	b.str(`"resource":{"attributes":[`)
	b.attr("service.name", "oledanim")
	b.str(`,`)
	b.attr("service.version", version.Version)
	b.str(`,`)
	b.attr("service.instance.id", sha)
	b.str(`,`)
	b.attr("host.name", "oledanim-pico")
	b.str(`]}`)
}

// envelope writes count records with record inside the OTLP wrapper and
// returns the payload length. The tail is reserved up front so that a
// truncated payload is still valid JSON.
func envelope(head, scope string, count int, record func(b *body, i int)) int {
	b := newBody()
	b.str(head)
	b.resource()
	b.str(scope)

	limit := cap(b) - len(envelopeTail)
	for i := 0; i < count; i++ {
		mark := len(b)
		if i > 0 {
			b.str(`,`)
		}
		record(&b, i)
		if len(b) > limit {
			b = b[:mark]
			break
		}
	}
	b.str(envelopeTail)
	return len(b)
}

// BuildLogsJSON builds the OTLP JSON payload for the queued logs in
// BodyBuf and returns its length, or 0 when nothing is queued.
func BuildLogsJSON() int {
	if LogCount == 0 {
		return 0
	}
	return envelope(logsHead, logsScope, LogCount, func(b *body, i int) {
		e := &LogQueue[(LogHead+i)%len(LogQueue)]
		b.str(`{"timeUnixNano":`)
		b.quotedNum(e.Timestamp)
		b.str(`,"severityNumber":`)
		b.num(int64(e.Severity))
		b.str(`,"body":{"stringValue":`)
		b.quoted(e.Body[:e.BodyLen])
		b.str(`}}`)
	})
}

// BuildMetricsJSON builds the OTLP JSON payload for the queued metric
// points in BodyBuf and returns its length, or 0 when nothing is queued.
func BuildMetricsJSON() int {
	if MetricCount == 0 {
		return 0
	}
	return envelope(metricsHead, metricsScope, MetricCount, func(b *body, i int) {
		p := &MetricQueue[(MetricHead+i)%len(MetricQueue)]
		b.str(`{"name":`)
		b.quoted(p.Name[:p.NameLen])
		if p.IsGauge {
			b.str(`,"gauge":{"dataPoints":[`)
		} else {
			b.str(`,"sum":{"dataPoints":[`)
		}
		b.str(`{"timeUnixNano":`)
		b.quotedNum(p.Timestamp)
		b.str(`,"asInt":`)
		b.quotedNum(p.Value)
		if p.IsGauge {
			b.str(`}]}}`)
		} else {
			b.str(`}],"aggregationTemporality":2,"isMonotonic":true}}`)
		}
	})
}
