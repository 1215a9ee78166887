// Package telemetry provides OpenTelemetry-compatible logging and metrics
// for TinyGo applications with a zero-heap design.
//
// Logs and metric points are queued in fixed circular buffers and flushed as
// OTLP/HTTP JSON by a background sender (TinyGo builds only). Cumulative
// counters are kept independently of the queues so they can be shown locally
// even when no collector is configured.
package telemetry

import (
	"sync"
	"time"
)

// Configuration constants
const (
	FlushInterval = 30 * time.Second
	HTTPTimeout   = 10 * time.Second
	MaxRetries    = 2
)

// Log severity levels (OTLP standard)
const (
	SeverityDebug = 5
	SeverityInfo  = 9
	SeverityWarn  = 13
	SeverityError = 17
)

// Counter names used across the firmware.
const (
	CounterFrames         = "frames_rendered"
	CounterDecodeErrors   = "frame_decode_errors"
	CounterFlushErrors    = "display_flush_errors"
	CounterAnimSwitches   = "animation_switches"
	CounterInvalidCommand = "commands_invalid"
	CounterButton         = "commands_button"
	CounterHTTP           = "commands_http"
	CounterMQTT           = "commands_mqtt"
	CounterDropped        = "commands_dropped"
	CounterHTTPRequests   = "http_requests"
	CounterHTTPErrors     = "http_errors"
)

// Pre-allocated body buffer for JSON building
var BodyBuf [4096]byte

// LogEntry represents a single log record
type LogEntry struct {
	Timestamp int64
	Severity  uint8
	BodyLen   uint8
	Body      [128]byte
}

// MetricPoint represents a single metric data point
type MetricPoint struct {
	Timestamp int64
	Value     int64
	NameLen   uint8
	Name      [32]byte
	IsGauge   bool
}

// Circular queues for telemetry data
var (
	LogQueue    [8]LogEntry
	LogHead     int
	LogCount    int
	MetricQueue [16]MetricPoint
	MetricHead  int
	MetricCount int
)

type counter struct {
	name  string
	value int64
}

const maxCounters = 16

// Telemetry state
var (
	mu      sync.Mutex
	enabled bool
	paused  bool // Paused while the link is down or during critical operations

	counters     [maxCounters]counter
	counterCount int

	// Stats
	SentLogs    int
	SentMetrics int
	SendErrors  int
)

// Log queues a log entry with the given severity and message
func Log(severity uint8, msg string) {
	mu.Lock()
	defer mu.Unlock()

	if !enabled || paused {
		return
	}

	// Find slot in circular queue
	idx := (LogHead + LogCount) % len(LogQueue)
	if LogCount >= len(LogQueue) {
		// Queue full, overwrite oldest
		LogHead = (LogHead + 1) % len(LogQueue)
	} else {
		LogCount++
	}

	entry := &LogQueue[idx]
	entry.Timestamp = time.Now().UnixNano()
	entry.Severity = severity

	msgLen := len(msg)
	if msgLen > len(entry.Body) {
		msgLen = len(entry.Body)
	}
	entry.BodyLen = uint8(msgLen)
	copy(entry.Body[:], msg[:msgLen])
}

// RecordGauge records a point-in-time gauge metric
func RecordGauge(name string, value int64) {
	mu.Lock()
	defer mu.Unlock()
	recordMetricLocked(name, value, true)
}

// RecordCounter records a monotonic counter metric
func RecordCounter(name string, value int64) {
	mu.Lock()
	defer mu.Unlock()
	recordMetricLocked(name, value, false)
}

func recordMetricLocked(name string, value int64, isGauge bool) {
	if !enabled || paused {
		return
	}

	idx := (MetricHead + MetricCount) % len(MetricQueue)
	if MetricCount >= len(MetricQueue) {
		MetricHead = (MetricHead + 1) % len(MetricQueue)
	} else {
		MetricCount++
	}

	point := &MetricQueue[idx]
	point.Timestamp = time.Now().UnixNano()
	point.Value = value
	point.IsGauge = isGauge

	nameLen := len(name)
	if nameLen > len(point.Name) {
		nameLen = len(point.Name)
	}
	point.NameLen = uint8(nameLen)
	copy(point.Name[:], name[:nameLen])
}

// Inc adds one to the named cumulative counter.
func Inc(name string) {
	Add(name, 1)
}

// Add adds delta to the named cumulative counter. Counters always count,
// whether or not a collector is configured. Names beyond the fixed table
// size are ignored.
func Add(name string, delta int64) {
	mu.Lock()
	defer mu.Unlock()

	for i := 0; i < counterCount; i++ {
		if counters[i].name == name {
			counters[i].value += delta
			return
		}
	}
	if counterCount >= len(counters) {
		return
	}
	counters[counterCount] = counter{name: name, value: delta}
	counterCount++
}

// Count returns the current value of the named counter.
func Count(name string) int64 {
	mu.Lock()
	defer mu.Unlock()

	for i := 0; i < counterCount; i++ {
		if counters[i].name == name {
			return counters[i].value
		}
	}
	return 0
}

// EachCounter calls fn for every counter in registration order.
func EachCounter(fn func(name string, value int64)) {
	mu.Lock()
	snapshot := counters
	n := counterCount
	mu.Unlock()

	for i := 0; i < n; i++ {
		fn(snapshot[i].name, snapshot[i].value)
	}
}

// SnapshotCounters queues the current value of every counter as a
// cumulative metric point.
func SnapshotCounters() {
	mu.Lock()
	defer mu.Unlock()

	for i := 0; i < counterCount; i++ {
		recordMetricLocked(counters[i].name, counters[i].value, false)
	}
}

// Pause temporarily stops telemetry queueing and sending.
func Pause() {
	mu.Lock()
	paused = true
	mu.Unlock()
}

// Resume resumes telemetry after a pause
func Resume() {
	mu.Lock()
	paused = false
	mu.Unlock()
}

// IsPaused returns true if telemetry is paused
func IsPaused() bool {
	mu.Lock()
	defer mu.Unlock()
	return paused
}

// Enable enables telemetry queueing
func Enable() {
	mu.Lock()
	enabled = true
	mu.Unlock()
}

// Disable disables telemetry queueing
func Disable() {
	mu.Lock()
	enabled = false
	mu.Unlock()
}

// Status returns current telemetry statistics
func Status() (isEnabled bool, queuedLogs, queuedMetrics, sentLogs, sentMetrics, errs int) {
	mu.Lock()
	defer mu.Unlock()

	return enabled, LogCount, MetricCount, SentLogs, SentMetrics, SendErrors
}

// takeLogs builds the logs payload and clears the queue. Returns the body
// length and number of entries; 0 when there is nothing to send.
func takeLogs() (bodyLen, count int) {
	mu.Lock()
	defer mu.Unlock()

	if LogCount == 0 || !enabled || paused {
		return 0, 0
	}
	bodyLen = BuildLogsJSON()
	count = LogCount
	LogHead = 0
	LogCount = 0
	return bodyLen, count
}

// takeMetrics builds the metrics payload and clears the queue.
func takeMetrics() (bodyLen, count int) {
	mu.Lock()
	defer mu.Unlock()

	if MetricCount == 0 || !enabled || paused {
		return 0, 0
	}
	bodyLen = BuildMetricsJSON()
	count = MetricCount
	MetricHead = 0
	MetricCount = 0
	return bodyLen, count
}

// recordSend updates the send statistics.
func recordSend(logs, metrics int, err error) {
	mu.Lock()
	defer mu.Unlock()

	if err != nil {
		SendErrors++
		return
	}
	SentLogs += logs
	SentMetrics += metrics
}

// reset clears all telemetry state. Used by tests.
func reset() {
	mu.Lock()
	defer mu.Unlock()

	LogHead, LogCount = 0, 0
	MetricHead, MetricCount = 0, 0
	for i := range LogQueue {
		LogQueue[i] = LogEntry{}
	}
	for i := range MetricQueue {
		MetricQueue[i] = MetricPoint{}
	}
	counters = [maxCounters]counter{}
	counterCount = 0
	enabled = true
	paused = false
	SentLogs, SentMetrics, SendErrors = 0, 0, 0
}
