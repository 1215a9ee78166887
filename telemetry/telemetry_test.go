package telemetry

import (
	"strings"
	"testing"
)

func TestLog(t *testing.T) {
	tests := []struct {
		name     string
		severity uint8
		msg      string
	}{
		{"debug message", SeverityDebug, "debug:test"},
		{"info message", SeverityInfo, "info:test"},
		{"warn message", SeverityWarn, "warn:test"},
		{"error message", SeverityError, "error:test"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reset()
			Log(tc.severity, tc.msg)

			if LogCount != 1 {
				t.Fatalf("expected 1 log, got %d", LogCount)
			}
			entry := LogQueue[LogHead]
			if entry.Severity != tc.severity {
				t.Errorf("severity = %d, want %d", entry.Severity, tc.severity)
			}
			if body := string(entry.Body[:entry.BodyLen]); body != tc.msg {
				t.Errorf("body = %q, want %q", body, tc.msg)
			}
			if entry.Timestamp == 0 {
				t.Error("timestamp should not be zero")
			}
		})
	}
}

func TestLogTruncation(t *testing.T) {
	reset()
	Log(SeverityInfo, strings.Repeat("x", 200))

	entry := LogQueue[LogHead]
	if int(entry.BodyLen) != len(entry.Body) {
		t.Errorf("BodyLen = %d, want %d", entry.BodyLen, len(entry.Body))
	}
}

func TestLogQueueOverwritesOldest(t *testing.T) {
	reset()
	for i := 0; i < len(LogQueue)+3; i++ {
		Log(SeverityInfo, string(rune('a'+i)))
	}

	if LogCount != len(LogQueue) {
		t.Fatalf("LogCount = %d, want %d", LogCount, len(LogQueue))
	}
	oldest := LogQueue[LogHead]
	if got := string(oldest.Body[:oldest.BodyLen]); got != "d" {
		t.Errorf("oldest entry = %q, want %q", got, "d")
	}
}

func TestDisabledAndPausedDropQueueing(t *testing.T) {
	reset()
	Disable()
	Log(SeverityInfo, "dropped")
	RecordGauge("g", 1)
	if LogCount != 0 || MetricCount != 0 {
		t.Errorf("disabled: queued logs=%d metrics=%d, want 0", LogCount, MetricCount)
	}

	reset()
	Pause()
	if !IsPaused() {
		t.Fatal("IsPaused() = false after Pause")
	}
	Log(SeverityInfo, "dropped")
	if LogCount != 0 {
		t.Errorf("paused: queued logs=%d, want 0", LogCount)
	}
	Resume()
	Log(SeverityInfo, "kept")
	if LogCount != 1 {
		t.Errorf("resumed: queued logs=%d, want 1", LogCount)
	}
}

func TestCounters(t *testing.T) {
	reset()
	Disable()

	Inc(CounterFrames)
	Inc(CounterFrames)
	Add(CounterDropped, 5)

	if got := Count(CounterFrames); got != 2 {
		t.Errorf("Count(frames) = %d, want 2", got)
	}
	if got := Count(CounterDropped); got != 5 {
		t.Errorf("Count(dropped) = %d, want 5", got)
	}
	if got := Count("unknown"); got != 0 {
		t.Errorf("Count(unknown) = %d, want 0", got)
	}

	var names []string
	EachCounter(func(name string, _ int64) {
		names = append(names, name)
	})
	if strings.Join(names, ",") != CounterFrames+","+CounterDropped {
		t.Errorf("EachCounter order = %v", names)
	}
}

func TestCounterTableFull(t *testing.T) {
	reset()
	for i := 0; i < maxCounters+4; i++ {
		Inc(string(rune('A' + i)))
	}
	n := 0
	EachCounter(func(string, int64) { n++ })
	if n != maxCounters {
		t.Errorf("counters = %d, want %d", n, maxCounters)
	}
}

func TestSnapshotCounters(t *testing.T) {
	reset()
	Add(CounterFrames, 42)
	Inc(CounterHTTP)
	SnapshotCounters()

	if MetricCount != 2 {
		t.Fatalf("MetricCount = %d, want 2", MetricCount)
	}
	p := MetricQueue[MetricHead]
	if string(p.Name[:p.NameLen]) != CounterFrames || p.Value != 42 || p.IsGauge {
		t.Errorf("first point = %q %d gauge=%v", p.Name[:p.NameLen], p.Value, p.IsGauge)
	}
}

func TestTakeClearsQueues(t *testing.T) {
	reset()
	Log(SeverityInfo, "one")
	Log(SeverityWarn, "two")
	RecordGauge("heap", 100)

	n, count := takeLogs()
	if n == 0 || count != 2 {
		t.Errorf("takeLogs() = %d, %d", n, count)
	}
	if LogCount != 0 {
		t.Errorf("LogCount after take = %d", LogCount)
	}

	n, count = takeMetrics()
	if n == 0 || count != 1 {
		t.Errorf("takeMetrics() = %d, %d", n, count)
	}
	if n, _ := takeMetrics(); n != 0 {
		t.Errorf("second takeMetrics() = %d, want 0", n)
	}
}

func TestStatus(t *testing.T) {
	reset()
	Log(SeverityInfo, "x")
	recordSend(3, 4, nil)
	recordSend(1, 1, errTest)

	on, logs, metrics, sentLogs, sentMetrics, errs := Status()
	if !on || logs != 1 || metrics != 0 || sentLogs != 3 || sentMetrics != 4 || errs != 1 {
		t.Errorf("Status() = %v %d %d %d %d %d", on, logs, metrics, sentLogs, sentMetrics, errs)
	}
}

type testError string

func (e testError) Error() string { return string(e) }

const errTest = testError("boom")

func TestStatusOK(t *testing.T) {
	tests := []struct {
		resp string
		want bool
	}{
		{"HTTP/1.1 200 OK\r\n", true},
		{"HTTP/1.0 204 No Content\r\n", true},
		{"HTTP/1.1 400 Bad Request\r\n", false},
		{"HTTP/1.1 500 Internal\r\n", false},
		{"HTTP/1.1 2", false},
		{"", false},
		{"garbage data here", false},
	}
	for _, tc := range tests {
		if got := statusOK([]byte(tc.resp)); got != tc.want {
			t.Errorf("statusOK(%q) = %v, want %v", tc.resp, got, tc.want)
		}
	}
}

func TestAppendUint(t *testing.T) {
	for _, tc := range []struct {
		n    uint64
		want string
	}{{0, "0"}, {7, "7"}, {2048, "2048"}, {18446744073709551615, "18446744073709551615"}} {
		if got := string(appendUint([]byte("n="), tc.n)); got != "n="+tc.want {
			t.Errorf("appendUint(%d) = %q", tc.n, got)
		}
	}
}
