package main

import (
	"bytes"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"oledanim/command"
)

func TestRequestPath(t *testing.T) {
	tests := []struct {
		line    string
		want    string
		wantErr bool
	}{
		{"3", "/3", false},
		{"play 2", "/2", false},
		{"value 200", "/command?value=200", false},
		{"status", "/", false},
		{"raw /favicon.ico", "/favicon.ico", false},
		{"raw favicon.ico", "", true},
		{"play", "", true},
		{"3 4", "", true},
		{"dance", "", true},
	}
	for _, tc := range tests {
		got, err := requestPath(strings.Fields(tc.line))
		if (err != nil) != tc.wantErr {
			t.Errorf("requestPath(%q) error = %v, wantErr %v", tc.line, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("requestPath(%q) = %q, want %q", tc.line, got, tc.want)
		}
	}
	if _, err := requestPath(nil); !errors.Is(err, errUsage) {
		t.Errorf("requestPath(nil) = %v, want errUsage", err)
	}
}

func TestSplitResponse(t *testing.T) {
	status, body, err := splitResponse([]byte("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\n\r\nAnimation 2 triggered!"))
	if err != nil {
		t.Fatal(err)
	}
	if status != "HTTP/1.1 200 OK" || body != "Animation 2 triggered!" {
		t.Errorf("splitResponse() = %q, %q", status, body)
	}
	if _, _, err := splitResponse([]byte("garbage")); err == nil {
		t.Error("expected error for response without header end")
	}
}

func TestControlCounters(t *testing.T) {
	page := string(command.AppendResponse(nil, 0, false))
	got := controlCounters(page)
	if strings.Contains(got, "<") {
		t.Errorf("controlCounters() kept markup: %q", got)
	}
	if controlCounters("<h1>x</h1>") != "(no counters)" {
		t.Error("page without <pre> should report no counters")
	}
	if controlCounters("<pre>\n\n</pre>") != "(no counters)" {
		t.Error("empty <pre> should report no counters")
	}
}

// serveOnce answers one request the way the device does.
func serveOnce(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, command.MaxRequest)
		n, _ := conn.Read(buf)
		cmd, ok := command.Parse(buf[:n])
		conn.Write(command.AppendResponse(nil, cmd, ok))
	}()
	return l.Addr().String()
}

func TestRunCommand(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"3", "Animation 3 triggered!"},
		{"play 1", "Animation 1 triggered!"},
		{"value 4", "Animation 4 triggered!"},
		{"'value' '2'", "Animation 2 triggered!"},
	}
	for _, tc := range tests {
		got, err := runCommand(serveOnce(t), tc.line)
		if err != nil {
			t.Errorf("runCommand(%q) error: %v", tc.line, err)
			continue
		}
		if got != tc.want {
			t.Errorf("runCommand(%q) = %q, want %q", tc.line, got, tc.want)
		}
	}
}

func TestRunCommandStatusShowsCounters(t *testing.T) {
	got, err := runCommand(serveOnce(t), "status")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(got, "<h1>") {
		t.Errorf("status output contains markup: %q", got)
	}
}

func TestRunCommandRejectsBadQuoting(t *testing.T) {
	if _, err := runCommand("127.0.0.1:1", `play "2`); err == nil {
		t.Error("expected parse error for unterminated quote")
	}
}

func TestInspectFrames(t *testing.T) {
	var out bytes.Buffer
	if err := inspectFrames(&out, filepath.Join("..", "..", "animation", "frames", "no-shake")); err != nil {
		t.Fatal(err)
	}
	s := out.String()
	if !strings.Contains(s, "Animation: no-shake") || !strings.Contains(s, "Frames:    6") {
		t.Errorf("unexpected header:\n%s", s)
	}
	if strings.Count(s, "48x48") != 6 {
		t.Errorf("expected six 48x48 frames:\n%s", s)
	}
}

func TestInspectFramesReportsBadFrame(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "broken")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "frame-0.bmp"), []byte("BMnope"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	err := inspectFrames(&out, dir)
	if err == nil {
		t.Fatal("expected error for undecodable frame")
	}
	if !strings.Contains(out.String(), "INVALID") {
		t.Errorf("output does not flag the frame:\n%s", out.String())
	}
}
