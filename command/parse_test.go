package command

import (
	"bytes"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   byte
		wantOK bool
	}{
		{"query value", "GET /command?value=3 HTTP/1.1\r\nHost: pico\r\n\r\n", 3, true},
		{"query out of range", "GET /command?value=9 HTTP/1.1\r\n", 0, false},
		{"query zero", "GET /command?value=0 HTTP/1.1\r\n", 0, false},
		{"query overflow", "GET /command?value=256 HTTP/1.1\r\n", 0, false},
		{"query leading zero", "GET /command?value=04 HTTP/1.1\r\n", 4, true},
		{"query with more params", "GET /command?value=1&x=2 HTTP/1.1\r\n", 1, true},
		{"query empty", "GET /command?value= HTTP/1.1\r\n", 0, false},
		{"query not a number", "GET /command?value=two HTTP/1.1\r\n", 0, false},
		{"query at end of input", "GET /command?value=2", 2, true},
		{"path then CR", "GET /2\r\n\r\n", 2, true},
		{"path then space", "GET /4 HTTP/1.1\r\n", 4, true},
		{"path five", "GET /5 HTTP/1.1\r\n", 0, false},
		{"path zero", "GET /0 HTTP/1.1\r\n", 0, false},
		{"path longer", "GET /12 HTTP/1.1\r\n", 0, false},
		{"path at end of input", "GET /1", 0, false},
		{"unknown path", "GET /foo\r\n", 0, false},
		{"root", "GET / HTTP/1.1\r\n", 0, false},
		{"post", "POST /1 HTTP/1.1\r\n", 0, false},
		{"lowercase method", "get /1 HTTP/1.1\r\n", 0, false},
		{"empty", "", 0, false},
		{"invalid utf8", "GET /3 HTTP/1.1\r\nX: \xff\xfe\r\n", 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Parse([]byte(tc.input))
			if got != tc.want || ok != tc.wantOK {
				t.Errorf("Parse(%q) = %d, %v, want %d, %v", tc.input, got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestParseLooksAtFirst512Bytes(t *testing.T) {
	// Invalid UTF-8 past the limit is never seen.
	raw := append([]byte("GET /1 HTTP/1.1\r\nX-Pad: "+strings.Repeat("a", MaxRequest)), 0xff)
	if got, ok := Parse(raw); !ok || got != 1 {
		t.Errorf("Parse(long) = %d, %v, want 1, true", got, ok)
	}

	// A multi-byte rune cut by the limit is invalid UTF-8.
	cut := append([]byte("GET /1 "), bytes.Repeat([]byte("é"), MaxRequest)...)
	if _, ok := Parse(cut[:MaxRequest+1]); ok {
		t.Error("Parse of a request split inside a rune should fail")
	}
}

func TestAppendResponse(t *testing.T) {
	for k := byte(1); k <= MaxCommand; k++ {
		want := "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nConnection: close\r\n\r\nAnimation " +
			string('0'+k) + " triggered!"
		if got := string(AppendResponse(nil, k, true)); got != want {
			t.Errorf("AppendResponse(%d) = %q", k, got)
		}
	}

	page := string(AppendResponse(nil, 0, false))
	if !strings.HasPrefix(page, "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\nConnection: close\r\n\r\n<h1>") {
		t.Errorf("control page header = %q", page[:80])
	}
	for _, link := range []string{`href="/1"`, `href="/2"`, `href="/3"`, `href="/4"`} {
		if !strings.Contains(page, link) {
			t.Errorf("control page missing %s", link)
		}
	}
}
