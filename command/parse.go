package command

import "unicode/utf8"

// MaxRequest is the number of request bytes looked at.
const MaxRequest = 512

// MaxCommand is the highest command accepted from the network.
const MaxCommand = 4

var (
	prefixQuery = []byte("GET /command?value=")
	prefixPath  = []byte("GET /")
)

// Parse extracts an animation command from a raw HTTP request. Two forms
// are understood:
//
//	GET /command?value=N   N an unsigned byte in [1,4]
//	GET /N                 N in 1..4, followed by a space or CR
//
// Anything else, including requests that are not valid UTF-8, yields
// ok == false.
func Parse(raw []byte) (cmd byte, ok bool) {
	if len(raw) > MaxRequest {
		raw = raw[:MaxRequest]
	}
	if !utf8.Valid(raw) {
		return 0, false
	}

	if hasPrefix(raw, prefixQuery) {
		n, ok := parseUint8(raw[len(prefixQuery):])
		if !ok || n < 1 || n > MaxCommand {
			return 0, false
		}
		return n, true
	}

	if hasPrefix(raw, prefixPath) {
		rest := raw[len(prefixPath):]
		if len(rest) < 2 {
			return 0, false
		}
		d, term := rest[0], rest[1]
		if d < '1' || d > '0'+MaxCommand {
			return 0, false
		}
		if term != ' ' && term != '\r' {
			return 0, false
		}
		return d - '0', true
	}
	return 0, false
}

// parseUint8 reads leading decimal digits up to the first byte that ends
// a query value. Overflow, an empty value or a stray character fails.
func parseUint8(b []byte) (byte, bool) {
	var n int
	digits := 0
	for _, c := range b {
		if c == ' ' || c == '\r' || c == '\n' || c == '&' {
			break
		}
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
		if n > 255 {
			return 0, false
		}
		digits++
	}
	if digits == 0 {
		return 0, false
	}
	return byte(n), true
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
