package command

import (
	"strconv"

	"oledanim/telemetry"
)

const (
	headerText = "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nConnection: close\r\n\r\n"
	headerHTML = "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\nConnection: close\r\n\r\n"
)

// AppendResponse appends the reply for a request to dst. A recognised
// command gets a one-line plain text acknowledgement; anything else gets
// the control page with a link per animation and the current counters.
func AppendResponse(dst []byte, cmd byte, ok bool) []byte {
	if ok {
		dst = append(dst, headerText...)
		dst = append(dst, "Animation "...)
		dst = strconv.AppendUint(dst, uint64(cmd), 10)
		return append(dst, " triggered!"...)
	}

	dst = append(dst, headerHTML...)
	dst = append(dst, "<h1>OLED Animation Control</h1>\n<ul>\n"...)
	for i := 1; i <= MaxCommand; i++ {
		dst = append(dst, `<li><a href="/`...)
		dst = strconv.AppendInt(dst, int64(i), 10)
		dst = append(dst, `">Animation `...)
		dst = strconv.AppendInt(dst, int64(i), 10)
		dst = append(dst, "</a></li>\n"...)
	}
	dst = append(dst, "</ul>\n<pre>\n"...)
	telemetry.EachCounter(func(name string, value int64) {
		dst = append(dst, name...)
		dst = append(dst, ' ')
		dst = strconv.AppendInt(dst, value, 10)
		dst = append(dst, '\n')
	})
	return append(dst, "</pre>\n"...)
}
