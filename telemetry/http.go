package telemetry

// appendUint appends the decimal digits of n to dst.
func appendUint(dst []byte, n uint64) []byte {
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
	return append(dst, digits[i:]...)
}

// statusOK reports whether resp starts with an HTTP/1.x 2xx status line.
func statusOK(resp []byte) bool {
	if len(resp) < 12 {
		return false
	}
	if string(resp[:7]) != "HTTP/1." {
		return false
	}
	return resp[8] == ' ' && resp[9] == '2'
}
