// Package credentials embeds the WiFi network name and passphrase.
//
// Create ssid.text and password.text in this directory before building
// firmware. Keep them out of version control.
package credentials

import (
	_ "embed"
	"strings"
)

var (
	//go:embed ssid.text
	ssid string
	//go:embed password.text
	pass string
)

// SSID returns the network name from ssid.text.
func SSID() string {
	return strings.TrimSpace(ssid)
}

// Password returns the passphrase from password.text. Trailing newlines
// added by editors are removed; inner spaces are kept.
func Password() string {
	return strings.TrimRight(pass, "\r\n")
}

// Configured reports whether an SSID was provided.
func Configured() bool {
	return SSID() != ""
}
