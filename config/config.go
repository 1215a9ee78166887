// Package config holds build-time settings embedded from .text files next
// to this source. An empty file selects the default.
package config

import (
	_ "embed"
	"errors"
	"net/netip"
	"strconv"
	"strings"
	"time"
)

// Defaults for operational configuration.
// These can be overridden by placing a non-empty value in the corresponding .text file.
const (
	DefaultFrameInterval = 200 * time.Millisecond
	DefaultDebounce      = 50 * time.Millisecond
	DefaultAcceptTimeout = 10 * time.Second
	DefaultReadTimeout   = 5 * time.Second
	DefaultJoinBackoff   = 5 * time.Second
	DefaultHTTPPort      = 80
	DefaultHostname      = "oledanim"
	DefaultClientID      = "oledanim"
	DefaultMQTTTopic     = "oledanim/command"
	DefaultButtonPolicy  = "drop"
)

// ErrDisabled is returned for optional services whose address file is empty.
var ErrDisabled = errors.New("config: not configured")

// Optional services (empty file = disabled).
var (
	//go:embed broker.text
	brokerAddr string

	//go:embed telemetry_collector.text
	telemetryCollector string
)

// Optional overrides for defaults (empty file = use default).
var (
	//go:embed frame_interval.text
	frameIntervalOverride string

	//go:embed debounce.text
	debounceOverride string

	//go:embed accept_timeout.text
	acceptTimeoutOverride string

	//go:embed read_timeout.text
	readTimeoutOverride string

	//go:embed join_backoff.text
	joinBackoffOverride string

	//go:embed http_port.text
	httpPortOverride string

	//go:embed hostname.text
	hostnameOverride string

	//go:embed clientid.text
	clientIDOverride string

	//go:embed mqtt_topic.text
	mqttTopicOverride string

	//go:embed button_policy.text
	buttonPolicyOverride string

	//go:embed requested_ip.text
	requestedIPOverride string
)

// BrokerAddr returns the MQTT broker address from broker.text file.
// Format: "host:port" e.g., "192.168.1.100:1883". ErrDisabled when empty.
func BrokerAddr() (netip.AddrPort, error) {
	return addrPort(brokerAddr)
}

// TelemetryCollectorAddr returns the OTLP/HTTP collector address from
// telemetry_collector.text, e.g. "192.168.1.100:4318". ErrDisabled when empty.
func TelemetryCollectorAddr() (netip.AddrPort, error) {
	return addrPort(telemetryCollector)
}

// FrameInterval is the render period.
func FrameInterval() time.Duration {
	return duration(frameIntervalOverride, DefaultFrameInterval)
}

// Debounce is the quiet period after a button release.
func Debounce() time.Duration {
	return duration(debounceOverride, DefaultDebounce)
}

// AcceptTimeout bounds each wait for an HTTP client.
func AcceptTimeout() time.Duration {
	return duration(acceptTimeoutOverride, DefaultAcceptTimeout)
}

// ReadTimeout bounds the single request read.
func ReadTimeout() time.Duration {
	return duration(readTimeoutOverride, DefaultReadTimeout)
}

// JoinBackoff is the pause between failed WiFi joins.
func JoinBackoff() time.Duration {
	return duration(joinBackoffOverride, DefaultJoinBackoff)
}

// HTTPPort is the command server port.
func HTTPPort() uint16 {
	if override := strings.TrimSpace(httpPortOverride); override != "" {
		if p, err := strconv.ParseUint(override, 10, 16); err == nil && p != 0 {
			return uint16(p)
		}
	}
	return DefaultHTTPPort
}

// Hostname is announced over DHCP.
func Hostname() string {
	return str(hostnameOverride, DefaultHostname)
}

// ClientID is the MQTT client identifier.
func ClientID() string {
	return str(clientIDOverride, DefaultClientID)
}

// MQTTTopic is the topic carrying animation commands.
func MQTTTopic() string {
	return str(mqttTopicOverride, DefaultMQTTTopic)
}

// ButtonPolicy is "drop" or "block"; see input.ParsePolicy.
func ButtonPolicy() string {
	return str(buttonPolicyOverride, DefaultButtonPolicy)
}

// RequestedIP is the address asked for in DHCP. The zero Addr lets the
// server choose.
func RequestedIP() netip.Addr {
	if override := strings.TrimSpace(requestedIPOverride); override != "" {
		if a, err := netip.ParseAddr(override); err == nil && a.Is4() {
			return a
		}
	}
	return netip.Addr{}
}

func addrPort(s string) (netip.AddrPort, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.AddrPort{}, ErrDisabled
	}
	return netip.ParseAddrPort(s)
}

func duration(override string, def time.Duration) time.Duration {
	if override := strings.TrimSpace(override); override != "" {
		if d, err := time.ParseDuration(override); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func str(override, def string) string {
	if override := strings.TrimSpace(override); override != "" {
		return override
	}
	return def
}
