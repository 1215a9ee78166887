// Package mqttcmd subscribes to an MQTT topic and posts the animation
// commands it receives to the mailbox.
package mqttcmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	mqtt "github.com/soypat/natiu-mqtt"

	"oledanim/mailbox"
	"oledanim/telemetry"
)

// Defaults for Config.
const (
	DefaultTopic    = "oledanim/command"
	DefaultClientID = "oledanim"
	DefaultTimeout  = 10 * time.Second
	DefaultBackoff  = 5 * time.Second
	DefaultPoll     = 5 * time.Second

	// DefaultKeepAlive is announced in CONNECT. A ping goes out once
	// half of it has passed without any other packet.
	DefaultKeepAlive = 60 * time.Second
)

const (
	mqttBufSize   = 512
	maxPayload    = 16
	connectPolls  = 50
	connectPollAt = 100 * time.Millisecond
)

var errNotConnected = errors.New("mqtt: broker did not accept connection")

// Conn is a transport to the broker.
type Conn interface {
	io.ReadWriteCloser
	SetDeadline(t time.Time) error
}

// DialFunc opens a transport to the broker.
type DialFunc func(ctx context.Context) (Conn, error)

// Config configures a Subscriber.
type Config struct {
	Dial     DialFunc
	ClientID string
	Topic    string
	Mailbox  *mailbox.Mailbox

	// Ack runs for every valid command before it is posted.
	Ack func(cmd byte)

	// Rand supplies packet identifiers. Nil uses a counter.
	Rand func() uint32

	Timeout   time.Duration
	Backoff   time.Duration
	Poll      time.Duration
	KeepAlive time.Duration
	Logger    *slog.Logger
}

// Subscriber keeps an MQTT session open and turns each publish on the
// command topic into a non-blocking mailbox write.
type Subscriber struct {
	cfg    Config
	logger *slog.Logger
	topic  []byte
	id     []byte
	seq    uint32

	userBuf [mqttBufSize]byte
	payload [maxPayload]byte
}

// New returns a Subscriber for cfg.
func New(cfg Config) (*Subscriber, error) {
	if cfg.Dial == nil || cfg.Mailbox == nil {
		return nil, errors.New("mqttcmd: dial func and mailbox are required")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.KeepAlive < time.Second {
		cfg.KeepAlive = DefaultKeepAlive
	}
	if cfg.Poll <= 0 {
		cfg.Poll = DefaultPoll
	}
	if cfg.Poll > cfg.KeepAlive/2 {
		cfg.Poll = cfg.KeepAlive / 2
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		cfg:    cfg,
		logger: logger,
		topic:  []byte(cfg.Topic),
		id:     []byte(cfg.ClientID),
	}, nil
}

// Run keeps a session open until ctx is done, reconnecting after the
// backoff whenever the session ends.
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("mqtt:session-ended", slog.String("err", err.Error()))

		t := time.NewTimer(s.cfg.Backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (s *Subscriber) packetID() uint16 {
	if s.cfg.Rand != nil {
		return uint16(s.cfg.Rand())
	}
	s.seq++
	return uint16(s.seq)
}

func (s *Subscriber) session(ctx context.Context) error {
	conn, err := s.cfg.Dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	client := mqtt.NewClient(mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: s.userBuf[:]},
		OnPub:   s.onPub,
	})

	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT(s.id)
	varconn.KeepAlive = uint16(s.cfg.KeepAlive / time.Second)

	s.logger.Info("mqtt:connecting", slog.String("clientid", string(s.id)))
	conn.SetDeadline(time.Now().Add(s.cfg.Timeout))
	if err := client.StartConnect(conn, &varconn); err != nil {
		return err
	}
	for i := 0; i < connectPolls && !client.IsConnected(); i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		time.Sleep(connectPollAt)
		if err := client.HandleNext(); err != nil {
			s.logger.Debug("mqtt:handle-next", slog.String("err", err.Error()))
		}
	}
	if !client.IsConnected() {
		return errNotConnected
	}
	defer client.Disconnect(errors.New("session closed"))

	conn.SetDeadline(time.Now().Add(s.cfg.Timeout))
	err = client.StartSubscribe(mqtt.VariablesSubscribe{
		TopicFilters: []mqtt.SubscribeRequest{
			{TopicFilter: s.topic, QoS: mqtt.QoS0},
		},
		PacketIdentifier: s.packetID(),
	})
	if err != nil {
		return err
	}
	s.logger.Info("mqtt:subscribed", slog.String("topic", string(s.topic)))

	for ctx.Err() == nil {
		if time.Since(client.LastTx()) >= s.cfg.KeepAlive/2 {
			conn.SetDeadline(time.Now().Add(s.cfg.Timeout))
			if err := client.StartPing(); err != nil {
				return err
			}
			s.logger.Debug("mqtt:ping")
		}
		conn.SetDeadline(time.Now().Add(s.cfg.Poll))
		if err := client.HandleNext(); err != nil && !client.IsConnected() {
			return err
		}
	}
	return ctx.Err()
}

// onPub handles one incoming publish.
func (s *Subscriber) onPub(_ mqtt.Header, varPub mqtt.VariablesPublish, r io.Reader) error {
	n, err := io.ReadFull(r, s.payload[:])
	oversized := false
	if err == nil {
		// Drain the rest; anything left makes it too long to be a command.
		extra, err := io.Copy(io.Discard, r)
		if err != nil {
			return err
		}
		oversized = extra > 0
	} else if err != io.EOF && err != io.ErrUnexpectedEOF {
		return err
	}

	if !bytesEqual(varPub.TopicName, s.topic) {
		return nil
	}
	cmd, ok := ParsePayload(s.payload[:n])
	if !ok || oversized {
		s.logger.Debug("mqtt:ignored", slog.Int("bytes", n))
		return nil
	}

	telemetry.Inc(telemetry.CounterMQTT)
	if s.cfg.Ack != nil {
		s.cfg.Ack(cmd)
	}
	if err := s.cfg.Mailbox.Write(cmd); err != nil {
		telemetry.Inc(telemetry.CounterDropped)
		s.logger.Warn("mqtt:dropped", slog.Int("command", int(cmd)))
		return nil
	}
	s.logger.Info("mqtt:command", slog.Int("command", int(cmd)))
	return nil
}

// ParsePayload accepts a single ASCII digit 1..4, optionally surrounded by
// whitespace.
func ParsePayload(p []byte) (byte, bool) {
	for len(p) > 0 && isSpace(p[0]) {
		p = p[1:]
	}
	for len(p) > 0 && isSpace(p[len(p)-1]) {
		p = p[:len(p)-1]
	}
	if len(p) != 1 || p[0] < '1' || p[0] > '4' {
		return 0, false
	}
	return p[0] - '0', true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// bytesEqual compares two byte slices without allocation
func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
