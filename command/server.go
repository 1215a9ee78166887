// Package command serves the HTTP command endpoint. One connection is
// handled at a time: a single read, at most one command posted to the
// mailbox, exactly one response, then close.
package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"sync/atomic"
	"time"

	"oledanim/mailbox"
	"oledanim/telemetry"
)

// Defaults for Config.
const (
	DefaultPort          = 80
	DefaultAcceptTimeout = 10 * time.Second
	DefaultReadTimeout   = 5 * time.Second
	DefaultWriteTimeout  = 5 * time.Second
	DefaultBackoff       = 5 * time.Second
)

var (
	// ErrAcceptTimeout is returned when no client connects within the
	// accept window. The server simply accepts again.
	ErrAcceptTimeout = errors.New("command: accept timeout")

	errLinkDown = errors.New("command: link down")
)

// State is the server's position in its bring-up sequence.
type State int32

const (
	Disconnected State = iota
	Connecting
	WaitingForLink
	WaitingForAddress
	Listening
	Accepting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case WaitingForLink:
		return "waiting-for-link"
	case WaitingForAddress:
		return "waiting-for-address"
	case Listening:
		return "listening"
	case Accepting:
		return "accepting"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Link brings the network interface up.
type Link interface {
	// Join associates with the access point.
	Join(ctx context.Context) error
	// WaitLinkUp blocks until the link reports up.
	WaitLinkUp(ctx context.Context) error
	// AcquireAddress obtains an IP address, typically by DHCP.
	AcquireAddress(ctx context.Context) (netip.Addr, error)
	// Up reports whether the link is still usable.
	Up() bool
}

// Conn is an accepted connection. net.Conn satisfies it.
type Conn interface {
	io.ReadWriteCloser
	SetDeadline(t time.Time) error
}

// Listener accepts connections. Accept must return ctx.Err() once ctx is
// done.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Close() error
}

// ListenFunc opens a listener on addr:port.
type ListenFunc func(addr netip.Addr, port uint16) (Listener, error)

// Config configures a Server.
type Config struct {
	// Link is nil when the network is already up, as on a host.
	Link    Link
	Listen  ListenFunc
	Port    uint16
	Mailbox *mailbox.Mailbox

	// Ack runs for every recognised command before it is posted.
	Ack func(cmd byte)

	AcceptTimeout time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	Backoff       time.Duration

	Logger *slog.Logger
}

// Server is the network command producer.
type Server struct {
	cfg    Config
	logger *slog.Logger
	state  atomic.Int32
	addr   netip.Addr

	// OnState, when set, is called on every state change.
	OnState func(State)

	req  [MaxRequest]byte
	resp []byte
}

// New returns a Server for cfg with defaults filled in.
func New(cfg Config) (*Server, error) {
	if cfg.Listen == nil || cfg.Mailbox == nil {
		return nil, errors.New("command: listen func and mailbox are required")
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.AcceptTimeout <= 0 {
		cfg.AcceptTimeout = DefaultAcceptTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, logger: logger, resp: make([]byte, 0, 1024)}, nil
}

// State returns the current state.
func (s *Server) State() State { return State(s.state.Load()) }

// Addr returns the address acquired from the link.
func (s *Server) Addr() netip.Addr { return s.addr }

func (s *Server) setState(st State) {
	if State(s.state.Swap(int32(st))) == st {
		return
	}
	s.logger.Debug("http:state", slog.String("state", st.String()))
	if s.OnState != nil {
		s.OnState(st)
	}
}

// Run drives the link and serves connections until ctx is done. Failures
// are retried after the backoff; the only return is ctx.Err().
func (s *Server) Run(ctx context.Context) error {
	var l Listener
	defer func() {
		if l != nil {
			l.Close()
		}
	}()

	s.setState(Disconnected)
	if s.cfg.Link == nil {
		s.setState(Listening)
	}

	for ctx.Err() == nil {
		switch s.State() {
		case Disconnected:
			s.setState(Connecting)

		case Connecting:
			if err := s.cfg.Link.Join(ctx); err != nil {
				s.logger.Warn("wifi:join-failed", slog.String("err", err.Error()))
				s.backoff(ctx)
				continue
			}
			s.logger.Info("wifi:joined")
			s.setState(WaitingForLink)

		case WaitingForLink:
			if err := s.cfg.Link.WaitLinkUp(ctx); err != nil {
				s.logger.Warn("wifi:link-failed", slog.String("err", err.Error()))
				s.backoff(ctx)
				s.setState(Connecting)
				continue
			}
			s.setState(WaitingForAddress)

		case WaitingForAddress:
			addr, err := s.cfg.Link.AcquireAddress(ctx)
			if err != nil {
				s.logger.Warn("dhcp:failed", slog.String("err", err.Error()))
				s.backoff(ctx)
				s.retryFrom(WaitingForAddress)
				continue
			}
			s.addr = addr
			s.logger.Info("dhcp:complete", slog.String("addr", addr.String()))
			s.setState(Listening)

		case Listening:
			var err error
			l, err = s.cfg.Listen(s.addr, s.cfg.Port)
			if err != nil {
				l = nil
				s.logger.Error("http:listen-failed", slog.String("err", err.Error()))
				s.backoff(ctx)
				s.retryFrom(Listening)
				continue
			}
			s.logger.Info("http:listening",
				slog.String("addr", netip.AddrPortFrom(s.addr, s.cfg.Port).String()))
			s.setState(Accepting)

		case Accepting:
			err := s.Serve(ctx, l)
			l.Close()
			l = nil
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, errLinkDown) {
				s.logger.Warn("wifi:link-lost")
				s.setState(Connecting)
				continue
			}
			s.logger.Error("http:listener-failed", slog.String("err", err.Error()))
			s.backoff(ctx)
			s.retryFrom(Listening)
		}
	}
	return ctx.Err()
}

// retryFrom moves to next when the link is still up, or back to Connecting.
func (s *Server) retryFrom(next State) {
	if s.cfg.Link != nil && !s.cfg.Link.Up() {
		s.setState(Connecting)
		return
	}
	s.setState(next)
}

func (s *Server) backoff(ctx context.Context) {
	t := time.NewTimer(s.cfg.Backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Serve accepts and handles connections on l, one at a time, until ctx is
// done, the listener fails or the link goes down.
func (s *Server) Serve(ctx context.Context, l Listener) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.cfg.Link != nil && !s.cfg.Link.Up() {
			return errLinkDown
		}
		conn, err := s.accept(ctx, l)
		if errors.Is(err, ErrAcceptTimeout) {
			continue
		}
		if err != nil {
			return err
		}
		s.Handle(conn)
	}
}

func (s *Server) accept(ctx context.Context, l Listener) (Conn, error) {
	actx, cancel := context.WithTimeout(ctx, s.cfg.AcceptTimeout)
	defer cancel()
	conn, err := l.Accept(actx)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrAcceptTimeout
		}
		return nil, err
	}
	return conn, nil
}

// Handle serves one connection: read once, post at most one command,
// write exactly one response and close. It never panics.
func (s *Server) Handle(conn Conn) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.Inc(telemetry.CounterHTTPErrors)
			s.logger.Error("http:panic-recovered")
		}
	}()
	defer conn.Close()

	telemetry.Inc(telemetry.CounterHTTPRequests)

	conn.SetDeadline(time.Now().Add(s.cfg.ReadTimeout))
	n, err := conn.Read(s.req[:])
	if err != nil && n == 0 {
		telemetry.Inc(telemetry.CounterHTTPErrors)
		s.logger.Warn("http:read-failed", slog.String("err", err.Error()))
	}

	// A peer that sent nothing in time still gets the control page.
	cmd, ok := Parse(s.req[:n])
	if ok {
		telemetry.Inc(telemetry.CounterHTTP)
		if s.cfg.Ack != nil {
			s.cfg.Ack(cmd)
		}
		if err := s.cfg.Mailbox.Write(cmd); err != nil {
			telemetry.Inc(telemetry.CounterDropped)
			s.logger.Warn("http:dropped", slog.Int("command", int(cmd)), slog.String("err", err.Error()))
		} else {
			s.logger.Info("http:command", slog.Int("command", int(cmd)))
		}
	} else {
		s.logger.Debug("http:no-command", slog.Int("bytes", n))
	}

	s.resp = AppendResponse(s.resp[:0], cmd, ok)
	conn.SetDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if _, err := conn.Write(s.resp); err != nil {
		telemetry.Inc(telemetry.CounterHTTPErrors)
		s.logger.Warn("http:write-failed", slog.String("err", err.Error()))
	}
}
