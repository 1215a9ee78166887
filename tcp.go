//go:build tinygo

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"oledanim/command"

	"github.com/soypat/lneto/tcp"
	"github.com/soypat/lneto/x/xnet"
)

const httpBufSize = 1024

// Pre-allocated command server buffers
var (
	httpRxBuf [httpBufSize]byte
	httpTxBuf [httpBufSize]byte
)

var errReadTimeout = errors.New("read timeout")

// tcpListener accepts command connections on one lneto port. The server
// handles a single connection at a time, so one tcp.Conn is reused.
type tcpListener struct {
	stack  *xnet.StackAsync
	port   uint16
	logger *slog.Logger
	conn   tcp.Conn
}

func newTCPListener(stack *xnet.StackAsync, port uint16, logger *slog.Logger) (*tcpListener, error) {
	l := &tcpListener{stack: stack, port: port, logger: logger}
	err := l.conn.Configure(tcp.ConnConfig{
		RxBuf:             httpRxBuf[:],
		TxBuf:             httpTxBuf[:],
		TxPacketQueueSize: 3,
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Accept waits for a synchronised connection until ctx is done.
func (l *tcpListener) Accept(ctx context.Context) (command.Conn, error) {
	for {
		// Always abort any previous state before listening
		l.conn.Abort()
		time.Sleep(100 * time.Millisecond)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := l.stack.ListenTCP(&l.conn, l.port); err != nil {
			return nil, err
		}

		for l.conn.State().IsPreestablished() {
			if err := ctx.Err(); err != nil {
				l.conn.Abort()
				return nil, err
			}
			time.Sleep(10 * time.Millisecond)
		}

		if !l.conn.State().IsSynchronized() {
			continue
		}
		l.logger.Debug("http:connected", slog.String("ip", formatRemoteIP(l.conn.RemoteAddr())))
		return &tcpConn{conn: &l.conn}, nil
	}
}

func (l *tcpListener) Close() error {
	l.conn.Abort()
	return nil
}

// tcpConn gives a server connection the deadline-aware Read the command
// server expects.
type tcpConn struct {
	conn     *tcp.Conn
	deadline time.Time
}

func (c *tcpConn) SetDeadline(t time.Time) error {
	c.deadline = t
	return nil
}

// Read polls for data until the deadline and returns on the first bytes.
func (c *tcpConn) Read(buf []byte) (int, error) {
	for c.deadline.IsZero() || time.Now().Before(c.deadline) {
		if c.conn.State().IsClosed() || c.conn.State().IsClosing() {
			return 0, io.EOF
		}

		n, err := c.conn.Read(buf)
		if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
			return n, err
		}
		if n > 0 {
			return n, nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return 0, errReadTimeout
}

func (c *tcpConn) Write(p []byte) (int, error) {
	n, err := c.conn.Write(p)
	c.conn.Flush()
	return n, err
}

// Close closes gracefully, then aborts whatever is left.
func (c *tcpConn) Close() error {
	c.conn.Close()
	for i := 0; i < 30 && !c.conn.State().IsClosed(); i++ {
		time.Sleep(100 * time.Millisecond)
	}
	c.conn.Abort()
	return nil
}

func formatRemoteIP(addr []byte) string {
	if len(addr) == 4 {
		return netip.AddrFrom4([4]byte(addr)).String()
	}
	return "unknown"
}
