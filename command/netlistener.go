//go:build !tinygo

package command

import (
	"context"
	"net"
	"net/netip"
	"strconv"
	"time"
)

// NetListener adapts a net.Listener from the standard library, used by
// the simulator and tests on a host.
type NetListener struct {
	net.Listener
}

// ListenTCP listens on addr:port. An invalid addr listens on all
// interfaces.
func ListenTCP(addr netip.Addr, port uint16) (Listener, error) {
	hostport := ":" + strconv.Itoa(int(port))
	if addr.IsValid() {
		hostport = netip.AddrPortFrom(addr, port).String()
	}
	l, err := net.Listen("tcp", hostport)
	if err != nil {
		return nil, err
	}
	return &NetListener{Listener: l}, nil
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// Accept waits for a connection until ctx is done.
func (l *NetListener) Accept(ctx context.Context) (Conn, error) {
	if d, ok := l.Listener.(deadliner); ok {
		dl, _ := ctx.Deadline()
		d.SetDeadline(dl)
		stop := context.AfterFunc(ctx, func() {
			d.SetDeadline(time.Now())
		})
		defer stop()
	}
	c, err := l.Listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return c, nil
}
