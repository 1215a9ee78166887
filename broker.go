//go:build tinygo

package main

import (
	"context"
	"net/netip"
	"time"

	"oledanim/mqttcmd"

	"github.com/soypat/lneto/tcp"
	"github.com/soypat/lneto/x/xnet"
)

const (
	mqttTimeout = 10 * time.Second
	mqttRetries = 3
	tcpBufSize  = 2030 // MTU - ethhdr - iphdr - tcphdr
)

// Pre-allocated broker connection buffers
var (
	mqttRxBuf [tcpBufSize]byte
	mqttTxBuf [tcpBufSize]byte
)

// dialBroker returns a DialFunc opening TCP to the broker once the link
// has an address.
func (l *wifiLink) dialBroker(broker netip.AddrPort) mqttcmd.DialFunc {
	return func(ctx context.Context) (mqttcmd.Conn, error) {
		stack := l.lneto.Load()
		if stack == nil || !l.addressed.Load() || !l.Up() {
			return nil, errNoStack
		}

		bc := &brokerConn{stack: stack, addr: broker}
		err := bc.conn.Configure(tcp.ConnConfig{
			RxBuf:             mqttRxBuf[:],
			TxBuf:             mqttTxBuf[:],
			TxPacketQueueSize: 3,
		})
		if err != nil {
			return nil, err
		}

		rstack := stack.StackRetrying(5 * time.Millisecond)
		lport := uint16(stack.Prand32()>>17) + 1024
		err = rstack.DoDialTCP(&bc.conn, lport, broker, mqttTimeout, mqttRetries)
		if err != nil {
			bc.Close()
			return nil, err
		}
		return bc, nil
	}
}

// prand returns stack randomness for MQTT packet identifiers.
func (l *wifiLink) prand() uint32 {
	if stack := l.lneto.Load(); stack != nil {
		return stack.Prand32()
	}
	return uint32(time.Now().UnixNano())
}

// brokerConn is a dialled broker connection.
type brokerConn struct {
	stack *xnet.StackAsync
	addr  netip.AddrPort
	conn  tcp.Conn
}

func (c *brokerConn) Read(p []byte) (int, error)  { return c.conn.Read(p) }
func (c *brokerConn) Write(p []byte) (int, error) { return c.conn.Write(p) }

func (c *brokerConn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// Close closes the TCP connection and waits for it to close.
func (c *brokerConn) Close() error {
	c.conn.Close()
	for i := 0; i < 50 && !c.conn.State().IsClosed(); i++ {
		time.Sleep(100 * time.Millisecond)
	}
	c.conn.Abort()

	// Discard ARP query to free slot for next connection
	c.stack.DiscardResolveHardwareAddress6(c.addr.Addr())
	return nil
}
