//go:build tinygo

package telemetry

import (
	"errors"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/soypat/lneto/tcp"
	"github.com/soypat/lneto/x/xnet"
)

// Pre-allocated TCP buffers
// The body is written in 1KB chunks, so TxBuf only needs one chunk plus headers.
var (
	tcpRxBuf [512]byte
	tcpTxBuf [2560]byte
	respBuf  [256]byte
)

var (
	senderMu  sync.Mutex // serialises use of the TCP buffers
	stack     *xnet.StackAsync
	logger    *slog.Logger
	collector netip.AddrPort
)

// Init starts the background sender posting to the OTLP/HTTP collector.
func Init(s *xnet.StackAsync, log *slog.Logger, collectorAddr netip.AddrPort) {
	senderMu.Lock()
	stack = s
	logger = log
	collector = collectorAddr
	senderMu.Unlock()

	Enable()
	go senderLoop()

	if log != nil {
		log.Info("telemetry:init", slog.String("collector", collectorAddr.String()))
	}
}

// senderLoop snapshots counters and flushes queues periodically
func senderLoop() {
	for {
		time.Sleep(FlushInterval)
		if IsPaused() {
			continue
		}
		SnapshotCounters()
		Flush()
	}
}

// Flush sends all queued logs and metrics now.
func Flush() {
	if n, count := takeLogs(); n > 0 {
		err := sendHTTPPost("/v1/logs", n)
		recordSend(count, 0, err)
		if err != nil && logger != nil {
			logger.Debug("telemetry:logs-failed", slog.String("err", err.Error()))
		}
	}
	if n, count := takeMetrics(); n > 0 {
		err := sendHTTPPost("/v1/metrics", n)
		recordSend(0, count, err)
		if err != nil && logger != nil {
			logger.Debug("telemetry:metrics-failed", slog.String("err", err.Error()))
		}
	}
}

// sendHTTPPost posts the first bodyLen bytes of BodyBuf to the collector.
func sendHTTPPost(path string, bodyLen int) error {
	senderMu.Lock()
	defer senderMu.Unlock()

	s := stack
	c := collector
	if s == nil {
		return errors.New("no stack")
	}

	var conn tcp.Conn
	err := conn.Configure(tcp.ConnConfig{
		RxBuf:             tcpRxBuf[:],
		TxBuf:             tcpTxBuf[:],
		TxPacketQueueSize: 3,
	})
	if err != nil {
		return err
	}

	rstack := s.StackRetrying(5 * time.Millisecond)
	lport := uint16(s.Prand32()>>17) + 1024

	err = rstack.DoDialTCP(&conn, lport, c, HTTPTimeout, MaxRetries)
	if err != nil {
		conn.Abort()
		return err
	}

	// Give the stack time to fully establish connection
	time.Sleep(50 * time.Millisecond)
	if !conn.State().IsSynchronized() {
		conn.Abort()
		return errors.New("connection not established")
	}

	conn.SetDeadline(time.Now().Add(HTTPTimeout))

	var hdr [20]byte
	conn.Write([]byte("POST "))
	conn.Write([]byte(path))
	conn.Write([]byte(" HTTP/1.1\r\nHost: "))
	conn.Write([]byte(c.Addr().String()))
	conn.Write([]byte("\r\nContent-Type: application/json\r\nContent-Length: "))
	conn.Write(appendUint(hdr[:0], uint64(bodyLen)))
	conn.Write([]byte("\r\nConnection: close\r\n\r\n"))
	conn.Flush()
	time.Sleep(50 * time.Millisecond)

	// Write body in chunks; the tx buffer may not hold it all
	written := 0
	for written < bodyLen {
		chunk := bodyLen - written
		if chunk > 1024 {
			chunk = 1024
		}
		n, err := conn.Write(BodyBuf[written : written+chunk])
		if err != nil {
			conn.Abort()
			return errors.New("write failed: body")
		}
		written += n
		conn.Flush()
		time.Sleep(50 * time.Millisecond)
	}

	time.Sleep(50 * time.Millisecond)
	respLen, _ := conn.Read(respBuf[:])

	conn.Close()
	for i := 0; i < 10 && !conn.State().IsClosed(); i++ {
		time.Sleep(100 * time.Millisecond)
	}
	conn.Abort()

	// Discard ARP query to free slot for next connection
	s.DiscardResolveHardwareAddress6(c.Addr())

	if !statusOK(respBuf[:respLen]) {
		return errors.New("http error")
	}
	return nil
}
