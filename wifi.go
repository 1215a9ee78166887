//go:build tinygo

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"oledanim/command"
	"oledanim/credentials"
	"oledanim/telemetry"

	"github.com/soypat/cyw43439"
	"github.com/soypat/cyw43439/examples/cywnet"
	"github.com/soypat/lneto/x/xnet"
)

const (
	pollTime = 5 * time.Millisecond

	// Consecutive RecvAndSend failures before the link counts as lost.
	maxStackErrors = 200
)

var errNoStack = errors.New("wifi: stack not ready")

// wifiLink is the CYW43439 radio and its lneto stack, brought up in the
// order the command server asks for it.
type wifiLink struct {
	logger    *slog.Logger
	netLogger *slog.Logger
	hostname  string
	requested netip.Addr

	// onAddress runs once, after the first DHCP lease.
	onAddress func(stack *xnet.StackAsync)

	stack     *cywnet.Stack
	lneto     atomic.Pointer[xnet.StackAsync]
	errs      atomic.Int32
	addressed atomic.Bool
	once      sync.Once
}

// Join configures the radio and joins the access point. The radio is
// only set up once; later calls return at once.
func (l *wifiLink) Join(ctx context.Context) error {
	if l.stack != nil {
		return nil
	}
	devcfg := cyw43439.DefaultWifiConfig()
	devcfg.Logger = l.netLogger
	cystack, err := cywnet.NewConfiguredPicoWithStack(
		credentials.SSID(),
		credentials.Password(),
		devcfg,
		cywnet.StackConfig{
			Hostname:    l.hostname,
			MaxTCPPorts: 3, // HTTP + MQTT + telemetry
		},
	)
	if err != nil {
		return err
	}
	l.stack = cystack
	go l.loopForeverStack()
	return nil
}

// WaitLinkUp blocks until packets flow again.
func (l *wifiLink) WaitLinkUp(ctx context.Context) error {
	if l.stack == nil {
		return errNoStack
	}
	for !l.Up() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil
}

// AcquireAddress runs DHCP.
func (l *wifiLink) AcquireAddress(ctx context.Context) (netip.Addr, error) {
	l.addressed.Store(false)
	res, err := l.stack.SetupWithDHCP(cywnet.DHCPConfig{
		RequestedAddr: l.requested,
	})
	if err != nil {
		return netip.Addr{}, err
	}
	stack := l.stack.LnetoStack()
	l.lneto.Store(stack)
	l.addressed.Store(true)
	l.once.Do(func() {
		if l.onAddress != nil {
			l.onAddress(stack)
		}
	})
	return res.AssignedAddr, nil
}

// Up reports whether the stack is moving packets.
func (l *wifiLink) Up() bool {
	return l.stack != nil && l.errs.Load() < maxStackErrors
}

// listen opens the command listener on the lneto stack.
func (l *wifiLink) listen(addr netip.Addr, port uint16) (command.Listener, error) {
	stack := l.lneto.Load()
	if stack == nil {
		return nil, errNoStack
	}
	return newTCPListener(stack, port, l.logger)
}

// loopForeverStack processes network packets in the background.
func (l *wifiLink) loopForeverStack() {
	for {
		send, recv, err := l.stack.RecvAndSend()
		if err != nil {
			if l.errs.Add(1) == maxStackErrors {
				telemetry.Pause()
				l.logger.Warn("wifi:stack-errors", slog.String("err", err.Error()))
			}
		} else if l.errs.Swap(0) >= maxStackErrors {
			telemetry.Resume()
			l.logger.Info("wifi:stack-recovered")
		}
		if send == 0 && recv == 0 {
			time.Sleep(pollTime)
		}
	}
}
