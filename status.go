package main

import (
	"context"
	"sync"
	"time"
)

// Status LED timing.
const (
	blinkOn  = 60 * time.Millisecond
	blinkGap = 60 * time.Millisecond
)

// indicator drives the status LED. It is steady on once the network is
// up and blinks once for every network command.
type indicator struct {
	set   func(on bool)
	blink chan struct{}

	mu     sync.Mutex
	steady bool
}

func newIndicator(set func(on bool)) *indicator {
	set(false)
	return &indicator{set: set, blink: make(chan struct{}, 1)}
}

// SetSteady sets the resting level of the LED.
func (i *indicator) SetSteady(on bool) {
	i.mu.Lock()
	i.steady = on
	i.set(on)
	i.mu.Unlock()
}

// Ack queues a blink. Blinks that arrive while one is pending are merged.
func (i *indicator) Ack(cmd byte) {
	select {
	case i.blink <- struct{}{}:
	default:
	}
}

// Run plays queued blinks until ctx is done.
func (i *indicator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-i.blink:
		}
		i.mu.Lock()
		i.set(!i.steady)
		i.mu.Unlock()
		time.Sleep(blinkOn)

		i.mu.Lock()
		i.set(i.steady)
		i.mu.Unlock()
		time.Sleep(blinkGap)
	}
}

// stallDetector reports the render loop unhealthy once the frame count
// has not moved for limit consecutive checks.
type stallDetector struct {
	limit  int
	last   int64
	stalls int
}

func (d *stallDetector) healthy(frames int64) bool {
	if frames != d.last {
		d.last = frames
		d.stalls = 0
		return true
	}
	d.stalls++
	return d.stalls < d.limit
}

// appendHex appends v as 4 hex characters.
func appendHex(b []byte, v uint16) []byte {
	const hexDigits = "0123456789abcdef"
	return append(b,
		hexDigits[(v>>12)&0xf],
		hexDigits[(v>>8)&0xf],
		hexDigits[(v>>4)&0xf],
		hexDigits[v&0xf],
	)
}
