// Package mailbox provides the single-slot byte channel shared between the
// command producers (buttons, HTTP, MQTT) and the render task.
//
// A Mailbox is NOT a queue: it holds at most one pending value. Producers
// either fail fast (Write), wait for the slot to drain (WriteBlocking) or
// overwrite the pending value (Replace). Exactly one consumer is expected.
package mailbox

import (
	"context"
	"errors"
)

// ErrFull is returned by Write when a previous value has not been consumed.
var ErrFull = errors.New("mailbox: slot full")

// Mailbox is a one-slot channel. Every slot operation is a single channel
// operation, so it is atomic with respect to other goroutines regardless of
// the scheduler in use.
type Mailbox struct {
	slot chan byte
}

// New returns an empty mailbox.
func New() *Mailbox {
	return &Mailbox{slot: make(chan byte, 1)}
}

// Write stores b if the slot is empty and fails with ErrFull otherwise.
func (m *Mailbox) Write(b byte) error {
	select {
	case m.slot <- b:
		return nil
	default:
		return ErrFull
	}
}

// WriteBlocking waits until the slot is free, then stores b.
// It returns ctx.Err() if the context ends first; b is not stored in that case.
func (m *Mailbox) WriteBlocking(ctx context.Context, b byte) error {
	select {
	case m.slot <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Replace stores b, discarding any unread value (latest wins).
// It reports the discarded value, if there was one.
func (m *Mailbox) Replace(b byte) (dropped byte, overwrote bool) {
	for {
		select {
		case m.slot <- b:
			return dropped, overwrote
		default:
		}
		// Slot is occupied: take the pending value out and retry. A consumer
		// may win the race for it, in which case nothing was dropped.
		select {
		case dropped = <-m.slot:
			overwrote = true
		default:
		}
	}
}

// TryRead empties the slot and returns its content. ok is false when the
// slot was empty.
func (m *Mailbox) TryRead() (b byte, ok bool) {
	select {
	case b = <-m.slot:
		return b, true
	default:
		return 0, false
	}
}

// ReadBlocking waits until a value is present and returns it.
func (m *Mailbox) ReadBlocking(ctx context.Context) (byte, error) {
	select {
	case b := <-m.slot:
		return b, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Len returns 1 if a value is pending, 0 otherwise.
func (m *Mailbox) Len() int {
	return len(m.slot)
}
