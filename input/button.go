package input

import (
	"context"
	"time"
)

// Button is one physical push button.
type Button interface {
	WaitForPress(ctx context.Context) error
	WaitForRelease(ctx context.Context) error
}

// Pin is a digital input. machine.Pin satisfies it.
type Pin interface {
	Get() bool
}

// Defaults for PinButton.
const (
	DefaultPoll   = 2 * time.Millisecond
	DefaultStable = 3
)

// PinButton turns a polled Pin into a Button. A level change is reported
// only after it has been read Stable times in a row.
//
// Buttons are wired to ground with the internal pull-up enabled, so a
// pressed button reads low. Set ActiveHigh for pull-down wiring.
type PinButton struct {
	Pin        Pin
	ActiveHigh bool
	Poll       time.Duration // zero means DefaultPoll
	Stable     int           // zero means DefaultStable
}

// WaitForPress blocks until the button is held down.
func (b *PinButton) WaitForPress(ctx context.Context) error {
	return b.waitFor(ctx, true)
}

// WaitForRelease blocks until the button is up.
func (b *PinButton) WaitForRelease(ctx context.Context) error {
	return b.waitFor(ctx, false)
}

func (b *PinButton) pressed() bool {
	return b.Pin.Get() == b.ActiveHigh
}

func (b *PinButton) waitFor(ctx context.Context, down bool) error {
	poll, stable := b.Poll, b.Stable
	if poll <= 0 {
		poll = DefaultPoll
	}
	if stable <= 0 {
		stable = DefaultStable
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	run := 0
	for {
		if b.pressed() == down {
			run++
			if run >= stable {
				return nil
			}
		} else {
			run = 0
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
