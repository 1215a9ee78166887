// Package input turns button presses into animation commands.
package input

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"oledanim/mailbox"
	"oledanim/telemetry"
)

// MaxButtons is the number of buttons a Capture can watch; button i
// selects animation i+1.
const MaxButtons = 4

// DefaultDebounce is the quiet period after a release.
const DefaultDebounce = 50 * time.Millisecond

// Policy decides what happens to a press when the mailbox is occupied.
type Policy int

const (
	// DropWhenFull discards the press. The producer never stalls.
	DropWhenFull Policy = iota
	// BlockWhenFull waits until the renderer takes the pending command.
	BlockWhenFull
)

func (p Policy) String() string {
	switch p {
	case DropWhenFull:
		return "drop"
	case BlockWhenFull:
		return "block"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy parses "drop" or "block". The empty string is DropWhenFull.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "drop":
		return DropWhenFull, nil
	case "block":
		return BlockWhenFull, nil
	}
	return DropWhenFull, fmt.Errorf("input: unknown policy %q", s)
}

// Config configures a Capture.
type Config struct {
	Buttons  []Button
	Mailbox  *mailbox.Mailbox
	Policy   Policy
	Debounce time.Duration // zero means DefaultDebounce
	Logger   *slog.Logger
}

// Capture races the buttons and posts one command per press-release cycle.
type Capture struct {
	buttons  []Button
	waits    []func(context.Context) error
	mb       *mailbox.Mailbox
	policy   Policy
	debounce time.Duration
	logger   *slog.Logger
}

// New returns a Capture for cfg.
func New(cfg Config) (*Capture, error) {
	if len(cfg.Buttons) == 0 || len(cfg.Buttons) > MaxButtons {
		return nil, fmt.Errorf("input: need 1 to %d buttons, got %d", MaxButtons, len(cfg.Buttons))
	}
	if cfg.Mailbox == nil {
		return nil, errors.New("input: mailbox is required")
	}
	c := &Capture{
		buttons:  cfg.Buttons,
		mb:       cfg.Mailbox,
		policy:   cfg.Policy,
		debounce: cfg.Debounce,
		logger:   cfg.Logger,
	}
	if c.debounce <= 0 {
		c.debounce = DefaultDebounce
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.waits = make([]func(context.Context) error, len(c.buttons))
	for i, b := range c.buttons {
		c.waits[i] = b.WaitForPress
	}
	return c, nil
}

// Run captures presses until ctx is done. Button errors are logged and the
// race restarts after the debounce period.
func (c *Capture) Run(ctx context.Context) error {
	c.logger.Info("button:start",
		slog.Int("buttons", len(c.buttons)),
		slog.String("policy", c.policy.String()))
	for {
		_, _, err := c.Once(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			c.logger.Warn("button:error", slog.String("err", err.Error()))
			if err := sleep(ctx, c.debounce); err != nil {
				return err
			}
		}
	}
}

// Once handles a single press: it waits for the first button, posts its
// command according to the policy, waits for that button's release and
// then for the debounce period. Presses on other buttons in the meantime
// are not registered. delivered is false when the command was dropped.
func (c *Capture) Once(ctx context.Context) (cmd byte, delivered bool, err error) {
	idx, err := First(ctx, c.waits...)
	if err != nil {
		return 0, false, err
	}
	cmd = byte(idx + 1)
	telemetry.Inc(telemetry.CounterButton)
	c.logger.Info("button:pressed", slog.Int("button", idx+1))

	delivered, err = c.post(ctx, cmd)
	if err != nil {
		return cmd, false, err
	}

	if err := c.buttons[idx].WaitForRelease(ctx); err != nil {
		return cmd, delivered, err
	}
	return cmd, delivered, sleep(ctx, c.debounce)
}

func (c *Capture) post(ctx context.Context, cmd byte) (bool, error) {
	if c.policy == BlockWhenFull {
		if err := c.mb.WriteBlocking(ctx, cmd); err != nil {
			return false, err
		}
		return true, nil
	}
	if err := c.mb.Write(cmd); err != nil {
		if errors.Is(err, mailbox.ErrFull) {
			telemetry.Inc(telemetry.CounterDropped)
			c.logger.Debug("button:dropped", slog.Int("command", int(cmd)))
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
