// Package pipeline wires the producers and the renderer around one shared
// mailbox. The firmware and the host simulator both start here.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"oledanim/animation"
	"oledanim/command"
	"oledanim/input"
	"oledanim/mailbox"
	"oledanim/mqttcmd"
	"oledanim/render"
)

// Config selects which producers run. Nil Server or MQTT configs leave
// that producer out; an empty Buttons slice skips button capture.
type Config struct {
	Registry *animation.Registry // nil means animation.Builtin()
	Display  render.Display
	Decoder  render.Decoder

	FrameInterval time.Duration
	FrameCounter  bool

	Buttons  []input.Button
	Policy   input.Policy
	Debounce time.Duration

	// Mailbox fields in Server and MQTT are filled in by Run.
	Server *command.Config
	MQTT   *mqttcmd.Config

	// Ack runs for every network command.
	Ack func(cmd byte)

	Logger *slog.Logger
}

// Pipeline is an assembled set of tasks.
type Pipeline struct {
	Mailbox  *mailbox.Mailbox
	Renderer *render.Renderer
	Capture  *input.Capture
	Server   *command.Server
	MQTT     *mqttcmd.Subscriber

	logger *slog.Logger
}

// New builds every configured task around a fresh mailbox.
func New(cfg Config) (*Pipeline, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := cfg.Registry
	if reg == nil {
		reg = animation.Builtin()
	}

	p := &Pipeline{Mailbox: mailbox.New(), logger: logger}

	var err error
	p.Renderer, err = render.New(render.Config{
		Registry:     reg,
		Mailbox:      p.Mailbox,
		Display:      cfg.Display,
		Decoder:      cfg.Decoder,
		Interval:     cfg.FrameInterval,
		FrameCounter: cfg.FrameCounter,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	if len(cfg.Buttons) > 0 {
		p.Capture, err = input.New(input.Config{
			Buttons:  cfg.Buttons,
			Mailbox:  p.Mailbox,
			Policy:   cfg.Policy,
			Debounce: cfg.Debounce,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
	}

	if cfg.Server != nil {
		sc := *cfg.Server
		sc.Mailbox = p.Mailbox
		if sc.Ack == nil {
			sc.Ack = cfg.Ack
		}
		if sc.Logger == nil {
			sc.Logger = logger
		}
		p.Server, err = command.New(sc)
		if err != nil {
			return nil, err
		}
	}

	if cfg.MQTT != nil {
		mc := *cfg.MQTT
		mc.Mailbox = p.Mailbox
		if mc.Ack == nil {
			mc.Ack = cfg.Ack
		}
		if mc.Logger == nil {
			mc.Logger = logger
		}
		p.MQTT, err = mqttcmd.New(mc)
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Run starts the producers in their own goroutines and renders on the
// calling goroutine until ctx is done. It returns after every task has
// stopped.
func (p *Pipeline) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	start := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("pipeline:panic-recovered", slog.String("task", name))
				}
			}()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Warn("pipeline:task-stopped", slog.String("task", name), slog.String("err", err.Error()))
			}
		}()
	}

	if p.Capture != nil {
		start("button", p.Capture.Run)
	}
	if p.Server != nil {
		start("http", p.Server.Run)
	}
	if p.MQTT != nil {
		start("mqtt", p.MQTT.Run)
	}

	err := p.Renderer.Run(ctx)
	wg.Wait()
	return err
}

// WaitForDevice calls init until it succeeds, pausing every between
// attempts and logging each failure. Rendering cannot start without the
// display, so the firmware parks here rather than giving up.
func WaitForDevice(ctx context.Context, logger *slog.Logger, name string, every time.Duration, init func() error) error {
	for attempt := 1; ; attempt++ {
		err := init()
		if err == nil {
			logger.Info("init:device-ready", slog.String("device", name), slog.Int("attempts", attempt))
			return nil
		}
		logger.Error("init:device-failed",
			slog.String("device", name),
			slog.Int("attempt", attempt),
			slog.String("err", err.Error()))

		t := time.NewTimer(every)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
