// Package render owns the display and draws the selected animation at a
// fixed cadence. It is the only consumer of the command mailbox.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/image/bmp"

	"oledanim/animation"
	"oledanim/mailbox"
	"oledanim/telemetry"
)

// DefaultInterval is the frame period used when Config.Interval is zero.
const DefaultInterval = 200 * time.Millisecond

// Layout on a 128x64 panel. Frames are 48x48 and centred below the title.
const (
	TitleX   = 0
	TitleY   = 10
	CounterX = 105
	CounterY = 10
	ImageX   = 40
	ImageY   = 16
)

// ErrUnknownAnimation is returned when the current id has no frame set.
var ErrUnknownAnimation = errors.New("render: unknown animation")

// Display is the drawing surface the renderer needs. Positions are in
// pixels; text positions are the baseline of the first glyph.
type Display interface {
	Clear() error
	DrawText(s string, x, y int16) error
	DrawImage(img image.Image, x, y int16) error
	Flush() error
}

// Decoder turns an encoded frame into an image.
type Decoder interface {
	Decode(data []byte) (image.Image, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(data []byte) (image.Image, error)

// Decode calls f(data).
func (f DecoderFunc) Decode(data []byte) (image.Image, error) { return f(data) }

// BMPDecoder decodes Windows bitmaps, including the 1-bit paletted frames
// embedded in the animation package.
type BMPDecoder struct{}

// Decode implements Decoder.
func (BMPDecoder) Decode(data []byte) (image.Image, error) {
	return bmp.Decode(bytes.NewReader(data))
}

// Config configures a Renderer.
type Config struct {
	Registry *animation.Registry
	Mailbox  *mailbox.Mailbox
	Display  Display
	Decoder  Decoder       // nil means BMPDecoder
	Interval time.Duration // zero means DefaultInterval
	Initial  animation.ID  // zero means 1

	// FrameCounter draws the frame index in the top right corner.
	FrameCounter bool

	Logger *slog.Logger
}

// Frame describes one render cycle.
type Frame struct {
	ID       animation.ID
	Index    int  // safe index actually used
	Total    int  // frames in the current set
	Switched bool // the id changed on this cycle
	Decoded  bool // the frame decoded and was drawn
	Err      error
}

// Renderer is the consumer side of the pipeline. It is not safe for
// concurrent use; exactly one goroutine should call Step or Run.
type Renderer struct {
	reg      *animation.Registry
	mb       *mailbox.Mailbox
	disp     Display
	dec      Decoder
	interval time.Duration
	counter  bool
	logger   *slog.Logger

	current animation.ID
	last    animation.ID
	index   uint
	title   [16]byte
}

// New validates cfg and returns a Renderer showing cfg.Initial.
func New(cfg Config) (*Renderer, error) {
	if cfg.Registry == nil || cfg.Mailbox == nil || cfg.Display == nil {
		return nil, errors.New("render: registry, mailbox and display are required")
	}
	r := &Renderer{
		reg:      cfg.Registry,
		mb:       cfg.Mailbox,
		disp:     cfg.Display,
		dec:      cfg.Decoder,
		interval: cfg.Interval,
		counter:  cfg.FrameCounter,
		logger:   cfg.Logger,
		current:  cfg.Initial,
	}
	if r.dec == nil {
		r.dec = BMPDecoder{}
	}
	if r.interval <= 0 {
		r.interval = DefaultInterval
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.current == 0 {
		r.current = 1
	}
	if !r.reg.Valid(r.current) {
		return nil, fmt.Errorf("%w: initial id %d", ErrUnknownAnimation, r.current)
	}
	r.last = r.current
	return r, nil
}

// Current returns the animation being shown.
func (r *Renderer) Current() animation.ID { return r.current }

// Run renders one frame per interval until ctx is done.
func (r *Renderer) Run(ctx context.Context) error {
	set, _ := r.reg.Lookup(r.current)
	r.logger.Info("render:start",
		slog.Int("id", int(r.current)),
		slog.Int("frames", set.Len()),
		slog.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		r.Step()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Step runs a single render cycle: poll the mailbox, switch animation if a
// valid new id arrived, draw the current frame and advance the index.
// Errors are reported in the returned Frame and never stop the pipeline.
func (r *Renderer) Step() Frame {
	if b, ok := r.mb.TryRead(); ok {
		r.apply(b)
	}

	var f Frame
	if r.current != r.last {
		r.index = 0
		r.last = r.current
		f.Switched = true
	}

	set, ok := r.reg.Lookup(r.current)
	if !ok || set.Len() == 0 {
		f.Err = fmt.Errorf("%w: %d", ErrUnknownAnimation, r.current)
		return f
	}

	f.ID = r.current
	f.Total = set.Len()
	f.Index = int(r.index % uint(f.Total))
	f.Decoded, f.Err = r.draw(set.Frame(uint(f.Index)), f.Index)
	r.index++

	if f.Err != nil {
		r.logger.Error("render:frame-failed",
			slog.Int("id", int(f.ID)),
			slog.Int("frame", f.Index),
			slog.String("err", f.Err.Error()))
	} else {
		telemetry.Inc(telemetry.CounterFrames)
		r.logger.Debug("render:frame",
			slog.Int("id", int(f.ID)),
			slog.Int("frame", f.Index+1),
			slog.Int("total", f.Total))
	}
	return f
}

// apply takes a command byte from the mailbox. Out-of-range values keep the
// current animation.
func (r *Renderer) apply(b byte) {
	id := animation.ID(b)
	if !r.reg.Valid(id) {
		telemetry.Inc(telemetry.CounterInvalidCommand)
		r.logger.Warn("render:invalid-command", slog.Int("value", int(b)))
		return
	}
	if id == r.current {
		return
	}
	telemetry.Inc(telemetry.CounterAnimSwitches)
	r.logger.Info("render:switch",
		slog.Int("from", int(r.current)),
		slog.Int("to", int(id)))
	r.current = id
}

func (r *Renderer) draw(data []byte, index int) (decoded bool, err error) {
	if err := r.disp.Clear(); err != nil {
		return false, fmt.Errorf("clear: %w", err)
	}
	if err := r.disp.DrawText(r.titleText(), TitleX, TitleY); err != nil {
		r.logger.Debug("render:title-failed", slog.String("err", err.Error()))
	}
	if r.counter {
		var buf [8]byte
		if err := r.disp.DrawText(string(strconv.AppendInt(buf[:0], int64(index), 10)), CounterX, CounterY); err != nil {
			r.logger.Debug("render:counter-failed", slog.String("err", err.Error()))
		}
	}

	img, err := r.dec.Decode(data)
	if err != nil {
		telemetry.Inc(telemetry.CounterDecodeErrors)
		r.logger.Error("render:decode-failed",
			slog.Int("frame", index),
			slog.String("err", err.Error()))
	} else if err := r.disp.DrawImage(img, ImageX, ImageY); err != nil {
		r.logger.Error("render:draw-failed",
			slog.Int("frame", index),
			slog.String("err", err.Error()))
	} else {
		decoded = true
	}

	if err := r.disp.Flush(); err != nil {
		telemetry.Inc(telemetry.CounterFlushErrors)
		return decoded, fmt.Errorf("flush: %w", err)
	}
	return decoded, nil
}

// titleText returns "Animation #: k".
func (r *Renderer) titleText() string {
	b := append(r.title[:0], "Animation #: "...)
	b = strconv.AppendInt(b, int64(r.current), 10)
	return string(b)
}
