package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"log/slog"
	"testing"
	"time"

	"golang.org/x/image/bmp"

	"oledanim/animation"
	"oledanim/mailbox"
)

// recorder is a Display that remembers what was drawn since the last Clear.
type recorder struct {
	texts    []string
	images   int
	flushes  int
	flushErr error
}

func (d *recorder) Clear() error {
	d.texts = d.texts[:0]
	d.images = 0
	return nil
}

func (d *recorder) DrawText(s string, x, y int16) error {
	d.texts = append(d.texts, s)
	return nil
}

func (d *recorder) DrawImage(img image.Image, x, y int16) error {
	if x != ImageX || y != ImageY {
		return errors.New("image drawn off-centre")
	}
	d.images++
	return nil
}

func (d *recorder) Flush() error {
	d.flushes++
	return d.flushErr
}

var errBadFrame = errors.New("bad frame")

// fakeDecoder fails on frames whose first byte is 0xFF.
var fakeDecoder = DecoderFunc(func(data []byte) (image.Image, error) {
	if len(data) == 0 || data[0] == 0xFF {
		return nil, errBadFrame
	}
	return image.NewGray(image.Rect(0, 0, 48, 48)), nil
})

// registry builds a registry whose frames are their own index byte.
func registry(t *testing.T, lengths ...int) *animation.Registry {
	t.Helper()
	sets := make([]animation.FrameSet, len(lengths))
	for i, l := range lengths {
		sets[i].Name = string(rune('a' + i))
		for j := 0; j < l; j++ {
			sets[i].Frames = append(sets[i].Frames, []byte{byte(j)})
		}
	}
	r, err := animation.NewRegistry(sets...)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func newRenderer(t *testing.T, reg *animation.Registry, mb *mailbox.Mailbox, d Display) *Renderer {
	t.Helper()
	r, err := New(Config{
		Registry: reg,
		Mailbox:  mb,
		Display:  d,
		Decoder:  fakeDecoder,
		Logger:   slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestNewValidates(t *testing.T) {
	reg := registry(t, 1)
	if _, err := New(Config{Registry: reg, Mailbox: mailbox.New()}); err == nil {
		t.Error("New without display should fail")
	}
	_, err := New(Config{Registry: reg, Mailbox: mailbox.New(), Display: &recorder{}, Initial: 2})
	if !errors.Is(err, ErrUnknownAnimation) {
		t.Errorf("New with initial 2 = %v, want ErrUnknownAnimation", err)
	}
}

func TestInvalidCommandsKeepAnimation(t *testing.T) {
	reg := registry(t, 15, 1, 6, 1)
	mb := mailbox.New()
	r := newRenderer(t, reg, mb, &recorder{})

	mb.Write(3)
	r.Step()
	for _, v := range []byte{0, 5, 9, 42, 255} {
		mb.Write(v)
		f := r.Step()
		if f.ID != 3 {
			t.Errorf("after invalid %d: id = %d, want 3", v, f.ID)
		}
		if f.Switched {
			t.Errorf("after invalid %d: switched", v)
		}
	}
}

func TestIndexResetsOnlyOnChange(t *testing.T) {
	reg := registry(t, 15, 1, 6, 1)
	mb := mailbox.New()
	r := newRenderer(t, reg, mb, &recorder{})

	// Commands written before the given cycle.
	writes := map[int]byte{3: 3, 5: 3, 7: 1, 12: 9}
	var prevID animation.ID = 1
	wantIndex := 0
	for cycle := 0; cycle < 20; cycle++ {
		if v, ok := writes[cycle]; ok {
			mb.Write(v)
		}
		f := r.Step()
		changed := f.ID != prevID
		if changed {
			wantIndex = 0
		}
		if f.Switched != changed {
			t.Errorf("cycle %d: Switched = %v, want %v", cycle, f.Switched, changed)
		}
		if f.Index != wantIndex%f.Total {
			t.Errorf("cycle %d: index = %d, want %d", cycle, f.Index, wantIndex%f.Total)
		}
		wantIndex++
		prevID = f.ID
	}
}

func TestSafeIndexWraps(t *testing.T) {
	for _, l := range []int{1, 2, 6, 15} {
		r := newRenderer(t, registry(t, l), mailbox.New(), &recorder{})
		for cycle := 0; cycle < 3*l+1; cycle++ {
			f := r.Step()
			if f.Index < 0 || f.Index >= l {
				t.Fatalf("len %d cycle %d: index %d out of range", l, cycle, f.Index)
			}
			if f.Index != cycle%l {
				t.Fatalf("len %d cycle %d: index %d, want %d", l, cycle, f.Index, cycle%l)
			}
		}
	}
}

func TestSwitchToSingleFrameAnimation(t *testing.T) {
	reg := registry(t, 15, 1, 6, 1)
	mb := mailbox.New()
	d := &recorder{}
	r := newRenderer(t, reg, mb, d)

	for i := 0; i < 7; i++ {
		if f := r.Step(); f.ID != 1 || f.Index != i {
			t.Fatalf("warm-up %d: got id %d index %d", i, f.ID, f.Index)
		}
	}

	if err := mb.Write(4); err != nil {
		t.Fatal(err)
	}
	f := r.Step()
	if f.ID != 4 || f.Index != 0 || !f.Switched {
		t.Fatalf("after switch: %+v", f)
	}
	if len(d.texts) == 0 || d.texts[0] != "Animation #: 4" {
		t.Errorf("title = %v", d.texts)
	}
	for i := 0; i < 10; i++ {
		if f := r.Step(); f.ID != 4 || f.Index != 0 || f.Total != 1 {
			t.Fatalf("repeat %d: %+v", i, f)
		}
	}
}

func TestDecodeFailureDoesNotStopLaterFrames(t *testing.T) {
	set := animation.FrameSet{Name: "x", Frames: [][]byte{{0}, {0xFF}, {2}, {3}}}
	reg, err := animation.NewRegistry(set)
	if err != nil {
		t.Fatal(err)
	}
	d := &recorder{}
	r := newRenderer(t, reg, mailbox.New(), d)

	want := []bool{true, false, true, true, true, false}
	for i, w := range want {
		f := r.Step()
		if f.Decoded != w {
			t.Errorf("cycle %d: decoded = %v, want %v", i, f.Decoded, w)
		}
		if f.Err != nil {
			t.Errorf("cycle %d: unexpected err %v", i, f.Err)
		}
	}
	if d.flushes != len(want) {
		t.Errorf("flushes = %d, want %d", d.flushes, len(want))
	}
}

func TestFlushFailureIsNonFatal(t *testing.T) {
	d := &recorder{flushErr: errors.New("i2c nack")}
	r := newRenderer(t, registry(t, 3), mailbox.New(), d)

	for i := 0; i < 4; i++ {
		f := r.Step()
		if f.Err == nil {
			t.Fatalf("cycle %d: expected flush error", i)
		}
		if f.Index != i%3 {
			t.Errorf("cycle %d: index = %d, want %d", i, f.Index, i%3)
		}
	}
	d.flushErr = nil
	if f := r.Step(); f.Err != nil || f.Index != 1 {
		t.Errorf("after recovery: %+v", f)
	}
}

func TestFrameCounterText(t *testing.T) {
	d := &recorder{}
	r, err := New(Config{
		Registry:     registry(t, 15),
		Mailbox:      mailbox.New(),
		Display:      d,
		Decoder:      fakeDecoder,
		FrameCounter: true,
		Logger:       slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 12; i++ {
		r.Step()
	}
	if len(d.texts) != 2 || d.texts[0] != "Animation #: 1" || d.texts[1] != "11" {
		t.Errorf("texts = %q", d.texts)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	d := &recorder{}
	r, err := New(Config{
		Registry: registry(t, 2),
		Mailbox:  mailbox.New(),
		Display:  d,
		Decoder:  fakeDecoder,
		Interval: time.Millisecond,
		Logger:   slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := r.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() = %v", err)
	}
	if d.flushes < 2 {
		t.Errorf("flushes = %d, want several", d.flushes)
	}
}

func TestBMPDecoder(t *testing.T) {
	src := image.NewPaletted(image.Rect(0, 0, 48, 48), color.Palette{color.Black, color.White})
	src.SetColorIndex(10, 20, 1)
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, src); err != nil {
		t.Fatal(err)
	}

	img, err := BMPDecoder{}.Decode(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 48 || img.Bounds().Dy() != 48 {
		t.Errorf("bounds = %v", img.Bounds())
	}
	if r, _, _, _ := img.At(10, 20).RGBA(); r == 0 {
		t.Error("pixel (10,20) should be white")
	}

	if _, err := (BMPDecoder{}).Decode([]byte("BM garbage")); err == nil {
		t.Error("decoding garbage should fail")
	}
}

func TestBuiltinFramesDecode(t *testing.T) {
	reg := animation.Builtin()
	for id := animation.ID(1); int(id) <= reg.Count(); id++ {
		set, _ := reg.Lookup(id)
		for i, data := range set.Frames {
			img, err := BMPDecoder{}.Decode(data)
			if err != nil {
				t.Fatalf("%s frame %d: %v", set.Name, i, err)
			}
			if b := img.Bounds(); b.Dx() != 48 || b.Dy() != 48 {
				t.Errorf("%s frame %d: bounds %v", set.Name, i, b)
			}
		}
	}
}
