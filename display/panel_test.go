package display

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"log/slog"
	"strings"
	"testing"

	"oledanim/animation"
	"oledanim/mailbox"
	"oledanim/render"
)

func TestPanelDrawImage(t *testing.T) {
	fb := NewFramebuffer(128, 64)
	p := NewPanel(fb)

	img := image.NewGray(image.Rect(0, 0, 48, 48))
	img.SetGray(3, 4, color.Gray{Y: 0xFF})
	img.SetGray(5, 6, color.Gray{Y: 0x7F}) // below threshold

	if err := p.DrawImage(img, 40, 16); err != nil {
		t.Fatal(err)
	}
	if !fb.Pixel(43, 20) {
		t.Error("pixel (43,20) should be lit")
	}
	if fb.Pixel(45, 22) {
		t.Error("pixel (45,22) is below threshold and should be dark")
	}
	if n := fb.Lit(0, 0, 128, 64); n != 1 {
		t.Errorf("lit pixels = %d, want 1", n)
	}
}

func TestPanelDrawImageClips(t *testing.T) {
	fb := NewFramebuffer(128, 64)
	p := NewPanel(fb)

	img := image.NewGray(image.Rect(0, 0, 48, 48))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	if err := p.DrawImage(img, 100, 40); err != nil {
		t.Fatal(err)
	}
	if n, want := fb.Lit(0, 0, 128, 64), 28*24; n != want {
		t.Errorf("lit pixels = %d, want %d", n, want)
	}
	if err := p.DrawImage(img, 128, 0); !errors.Is(err, ErrOffscreen) {
		t.Errorf("DrawImage offscreen = %v", err)
	}
	if err := p.DrawImage(img, -48, 0); !errors.Is(err, ErrOffscreen) {
		t.Errorf("DrawImage left of panel = %v", err)
	}
}

func TestPanelDrawText(t *testing.T) {
	fb := NewFramebuffer(128, 64)
	p := NewPanel(fb)

	if err := p.DrawText("Animation #: 1", 0, 10); err != nil {
		t.Fatal(err)
	}
	if fb.Lit(0, 0, 128, 14) == 0 {
		t.Error("title drew no pixels in the top band")
	}
	if n := fb.Lit(0, 16, 128, 64); n != 0 {
		t.Errorf("title leaked %d pixels into the image area", n)
	}
	if err := p.DrawText("x", 200, 10); !errors.Is(err, ErrOffscreen) {
		t.Errorf("DrawText offscreen = %v", err)
	}
}

func TestPanelClear(t *testing.T) {
	fb := NewFramebuffer(16, 8)
	fb.SetPixel(1, 1, On)
	if err := NewPanel(fb).Clear(); err != nil {
		t.Fatal(err)
	}
	if fb.Lit(0, 0, 16, 8) != 0 {
		t.Error("Clear left pixels lit")
	}

	fb.SetPixel(2, 2, On)
	p := &Panel{dev: struct{ displayer }{fb}, w: 16, h: 8}
	p.Clear()
	if fb.Lit(0, 0, 16, 8) != 0 {
		t.Error("pixel-by-pixel Clear left pixels lit")
	}
}

// displayer exposes only the drivers.Displayer methods.
type displayer interface {
	Size() (x, y int16)
	SetPixel(x, y int16, c color.RGBA)
	Display() error
}

func TestFramebufferDisplay(t *testing.T) {
	var out bytes.Buffer
	fb := NewFramebuffer(4, 4)
	fb.Out = &out
	fb.SetPixel(0, 0, On)
	fb.SetPixel(1, 1, On)
	fb.SetPixel(2, 0, On)
	fb.SetPixel(2, 1, On)

	if err := NewPanel(fb).Flush(); err != nil {
		t.Fatal(err)
	}
	if fb.Flushes() != 1 {
		t.Errorf("Flushes() = %d", fb.Flushes())
	}
	lines := strings.Split(strings.TrimPrefix(out.String(), "\x1b[H"), "\r\n")
	if lines[0] != "▀▄█ " {
		t.Errorf("first row = %q", lines[0])
	}
	if lines[1] != "    " {
		t.Errorf("second row = %q", lines[1])
	}
}

func TestRendererOnPanel(t *testing.T) {
	fb := NewFramebuffer(128, 64)
	mb := mailbox.New()
	r, err := render.New(render.Config{
		Registry:     animation.Builtin(),
		Mailbox:      mb,
		Display:      NewPanel(fb),
		FrameCounter: true,
		Logger:       slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatal(err)
	}

	for id := byte(1); id <= 4; id++ {
		mb.Write(id)
		f := r.Step()
		if f.Err != nil || !f.Decoded {
			t.Fatalf("id %d: %+v", id, f)
		}
		if fb.Lit(0, 0, 128, 14) == 0 {
			t.Errorf("id %d: no title pixels", id)
		}
		if fb.Lit(render.ImageX, render.ImageY, render.ImageX+48, render.ImageY+48) == 0 {
			t.Errorf("id %d: frame drew nothing", id)
		}
	}
	if fb.Flushes() != 4 {
		t.Errorf("flushes = %d, want 4", fb.Flushes())
	}
}
