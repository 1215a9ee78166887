// Package display adapts TinyGo pixel drivers to the drawing operations
// the renderer uses.
package display

import (
	"errors"
	"image"
	"image/color"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
)

// SSD1306 geometry and default I2C address.
const (
	Width   = 128
	Height  = 64
	Address = 0x3C
)

// Monochrome colours understood by the SSD1306 driver. Any non-zero RGB
// lights a pixel.
var (
	On  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Off = color.RGBA{A: 255}
)

// ErrOffscreen is returned when a draw falls entirely outside the panel.
var ErrOffscreen = errors.New("display: draw outside panel")

// bufferClearer is implemented by drivers that can blank their own
// framebuffer faster than pixel-by-pixel.
type bufferClearer interface {
	ClearBuffer()
}

// Panel draws text and images onto a drivers.Displayer.
type Panel struct {
	dev  drivers.Displayer
	font tinyfont.Fonter
	w, h int16
}

// NewPanel wraps dev using the proggy 8pt font for text.
func NewPanel(dev drivers.Displayer) *Panel {
	w, h := dev.Size()
	return &Panel{dev: dev, font: &proggy.TinySZ8pt7b, w: w, h: h}
}

// Clear blanks the framebuffer. Nothing is sent to the device until Flush.
func (p *Panel) Clear() error {
	if c, ok := p.dev.(bufferClearer); ok {
		c.ClearBuffer()
		return nil
	}
	for y := int16(0); y < p.h; y++ {
		for x := int16(0); x < p.w; x++ {
			p.dev.SetPixel(x, y, Off)
		}
	}
	return nil
}

// DrawText writes s with its baseline at y.
func (p *Panel) DrawText(s string, x, y int16) error {
	if x >= p.w || y < 0 {
		return ErrOffscreen
	}
	tinyfont.WriteLine(p.dev, p.font, x, y, s, On)
	return nil
}

// DrawImage copies img with its top-left corner at (x, y). Pixels are
// thresholded on luminance; anything clipped by the panel edge is skipped.
func (p *Panel) DrawImage(img image.Image, x, y int16) error {
	b := img.Bounds()
	if x >= p.w || y >= p.h || int(x)+b.Dx() <= 0 || int(y)+b.Dy() <= 0 {
		return ErrOffscreen
	}
	for sy := b.Min.Y; sy < b.Max.Y; sy++ {
		py := int(y) + sy - b.Min.Y
		if py < 0 || py >= int(p.h) {
			continue
		}
		for sx := b.Min.X; sx < b.Max.X; sx++ {
			px := int(x) + sx - b.Min.X
			if px < 0 || px >= int(p.w) {
				continue
			}
			c := Off
			if lit(img.At(sx, sy)) {
				c = On
			}
			p.dev.SetPixel(int16(px), int16(py), c)
		}
	}
	return nil
}

// Flush pushes the framebuffer to the device.
func (p *Panel) Flush() error {
	return p.dev.Display()
}

func lit(c color.Color) bool {
	return color.GrayModel.Convert(c).(color.Gray).Y >= 0x80
}
