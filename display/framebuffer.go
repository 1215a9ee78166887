package display

import (
	"bufio"
	"image/color"
	"io"
)

// Framebuffer is an in-memory monochrome drivers.Displayer. When Out is set,
// Display draws the buffer to it using Unicode half blocks, two pixel rows
// per text line, which is how the simulator shows the panel in a terminal.
type Framebuffer struct {
	Out io.Writer

	w, h    int16
	pix     []bool
	flushes int
}

// NewFramebuffer returns a blank w x h framebuffer.
func NewFramebuffer(w, h int16) *Framebuffer {
	return &Framebuffer{w: w, h: h, pix: make([]bool, int(w)*int(h))}
}

// Size implements drivers.Displayer.
func (f *Framebuffer) Size() (x, y int16) { return f.w, f.h }

// SetPixel implements drivers.Displayer. Out-of-range pixels are ignored.
func (f *Framebuffer) SetPixel(x, y int16, c color.RGBA) {
	if x < 0 || y < 0 || x >= f.w || y >= f.h {
		return
	}
	f.pix[int(y)*int(f.w)+int(x)] = c.R != 0 || c.G != 0 || c.B != 0
}

// ClearBuffer blanks every pixel.
func (f *Framebuffer) ClearBuffer() {
	clear(f.pix)
}

// Pixel reports whether (x, y) is lit.
func (f *Framebuffer) Pixel(x, y int16) bool {
	if x < 0 || y < 0 || x >= f.w || y >= f.h {
		return false
	}
	return f.pix[int(y)*int(f.w)+int(x)]
}

// Lit returns the number of lit pixels inside the rectangle [x0,x1)x[y0,y1).
func (f *Framebuffer) Lit(x0, y0, x1, y1 int16) int {
	n := 0
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			if f.Pixel(x, y) {
				n++
			}
		}
	}
	return n
}

// Flushes returns how many times Display was called.
func (f *Framebuffer) Flushes() int { return f.flushes }

// Display implements drivers.Displayer.
func (f *Framebuffer) Display() error {
	f.flushes++
	if f.Out == nil {
		return nil
	}
	w := bufio.NewWriter(f.Out)
	w.WriteString("\x1b[H")
	for y := int16(0); y < f.h; y += 2 {
		for x := int16(0); x < f.w; x++ {
			top, bottom := f.Pixel(x, y), f.Pixel(x, y+1)
			switch {
			case top && bottom:
				w.WriteString("█")
			case top:
				w.WriteString("▀")
			case bottom:
				w.WriteString("▄")
			default:
				w.WriteByte(' ')
			}
		}
		w.WriteString("\r\n")
	}
	return w.Flush()
}
