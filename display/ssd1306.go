//go:build tinygo

package display

import (
	"fmt"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/ssd1306"
)

// NewSSD1306 configures a 128x64 SSD1306 on bus and pushes a blank frame to
// check the panel answers. A nil error means the panel is ready to draw.
func NewSSD1306(bus drivers.I2C, addr uint16) (*ssd1306.Device, error) {
	if addr == 0 {
		addr = Address
	}
	dev := ssd1306.NewI2C(bus)
	dev.Configure(ssd1306.Config{
		Address: addr,
		Width:   Width,
		Height:  Height,
	})
	dev.ClearBuffer()
	if err := dev.Display(); err != nil {
		return nil, fmt.Errorf("ssd1306 at 0x%02x: %w", addr, err)
	}
	return dev, nil
}
