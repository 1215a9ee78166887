//go:build tinygo

package main

import "machine"

// GPIO pin assignments
const (
	pinStatusLED = machine.GP15
	pinI2CSDA    = machine.GP0
	pinI2CSCL    = machine.GP1
)

// Buttons, in command order: the first sends 1.
var buttonPins = [...]machine.Pin{machine.GP14, machine.GP13, machine.GP12, machine.GP11}

// initStatusLED configures the external status LED and returns its driver.
func initStatusLED() *indicator {
	pinStatusLED.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return newIndicator(pinStatusLED.Set)
}

// initButtons configures the button inputs with pull-ups.
func initButtons() []machine.Pin {
	for _, p := range buttonPins {
		p.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	}
	return buttonPins[:]
}
