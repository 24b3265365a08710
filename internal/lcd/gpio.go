package lcd

import (
	"fmt"

	"github.com/genricoloni/raspdac/internal/config"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/hd44780"
)

// GPIODisplay is an HD44780 wired in 4-bit mode to the Pi header
type GPIODisplay struct {
	dev *hd44780.Dev
}

// OpenGPIO binds the RS, E and D4-D7 pins (BCM numbers) and resets the controller
func OpenGPIO(pins config.GPIOPins) (*GPIODisplay, error) {
	if len(pins.Data) != 4 {
		return nil, fmt.Errorf("expected 4 data pins, got %d", len(pins.Data))
	}

	rs, err := outPin(pins.RS)
	if err != nil {
		return nil, err
	}
	e, err := outPin(pins.E)
	if err != nil {
		return nil, err
	}
	data := make([]gpio.PinOut, 0, len(pins.Data))
	for _, n := range pins.Data {
		p, err := outPin(n)
		if err != nil {
			return nil, err
		}
		data = append(data, p)
	}

	dev, err := hd44780.New(data, rs, e)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise hd44780: %w", err)
	}
	return &GPIODisplay{dev: dev}, nil
}

func outPin(n int) (gpio.PinOut, error) {
	name := fmt.Sprintf("GPIO%d", n)
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio pin %s not found", name)
	}
	return p, nil
}

// SetCursor moves to a 0-based column and row
func (d *GPIODisplay) SetCursor(col, row int) error {
	return d.dev.SetCursor(uint8(row), uint8(col))
}

// Print writes text at the cursor
func (d *GPIODisplay) Print(text string) error {
	return d.dev.Print(text)
}

// Clear blanks the display
func (d *GPIODisplay) Clear() error {
	return d.dev.Reset()
}

// Close blanks the display and stops driving it
func (d *GPIODisplay) Close() error {
	return d.dev.Halt()
}
