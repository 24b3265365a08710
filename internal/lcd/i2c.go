package lcd

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"tinygo.org/x/drivers/hd44780i2c"
)

// I2CDisplay is an HD44780 behind a PCF8574 backpack.
// The tinygo driver only needs Tx, which a periph bus already provides.
type I2CDisplay struct {
	bus i2c.BusCloser
	dev hd44780i2c.Device
}

// OpenI2C opens the named bus ("" picks the first one) and configures the
// display at addr
func OpenI2C(busName string, addr uint8, cols, rows int) (*I2CDisplay, error) {
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open i2c bus %q: %w", busName, err)
	}

	dev := hd44780i2c.New(bus, addr)
	dev.Configure(hd44780i2c.Config{
		Width:  uint8(cols),
		Height: uint8(rows),
	})

	return &I2CDisplay{bus: bus, dev: dev}, nil
}

// SetCursor moves to a 0-based column and row
func (d *I2CDisplay) SetCursor(col, row int) error {
	d.dev.SetCursor(uint8(col), uint8(row))
	return nil
}

// Print writes text at the cursor
func (d *I2CDisplay) Print(text string) error {
	d.dev.Print([]byte(text))
	return nil
}

// Clear blanks the display
func (d *I2CDisplay) Clear() error {
	d.dev.ClearDisplay()
	return nil
}

// Close turns the backlight off and releases the bus
func (d *I2CDisplay) Close() error {
	d.dev.ClearDisplay()
	d.dev.BacklightOn(false)
	return d.bus.Close()
}
