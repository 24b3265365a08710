// Package lcd opens the character display the controller writes to.
package lcd

import (
	"fmt"
	"os"

	"github.com/genricoloni/raspdac/internal/config"
	"github.com/genricoloni/raspdac/internal/domain"
	"go.uber.org/zap"
	"periph.io/x/host/v3"
)

// Driver names accepted in display.driver
const (
	DriverGPIO    = "gpio"
	DriverI2C     = "i2c"
	DriverConsole = "console"
)

// Open initialises the configured LCD. A nil error means the device is
// ready and the controller may start writing to it.
func Open(logger *zap.Logger, s config.Settings) (domain.Display, error) {
	d := s.Display
	switch d.Driver {
	case DriverConsole:
		logger.Info("Using console LCD preview", zap.Int("cols", d.Cols), zap.Int("rows", d.Rows))
		return NewConsole(os.Stdout, d.Cols, d.Rows), nil

	case DriverGPIO:
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("failed to initialise periph host: %w", err)
		}
		dev, err := OpenGPIO(d.GPIO)
		if err != nil {
			return nil, err
		}
		logger.Info("HD44780 opened on GPIO",
			zap.Int("rs", d.GPIO.RS),
			zap.Int("e", d.GPIO.E),
			zap.Ints("data", d.GPIO.Data))
		return dev, nil

	case DriverI2C:
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("failed to initialise periph host: %w", err)
		}
		dev, err := OpenI2C(d.I2C.Bus, uint8(d.I2C.Address), d.Cols, d.Rows)
		if err != nil {
			return nil, err
		}
		logger.Info("HD44780 opened on I2C",
			zap.String("bus", d.I2C.Bus),
			zap.String("address", fmt.Sprintf("%#x", d.I2C.Address)))
		return dev, nil

	default:
		return nil, fmt.Errorf("unknown display driver %q", d.Driver)
	}
}
