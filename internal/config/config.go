package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const envPrefix = "RASPDAC"

// GPIOPins holds the BCM numbers of a 4-bit parallel HD44780 wiring
type GPIOPins struct {
	RS   int   `mapstructure:"rs"`
	E    int   `mapstructure:"e"`
	Data []int `mapstructure:"data"`
}

// Settings mirrors the configuration file layout
type Settings struct {
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
	Source struct {
		Kind string `mapstructure:"kind"`
	} `mapstructure:"source"`
	Volumio struct {
		URL            string        `mapstructure:"url"`
		ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	} `mapstructure:"volumio"`
	MPRIS struct {
		Bus string `mapstructure:"bus"`
	} `mapstructure:"mpris"`
	Display struct {
		Driver         string        `mapstructure:"driver"`
		Cols           int           `mapstructure:"cols"`
		Rows           int           `mapstructure:"rows"`
		ScrollInterval time.Duration `mapstructure:"scroll_interval"`
		GPIO           GPIOPins      `mapstructure:"gpio"`
		I2C            struct {
			Bus     string `mapstructure:"bus"`
			Address int    `mapstructure:"address"`
		} `mapstructure:"i2c"`
	} `mapstructure:"display"`
	Power struct {
		SoftShutdown   int    `mapstructure:"soft_shutdown"`
		ShutdownButton int    `mapstructure:"shutdown_button"`
		BootOK         int    `mapstructure:"boot_ok"`
		Command        string `mapstructure:"command"`
	} `mapstructure:"power"`
	Control struct {
		Addr           string   `mapstructure:"addr"`
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"control"`
}

// AppConfig holds application configuration
type AppConfig struct {
	logger   *zap.Logger
	settings Settings
	file     string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("source.kind", "volumio")
	v.SetDefault("volumio.url", "http://localhost:3000")
	v.SetDefault("volumio.reconnect_delay", 5*time.Second)
	v.SetDefault("mpris.bus", "session")
	v.SetDefault("display.driver", "gpio")
	v.SetDefault("display.cols", 16)
	v.SetDefault("display.rows", 2)
	v.SetDefault("display.scroll_interval", 500*time.Millisecond)
	v.SetDefault("display.gpio.rs", 7)
	v.SetDefault("display.gpio.e", 8)
	v.SetDefault("display.gpio.data", []int{25, 24, 23, 27})
	v.SetDefault("display.i2c.bus", "")
	v.SetDefault("display.i2c.address", 0x27)
	// RaspDAC wiring; 0 disables a pin
	v.SetDefault("power.soft_shutdown", 4)
	v.SetDefault("power.shutdown_button", 17)
	v.SetDefault("power.boot_ok", 22)
	v.SetDefault("power.command", "auto")
	v.SetDefault("control.addr", "127.0.0.1:3050")
	v.SetDefault("control.allowed_origins", []string{})
}

// Load reads defaults, an optional config.yaml and RASPDAC_* environment variables
func Load() (Settings, string, error) {
	// A missing .env is the normal case outside development
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/raspdac")
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		v.AddConfigPath(filepath.Join(configHome, "raspdac"))
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "raspdac"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Settings{}, "", err
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, "", err
	}
	return s, v.ConfigFileUsed(), nil
}

// NewAppConfig creates a new application configuration instance
func NewAppConfig(logger *zap.Logger) (*AppConfig, error) {
	s, file, err := Load()
	if err != nil {
		return nil, err
	}

	logger.Info("Configuration loaded",
		zap.String("file", file),
		zap.String("source", s.Source.Kind),
		zap.String("driver", s.Display.Driver),
		zap.String("control", s.Control.Addr))

	return &AppConfig{logger: logger, settings: s, file: file}, nil
}

// Settings returns a copy of the loaded settings
func (c *AppConfig) Settings() Settings {
	return c.settings
}

// GetSourceKind returns the playback state source ("volumio" or "mpris")
func (c *AppConfig) GetSourceKind() string {
	return c.settings.Source.Kind
}

// GetDisplayWidth returns the number of LCD columns, 16 when unset
func (c *AppConfig) GetDisplayWidth() int {
	if c.settings.Display.Cols <= 0 {
		return 16
	}
	return c.settings.Display.Cols
}

// GetScrollInterval returns the redraw period of the scroll animation
func (c *AppConfig) GetScrollInterval() time.Duration {
	if c.settings.Display.ScrollInterval <= 0 {
		return 500 * time.Millisecond
	}
	return c.settings.Display.ScrollInterval
}

// GetControlAddr returns the control API listen address, empty when disabled
func (c *AppConfig) GetControlAddr() string {
	return c.settings.Control.Addr
}
