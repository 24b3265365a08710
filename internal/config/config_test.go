package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

// isolate points the config search path at an empty directory
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	s, _, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if s.Source.Kind != "volumio" {
		t.Errorf("source.kind: expected volumio, got %s", s.Source.Kind)
	}
	if s.Display.Driver != "gpio" {
		t.Errorf("display.driver: expected gpio, got %s", s.Display.Driver)
	}
	if s.Display.ScrollInterval != 500*time.Millisecond {
		t.Errorf("display.scroll_interval: expected 500ms, got %v", s.Display.ScrollInterval)
	}
	if s.Display.GPIO.RS != 7 || s.Display.GPIO.E != 8 {
		t.Errorf("display.gpio: expected rs=7 e=8, got rs=%d e=%d", s.Display.GPIO.RS, s.Display.GPIO.E)
	}
	if len(s.Display.GPIO.Data) != 4 || s.Display.GPIO.Data[0] != 25 || s.Display.GPIO.Data[3] != 27 {
		t.Errorf("display.gpio.data: unexpected %v", s.Display.GPIO.Data)
	}
	if s.Power.SoftShutdown != 4 || s.Power.ShutdownButton != 17 || s.Power.BootOK != 22 {
		t.Errorf("power pins: unexpected %+v", s.Power)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("RASPDAC_DISPLAY_DRIVER", "console")
	t.Setenv("RASPDAC_SOURCE_KIND", "mpris")
	t.Setenv("RASPDAC_POWER_SHUTDOWN_BUTTON", "0")
	t.Setenv("RASPDAC_DISPLAY_SCROLL_INTERVAL", "250ms")

	s, _, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if s.Display.Driver != "console" {
		t.Errorf("expected console driver, got %s", s.Display.Driver)
	}
	if s.Source.Kind != "mpris" {
		t.Errorf("expected mpris source, got %s", s.Source.Kind)
	}
	if s.Power.ShutdownButton != 0 {
		t.Errorf("expected shutdown button disabled, got %d", s.Power.ShutdownButton)
	}
	if s.Display.ScrollInterval != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", s.Display.ScrollInterval)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := isolate(t)
	if err := os.MkdirAll(filepath.Join(dir, "raspdac"), 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := []byte("volumio:\n  url: http://volumio.local\ndisplay:\n  driver: i2c\n  i2c:\n    address: 63\n")
	if err := os.WriteFile(filepath.Join(dir, "raspdac", "config.yaml"), yaml, 0o644); err != nil {
		t.Fatal(err)
	}

	s, file, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if file == "" {
		t.Error("expected config file to be reported")
	}
	if s.Volumio.URL != "http://volumio.local" {
		t.Errorf("volumio.url: got %s", s.Volumio.URL)
	}
	if s.Display.Driver != "i2c" || s.Display.I2C.Address != 0x3F {
		t.Errorf("display: got driver=%s address=%#x", s.Display.Driver, s.Display.I2C.Address)
	}
	// Untouched keys keep their defaults
	if s.Display.Cols != 16 {
		t.Errorf("display.cols: expected 16, got %d", s.Display.Cols)
	}
}

func TestAppConfig_Getters(t *testing.T) {
	isolate(t)
	t.Setenv("RASPDAC_CONTROL_ADDR", "")

	cfg, err := NewAppConfig(zap.NewNop())
	if err != nil {
		t.Fatalf("NewAppConfig() failed: %v", err)
	}
	if cfg.GetSourceKind() != "volumio" {
		t.Errorf("GetSourceKind: got %s", cfg.GetSourceKind())
	}
	if cfg.GetScrollInterval() != 500*time.Millisecond {
		t.Errorf("GetScrollInterval: got %v", cfg.GetScrollInterval())
	}
	if cfg.GetControlAddr() != "" {
		t.Errorf("GetControlAddr: expected disabled, got %q", cfg.GetControlAddr())
	}
	if cfg.GetDisplayWidth() != 16 {
		t.Errorf("GetDisplayWidth: expected 16, got %d", cfg.GetDisplayWidth())
	}
}

func TestAppConfig_DisplayWidth(t *testing.T) {
	isolate(t)
	t.Setenv("RASPDAC_DISPLAY_COLS", "20")

	cfg, err := NewAppConfig(zap.NewNop())
	if err != nil {
		t.Fatalf("NewAppConfig() failed: %v", err)
	}
	if cfg.GetDisplayWidth() != 20 {
		t.Errorf("GetDisplayWidth: expected 20, got %d", cfg.GetDisplayWidth())
	}

	cfg.settings.Display.Cols = 0
	if cfg.GetDisplayWidth() != 16 {
		t.Errorf("GetDisplayWidth: expected the 16 column default, got %d", cfg.GetDisplayWidth())
	}
}
