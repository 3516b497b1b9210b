package serial

import (
	"strings"
	"testing"
)

func TestOpenErrors(t *testing.T) {
	if _, err := Open(nil); err == nil {
		t.Error("nil config accepted")
	}
	cfg := DefaultConfig("/dev/vserprog-missing")
	_, err := Open(cfg)
	if err == nil {
		t.Fatal("missing device opened")
	}
	if !strings.Contains(err.Error(), "/dev/vserprog-missing") {
		t.Errorf("error does not name the device: %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/dev/ttyACM0")
	if cfg.Baud != DefaultBaud || cfg.ReadTimeout <= 0 {
		t.Errorf("config %+v", cfg)
	}
}
