package config

import (
	"testing"
	"time"
)

func TestNewConfig_DefaultsAndOverrides(t *testing.T) {
	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.BaseURL == "" || cfg.WatchInterval <= 0 {
		t.Fatalf("missing defaults: %+v", cfg)
	}
	if cfg.IsProduction() {
		t.Fatalf("default environment must not be production")
	}

	t.Setenv("LENSCART_BASE_URL", "https://shop.example.com/api")
	t.Setenv("LENSCART_WATCH_INTERVAL", "500ms")
	t.Setenv("LENSCART_ENV", "production")

	cfg, err = NewConfig()
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.BaseURL != "https://shop.example.com/api" {
		t.Fatalf("base url override ignored: %q", cfg.BaseURL)
	}
	if cfg.WatchInterval != 500*time.Millisecond {
		t.Fatalf("watch interval override ignored: %v", cfg.WatchInterval)
	}
	if !cfg.IsProduction() {
		t.Fatalf("environment override ignored")
	}
}
