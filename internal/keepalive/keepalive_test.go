package keepalive

import (
	"testing"

	"github.com/courtrace/agent/internal/model"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Interval <= 0 || cfg.TTL <= 0 {
		t.Fatalf("expected positive defaults, got %+v", cfg)
	}
}

func TestNewAppliesDefaultOnZeroInterval(t *testing.T) {
	l := New(Config{}, nil, nil, model.User{})
	if l.cfg.Interval != DefaultConfig().Interval {
		t.Fatalf("expected default interval applied, got %v", l.cfg.Interval)
	}
}
