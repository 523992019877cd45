package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"", zapcore.InfoLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{" warn ", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"trace", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v", tt.in, err)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	for _, dev := range []bool{false, true} {
		logger, err := New("warn", dev)
		if err != nil {
			t.Fatalf("New(dev=%v): %v", dev, err)
		}
		if logger.Core().Enabled(zapcore.InfoLevel) {
			t.Errorf("dev=%v: info should be disabled at warn", dev)
		}
		if !logger.Core().Enabled(zapcore.ErrorLevel) {
			t.Errorf("dev=%v: error should be enabled at warn", dev)
		}
	}

	if _, err := New("loud", false); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestForCommand(t *testing.T) {
	logger, err := ForCommand("pipeline", "info", false)
	if err != nil {
		t.Fatalf("ForCommand: %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger")
	}
}
