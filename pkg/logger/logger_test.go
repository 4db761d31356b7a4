package logger

import (
	"io"
	"testing"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(LoggingConfig{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(LoggingConfig{Level: "info", Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestDerivedLoggersShareOutput(t *testing.T) {
	log, err := New(LoggingConfig{Level: "debug", Format: "json"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.SetOutput(io.Discard)

	derived := log.WithField("component", "test").WithFields(map[string]interface{}{"a": 1})
	derived.Debugf("quiet %d", 1)
	derived.WithError(io.EOF).Warn("quiet")
}

func TestNewDefaultCarriesServiceName(t *testing.T) {
	log := NewDefault("unit")
	if log == nil {
		t.Fatal("NewDefault returned nil")
	}
	log.SetOutput(io.Discard)
	log.Info("ok")
}
