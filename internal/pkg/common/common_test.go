package common

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestCustomError(t *testing.T) {
	cause := errors.New("decoder exploded")
	err := ErrCompressionFailed.WithError(cause)

	if !errors.Is(err, ErrCompressionFailed) {
		t.Error("Copy should match the predefined error")
	}
	if errors.Is(err, ErrNoImage) {
		t.Error("Different codes must not match")
	}
	if !errors.Is(err, cause) {
		t.Error("Cause should be reachable through Unwrap")
	}
	if ErrCompressionFailed.Err != nil {
		t.Error("WithError must not mutate the predefined error")
	}

	resp := err.Response(false)
	if resp.Code != "COMPRESSION_FAILED" || resp.Details != "" {
		t.Errorf("Unexpected response %+v", resp)
	}
	if resp := err.Response(true); resp.Details != "decoder exploded" {
		t.Errorf("Expected details in debug mode, got %q", resp.Details)
	}
}

func TestAsCustomError(t *testing.T) {
	wrapped := fmt.Errorf("upload: %w", ErrInvalidImageFormat)
	if ce := AsCustomError(wrapped); ce.Status != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", ce.Status)
	}

	ce := AsCustomError(errors.New("plain"))
	if ce.Code != ErrCodeInternalError || ce.Status != http.StatusInternalServerError {
		t.Errorf("Expected internal error, got %+v", ce)
	}
}

func TestRound2(t *testing.T) {
	tests := map[float64]float64{
		1.234:   1.23,
		12.5:    12.5,
		97.6562: 97.66,
		0:       0,
	}
	for in, want := range tests {
		if got := Round2(in); got != want {
			t.Errorf("Round2(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestFilterFields(t *testing.T) {
	fields := []zap.Field{
		zap.String("name", "photo.png"),
		zap.Binary("image", []byte{1, 2}),
		zap.String("image_data", "..."),
		zap.String("base64_payload", "..."),
		zap.Int("size", 10),
	}

	got := filterFields(fields)
	if len(got) != 2 || got[0].Key != "name" || got[1].Key != "size" {
		t.Errorf("Unexpected fields %+v", got)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != zapcore.DebugLevel || ParseLevel("nonsense") != zapcore.InfoLevel {
		t.Error("Unexpected level mapping")
	}
}

func TestInitLogger(t *testing.T) {
	dir := t.TempDir()
	prev := Logger
	t.Cleanup(func() { Logger = prev })

	if err := InitLogger("debug", dir); err != nil {
		t.Fatalf("InitLogger failed: %v", err)
	}
	LogInfo("hello")
	Sync()

	if _, err := os.Stat(filepath.Join(dir, "app.log")); err != nil {
		t.Errorf("Expected log file: %v", err)
	}
}
