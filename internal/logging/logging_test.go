package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vesaa/tsmreport/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNewWritesFile(t *testing.T) {
	for _, rotate := range []bool{false, true} {
		path := filepath.Join(t.TempDir(), "tsmreport.log")
		logger, closer, err := New(config.LogConfig{Level: "warn", Path: path, Rotate: rotate})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		logger.Info("hidden")
		logger.Warn("collector failed", "instance", "TSM1")
		if err := closer.Close(); err != nil {
			t.Fatal(err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		out := string(data)
		if strings.Contains(out, "hidden") {
			t.Errorf("rotate=%v: info line written at warn level", rotate)
		}
		if !strings.Contains(out, "instance=TSM1") {
			t.Errorf("rotate=%v: log file = %q", rotate, out)
		}
	}
}
