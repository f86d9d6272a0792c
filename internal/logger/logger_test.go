package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func restoreDefault(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })
}

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{" INFO ", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseLevel(tc.input)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("Expected %v, but got %v", tc.want, got)
			}
		})
	}
}

func TestNewHandlerFiltersAndFormats(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, "json", slog.LevelInfo))

	log.Debug("debug message should be filtered")
	log.Info("card reviewed", "card_id", 7)

	output := buf.String()
	if strings.Contains(output, "debug message should be filtered") {
		t.Fatalf("debug message was logged at INFO level:\n%s", output)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(output)), &entry); err != nil {
		t.Fatalf("Expected a JSON log line, got %q: %v", output, err)
	}
	if entry["msg"] != "card reviewed" || entry["card_id"] != float64(7) {
		t.Errorf("Unexpected log entry %v", entry)
	}
}

func TestConfigureFile(t *testing.T) {
	restoreDefault(t)
	path := filepath.Join(t.TempDir(), "logs", "knolsched.log")

	closeFn, err := Configure(Options{Level: "debug", File: path})
	if err != nil {
		t.Fatalf("Configure() returned an unexpected error: %v", err)
	}
	slog.Debug("written to file")
	if err := closeFn(); err != nil {
		t.Fatalf("failed to close log file: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("Expected the debug line in the log file, got %q", data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	restoreDefault(t)
	closeFn, err := Configure(Options{Level: "loud"})
	if err == nil {
		t.Fatal("Expected an error for an invalid level")
	}
	defer closeFn()
	if !slog.Default().Enabled(context.Background(), slog.LevelInfo) || slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		t.Errorf("Expected the logger to fall back to info level")
	}
}
