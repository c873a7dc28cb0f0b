package monitoring

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "logs", "test.log")

	cfg := &LogConfig{
		Level:      "info",
		Format:     "json",
		Output:     "file",
		FilePath:   logPath,
		MaxSizeMB:  10,
		MaxBackups: 2,
		MaxAgeDays: 7,
	}

	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Info("track ripped", zap.Int("track", 3))
	logger.Sync()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Log file was not created: %v", err)
	}
	if !strings.Contains(string(data), `"track":3`) {
		t.Errorf("log file missing structured field: %s", data)
	}
}

func TestNewLoggerStderr(t *testing.T) {
	cfg := &LogConfig{
		Level:  "debug",
		Format: "console",
		Output: "stderr",
	}

	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("Failed to create console logger: %v", err)
	}
	defer logger.Sync()

	logger.Debug("debug message")
	logger.Warn("warn message")
}

func TestNewLoggerFileWithoutPath(t *testing.T) {
	_, err := NewLogger(&LogConfig{Level: "info", Format: "json", Output: "file"})
	if err == nil {
		t.Error("Expected error when file output has no path")
	}
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := NewLogger(&LogConfig{Level: "invalid", Format: "json", Output: "stderr"})
	if err == nil {
		t.Error("Expected error for invalid log level, got nil")
	}
}

func TestInvalidLogOutput(t *testing.T) {
	_, err := NewLogger(&LogConfig{Level: "info", Format: "json", Output: "syslog"})
	if err == nil {
		t.Error("Expected error for invalid log output, got nil")
	}
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig("/data")
	if cfg.FilePath != filepath.Join("/data", "logs", "mfutil.log") {
		t.Errorf("FilePath = %s", cfg.FilePath)
	}
	if cfg.Output != "file" {
		t.Errorf("Output = %s, want file", cfg.Output)
	}
}

func TestImportLoggerNil(t *testing.T) {
	logger := ImportLogger(nil, "abc", "/dev/sr0")
	if logger == nil {
		t.Fatal("ImportLogger returned nil")
	}
	logger.Info("no-op")
}
