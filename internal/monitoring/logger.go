package monitoring

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig represents logging configuration
type LogConfig struct {
	Level      string `json:"level" mapstructure:"level"`               // debug, info, warn, error
	Format     string `json:"format" mapstructure:"format"`             // json, console
	Output     string `json:"output" mapstructure:"output"`             // file, stderr, both
	FilePath   string `json:"file_path" mapstructure:"file_path"`       // log file path
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`   // max size in MB before rotation
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`   // max number of old log files
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"` // max age in days
	Compress   bool   `json:"compress" mapstructure:"compress"`         // compress rotated files
}

// DefaultLogConfig returns default logging configuration
func DefaultLogConfig(dataDir string) *LogConfig {
	return &LogConfig{
		Level:      "info",
		Format:     "json",
		Output:     "file",
		FilePath:   filepath.Join(dataDir, "logs", "mfutil.log"),
		MaxSizeMB:  20,
		MaxBackups: 3,
		MaxAgeDays: 30,
		Compress:   true,
	}
}

// NewLogger creates a new Zap logger with the given configuration.
// Console output goes to stderr; stdout is reserved for the progress protocol.
func NewLogger(cfg *LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	var writers []zapcore.WriteSyncer

	if cfg.Output == "file" || cfg.Output == "both" {
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("log file path is required for output %q", cfg.Output)
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		writers = append(writers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}))
	}

	if cfg.Output == "stderr" || cfg.Output == "both" {
		writers = append(writers, zapcore.Lock(os.Stderr))
	}

	if len(writers) == 0 {
		return nil, fmt.Errorf("invalid log output: %s", cfg.Output)
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(writers...), level)

	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// ImportLogger scopes a logger to a single disc import.
func ImportLogger(logger *zap.Logger, importID, device string) *zap.Logger {
	return OrNop(logger).With(
		zap.String("import_id", importID),
		zap.String("device", device),
	)
}

// OrNop returns logger, or a no-op logger when it is nil.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
