package main

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mfutil/mfutil-go/internal/config"
	"github.com/mfutil/mfutil-go/internal/disc"
	"github.com/mfutil/mfutil-go/internal/monitoring"
	"github.com/mfutil/mfutil-go/internal/store"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string
	metricsFlag  *string
	jsonFlag     *bool

	// newDrive opens the platform CD drive; tests swap in a mock.
	newDrive func(cfg *config.Config) disc.Drive

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *zap.Logger

	db *sql.DB
}

func newCommandContext(configFlag, logLevelFlag, metricsFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
		metricsFlag:  metricsFlag,
		jsonFlag:     jsonFlag,
		newDrive:     paranoiaDrive,
	}
}

func paranoiaDrive(cfg *config.Config) disc.Drive {
	return disc.NewParanoiaDrive(disc.ParanoiaOptions{
		Mode:       cfg.Import.ParanoiaMode,
		MaxRetries: cfg.Import.SectorReadRetries,
	})
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && *c.logLevelFlag != "" {
			cfg.Logging.Level = *c.logLevelFlag
			if err := cfg.Validate(); err != nil {
				c.configErr = err
				return
			}
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// loggerValue builds the configured logger, or a no-op logger when that fails
// so a broken log directory never blocks an import.
func (c *commandContext) loggerValue() *zap.Logger {
	c.loggerOnce.Do(func() {
		c.logger = zap.NewNop()
		cfg, err := c.ensureConfig()
		if err != nil {
			return
		}
		logger, err := monitoring.NewLogger(&monitoring.LogConfig{
			Level:      cfg.Logging.Level,
			Format:     cfg.Logging.Format,
			Output:     cfg.Logging.Output,
			FilePath:   cfg.Logging.FilePath,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: logging disabled: %v\n", err)
			return
		}
		c.logger = logger.With(zap.String("version", version))
	})
	return c.logger
}

// openStore returns the history database, or nil when the store is disabled.
func (c *commandContext) openStore() (*sql.DB, error) {
	if c.db != nil {
		return c.db, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Store.Enabled {
		return nil, nil
	}
	db, err := store.OpenDB(cfg.Store.Path, store.Options{
		BusyTimeout: time.Duration(cfg.Store.BusyTimeout) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	c.db = db
	return db, nil
}

func (c *commandContext) JSONMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) metricsPath() string {
	if c.metricsFlag != nil && *c.metricsFlag != "" {
		return *c.metricsFlag
	}
	if c.config != nil {
		return c.config.Metrics.TextfilePath
	}
	return ""
}

// close flushes metrics and releases resources after a command ran.
func (c *commandContext) close() {
	if err := monitoring.WriteTextfile(c.metricsPath()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write metrics: %v\n", err)
	}
	if c.db != nil {
		c.db.Close()
		c.db = nil
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}
