// Package database owns the SQLite connection and the schema migrations.
package database

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"pagelens/internal/config"
)

// WALManager is a connection source that can checkpoint its write-ahead log.
// The maintenance jobs accept it so tests can hand in an in-memory database.
type WALManager interface {
	cartridge.DBManager
	CheckpointWAL(mode string) error
}

// DBManager wraps cartridge's sqlite.Manager with pagelens migrations.
type DBManager struct {
	*sqlite.Manager
	path   string
	logger *slog.Logger
}

var _ WALManager = (*DBManager)(nil)

// NewDBManager creates a new database manager using cartridge's sqlite.Manager.
func NewDBManager(cfg *config.Config, logger *slog.Logger) *DBManager {
	path := cfg.GetDatabasePath()
	sqliteCfg := sqlite.Config{
		Path:         path,
		MaxOpenConns: cfg.GetMaxOpenConns(),
		MaxIdleConns: cfg.GetMaxIdleConns(),
		Logger:       logger,
		EnableWAL:    true,
		TxImmediate:  true,
		BusyTimeout:  5000,
	}

	return &DBManager{
		Manager: sqlite.NewManager(sqliteCfg),
		path:    path,
		logger:  logger,
	}
}

// Init creates the storage directory and opens the connection.
func (dm *DBManager) Init() error {
	if dir := filepath.Dir(dm.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	_, err := dm.Manager.Connect()
	return err
}

// MigrateDatabase auto-migrates the given models inside one transaction.
func (dm *DBManager) MigrateDatabase(models ...any) error {
	db := dm.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.AutoMigrate(models...)
	})
	if err != nil {
		dm.logger.Error("Failed to auto-migrate database", slog.Any("error", err))
		return err
	}

	if err := dm.CheckpointWAL("FULL"); err != nil {
		dm.logger.Warn("Failed to checkpoint WAL after migration", slog.Any("error", err))
	}

	dm.logger.Info("Database migration completed successfully")
	return nil
}

// CheckpointWAL checkpoints with one of PASSIVE, FULL, RESTART or TRUNCATE.
// SQLite treats unknown modes as PASSIVE, so they are rejected here.
func (dm *DBManager) CheckpointWAL(mode string) error {
	if err := ValidCheckpointMode(mode); err != nil {
		return err
	}
	return dm.Manager.CheckpointWAL(mode)
}

// ValidCheckpointMode rejects anything but the four SQLite checkpoint modes.
func ValidCheckpointMode(mode string) error {
	switch mode {
	case "PASSIVE", "FULL", "RESTART", "TRUNCATE":
		return nil
	default:
		return fmt.Errorf("invalid checkpoint mode: %s", mode)
	}
}
