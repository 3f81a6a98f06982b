package database_test

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/karloscodes/cartridge/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"pagelens/internal/config"
	"pagelens/internal/database"
)

type widget struct {
	ID    uint `gorm:"primaryKey"`
	Name  string
	Count int
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newManager(t *testing.T) (*database.DBManager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "test.db")
	cfg := &config.Config{
		AppName:      "pagelens",
		Environment:  config.Test,
		DatabaseName: path,
	}

	dm := database.NewDBManager(cfg, discardLogger())
	require.NoError(t, dm.Init())
	t.Cleanup(func() { _ = dm.Close() })
	return dm, path
}

func TestInitCreatesStorageDirectory(t *testing.T) {
	_, path := newManager(t)

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestInitEnablesWAL(t *testing.T) {
	dm, _ := newManager(t)

	var mode string
	require.NoError(t, dm.GetConnection().Raw("PRAGMA journal_mode").Scan(&mode).Error)
	assert.Equal(t, "wal", mode)
}

func TestMigrateAndWrite(t *testing.T) {
	dm, _ := newManager(t)
	require.NoError(t, dm.MigrateDatabase(&widget{}))

	err := sqlite.PerformWrite(discardLogger(), dm.GetConnection(), func(tx *gorm.DB) error {
		return tx.Create(&widget{Name: "a", Count: 1}).Error
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, dm.GetConnection().Model(&widget{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPerformWriteRollsBackOnError(t *testing.T) {
	dm, _ := newManager(t)
	require.NoError(t, dm.MigrateDatabase(&widget{}))

	boom := errors.New("boom")
	err := sqlite.PerformWrite(discardLogger(), dm.GetConnection(), func(tx *gorm.DB) error {
		if err := tx.Create(&widget{Name: "b"}).Error; err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, dm.GetConnection().Model(&widget{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCheckpointWALRejectsUnknownMode(t *testing.T) {
	dm, _ := newManager(t)
	assert.Error(t, dm.CheckpointWAL("SOMETIMES"))
	assert.NoError(t, dm.CheckpointWAL("PASSIVE"))
}

func TestMigrateWithoutConnection(t *testing.T) {
	dm, _ := newManager(t)
	require.NoError(t, dm.Close())

	// Closing resets the manager, the next call reconnects.
	require.NoError(t, dm.MigrateDatabase(&widget{}))
}
