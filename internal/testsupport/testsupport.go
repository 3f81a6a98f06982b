package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pagelens/internal/config"
	"pagelens/internal/database"
	"pagelens/internal/events"
	"pagelens/internal/pkg/geoip"
	"pagelens/internal/pkg/referrers"
	"pagelens/internal/targets"
)

// testDBCache caches test databases by root test name so subtests share
// the same database.
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager and adds WAL checkpoints so
// it can stand in for the real manager in maintenance jobs.
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager around db.
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{TestDBManager: ctestsupport.NewTestDBManager(db)}
}

var (
	_ cartridge.DBManager = (*TestDBManager)(nil)
	_ database.WALManager = (*TestDBManager)(nil)
)

// CheckpointWAL runs the checkpoint pragma on the test connection.
func (m *TestDBManager) CheckpointWAL(mode string) error {
	if err := database.ValidCheckpointMode(mode); err != nil {
		return err
	}
	return m.GetConnection().Exec("PRAGMA wal_checkpoint(" + mode + ")").Error
}

// AllModels lists every model the service migrates.
func AllModels() []any {
	return []any{
		&events.Event{},
		&targets.Business{},
	}
}

// SetupTestDB creates a named in-memory database with all models migrated.
// cache=shared lets every connection of the pool see the same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", rootName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	// One connection serializes concurrent writers instead of failing them
	// with shared-cache table locks.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(AllModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager wraps the test database in a TestDBManager. It refuses
// to run outside the test environment.
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	t.Helper()

	cfg := config.GetConfig()
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set PAGELENS_ENV=test", cfg.Environment)
	}

	logger := GetLogger()
	return NewTestDBManager(SetupTestDB(t)), logger
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tableNames {
			tx.Exec("DELETE FROM " + table)
		}
		return nil
	})
}

// GetLogger returns a test logger that only prints errors.
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreateTestBusiness registers a business with a zero view counter.
func CreateTestBusiness(t *testing.T, db *gorm.DB, id string) *targets.Business {
	t.Helper()
	business, err := targets.EnsureBusiness(db, id, "Business "+id)
	require.NoError(t, err)
	return business
}

// FixedClock is a timeframe.TimeProvider returning a fixed instant.
type FixedClock struct {
	Time time.Time
}

func (c *FixedClock) Now() time.Time { return c.Time }

// StaticResolver resolves addresses from a fixed table.
type StaticResolver map[string]geoip.Location

func (r StaticResolver) Lookup(ip string) geoip.Location {
	return r[ip]
}

// EventOption customizes an event built by NewEvent.
type EventOption func(*events.Event)

// NewEvent builds an anonymous view for target at the given instant.
func NewEvent(targetID string, at time.Time, opts ...EventOption) *events.Event {
	e := &events.Event{
		TargetID:        targetID,
		TargetType:      events.TargetBusiness,
		SessionID:       fmt.Sprintf("session-%d", at.UnixNano()),
		InteractionType: events.InteractionView,
		Device:          events.Device{Type: "desktop"},
		CreatedAt:       at,
	}
	e.Referral.Source = "direct"
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func WithTargetType(tt events.TargetType) EventOption {
	return func(e *events.Event) { e.TargetType = tt }
}

func WithInteraction(it events.InteractionType) EventOption {
	return func(e *events.Event) { e.InteractionType = it }
}

func WithViewer(id string) EventOption {
	return func(e *events.Event) { e.ViewerID = &id }
}

func WithSession(id string) EventOption {
	return func(e *events.Event) { e.SessionID = id }
}

func WithCountry(code, name string) EventOption {
	return func(e *events.Event) {
		e.Location.CountryCode = code
		e.Location.Country = name
	}
}

func WithCity(region, city string) EventOption {
	return func(e *events.Event) {
		e.Location.Region = region
		e.Location.City = city
	}
}

func WithDevice(deviceType string) EventOption {
	return func(e *events.Event) { e.Device.Type = deviceType }
}

func WithReferralSource(source string) EventOption {
	return func(e *events.Event) { e.Referral.Source = referrers.Source(source) }
}

// WithLink turns the event into a click carrying link data.
func WithLink(linkType, platform, url string, position int) EventOption {
	return func(e *events.Event) {
		e.InteractionType = events.InteractionClick
		e.LinkData = events.LinkData{Type: linkType, SocialPlatform: platform, URL: url, Position: &position}
	}
}

func WithScore(score float64) EventOption {
	return func(e *events.Event) { e.Metrics.EngagementScore = score }
}

func WithTimeOnPage(seconds float64) EventOption {
	return func(e *events.Event) { e.Metrics.TimeOnPageSeconds = &seconds }
}

func WithBounce() EventOption {
	return func(e *events.Event) { e.Metrics.Bounced = true }
}

// SeedEvents inserts events directly, bypassing enrichment. Timing is still
// derived by the model hook.
func SeedEvents(t *testing.T, db *gorm.DB, evs ...*events.Event) {
	t.Helper()
	for _, e := range evs {
		require.NoError(t, db.Create(e).Error)
	}
}
