package geoip

import (
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// Location is the best-effort result of an IP lookup. Empty strings and nil
// pointers mean the field could not be resolved.
type Location struct {
	Country        string
	CountryCode    string
	Region         string
	City           string
	Timezone       string
	Latitude       *float64
	Longitude      *float64
	AccuracyRadius *int
}

// IsEmpty reports whether nothing was resolved.
func (l Location) IsEmpty() bool {
	return l.CountryCode == "" && l.Country == "" && l.City == "" && l.Latitude == nil
}

// Resolver resolves an IP address to a location. Implementations never fail:
// an unresolvable address yields an empty Location.
type Resolver interface {
	Lookup(ipAddress string) Location
}

var (
	geoDB  *geoip2.Reader
	dbPath string
	once   sync.Once
	mu     sync.RWMutex
	logger = slog.Default()
)

// Configure sets the database path and logger. It must be called before the
// first lookup; later calls only take effect after ReloadGeoDB.
func Configure(path string, l *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	dbPath = path
	if l != nil {
		logger = l
	}
}

// openGeoDB opens the GeoLite2 City database.
// Returns nil if the database is not configured or not found (GeoIP is optional).
func openGeoDB(path string) *geoip2.Reader {
	if path == "" {
		logger.Debug("GeoIP database path not configured - GeoIP features disabled")
		return nil
	}

	fileInfo, err := os.Stat(path)
	if os.IsNotExist(err) {
		logger.Info("GeoLite2 database not found - GeoIP features disabled",
			slog.String("path", path),
			slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		return nil
	} else if err != nil {
		logger.Warn("Error checking GeoLite2 database file",
			slog.String("path", path),
			slog.Any("error", err))
		return nil
	}

	db, err := geoip2.Open(path)
	if err != nil {
		logger.Error("Failed to open GeoLite2 database",
			slog.String("path", path),
			slog.Any("error", err))
		return nil
	}

	logger.Info("GeoLite2 database initialized successfully",
		slog.String("path", path),
		slog.Int64("size_bytes", fileInfo.Size()),
		slog.String("db_type", db.Metadata().DatabaseType))
	return db
}

// GetGeoDB returns the GeoLite2 database reader, opening it on first use.
func GetGeoDB() *geoip2.Reader {
	once.Do(func() {
		mu.Lock()
		geoDB = openGeoDB(dbPath)
		mu.Unlock()
	})
	mu.RLock()
	defer mu.RUnlock()
	return geoDB
}

// ReloadGeoDB reopens the database from disk. Call this after downloading a
// new database file.
func ReloadGeoDB() {
	once.Do(func() {})

	mu.Lock()
	defer mu.Unlock()

	if geoDB != nil {
		geoDB.Close()
	}
	geoDB = openGeoDB(dbPath)

	if geoDB != nil {
		logger.Info("GeoLite2 database reloaded successfully")
	}
}

// DBResolver resolves addresses against the shared GeoLite2 City reader.
type DBResolver struct{}

func (DBResolver) Lookup(ipAddress string) Location {
	return Lookup(ipAddress)
}

// Lookup resolves ipAddress using the shared reader. Private, loopback and
// malformed addresses resolve to an empty Location.
func Lookup(ipAddress string) Location {
	ip := net.ParseIP(ipAddress)
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return Location{}
	}

	db := GetGeoDB()
	if db == nil {
		return Location{}
	}

	record, err := db.City(ip)
	if err != nil {
		logger.Debug("Error looking up location for IP",
			slog.String("ip_address", ipAddress),
			slog.Any("error", err))
		return Location{}
	}

	return fromCity(record)
}

func fromCity(record *geoip2.City) Location {
	loc := Location{
		CountryCode: record.Country.IsoCode,
		Country:     record.Country.Names["en"],
		City:        record.City.Names["en"],
		Timezone:    record.Location.TimeZone,
	}
	if loc.CountryCode == "--" {
		loc.CountryCode = ""
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].Names["en"]
	}
	if record.Location.Latitude != 0 || record.Location.Longitude != 0 {
		lat, lon := record.Location.Latitude, record.Location.Longitude
		loc.Latitude = &lat
		loc.Longitude = &lon
	}
	if record.Location.AccuracyRadius > 0 {
		radius := int(record.Location.AccuracyRadius)
		loc.AccuracyRadius = &radius
	}
	return loc
}
