package jobs

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pagelens/internal/config"
	"pagelens/internal/pkg/geoip"
)

const (
	// GeoLite database is updated weekly by MaxMind
	GeoLiteUpdateInterval = 7 * 24 * time.Hour
	// MaxMind download URL template
	MaxMindDownloadURL = "https://download.maxmind.com/app/geoip_download?edition_id=GeoLite2-City&license_key=%s&suffix=tar.gz"

	defaultGeoDBPath = "storage/GeoLite2-City.mmdb"
)

// GeoLiteUpdaterJob keeps the GeoLite2 City database fresh. The file's
// modification time is the last update.
type GeoLiteUpdaterJob struct {
	path        string
	licenseKey  string
	downloadURL string
	client      *http.Client
	now         func() time.Time
	logger      *slog.Logger
}

func NewGeoLiteUpdaterJob(cfg *config.Config, logger *slog.Logger) *GeoLiteUpdaterJob {
	path := cfg.GeoDBPath
	if path == "" {
		path = defaultGeoDBPath
	}
	return &GeoLiteUpdaterJob{
		path:        path,
		licenseKey:  cfg.MaxMindLicenseKey,
		downloadURL: MaxMindDownloadURL,
		client:      &http.Client{Timeout: 5 * time.Minute},
		now:         time.Now,
		logger:      logger,
	}
}

// Run downloads a new database when a license key is set and the current
// file is missing or older than GeoLiteUpdateInterval.
func (j *GeoLiteUpdaterJob) Run(ctx context.Context) error {
	if j.licenseKey == "" {
		j.logger.Debug("MaxMind license key not configured, skipping GeoLite update")
		return nil
	}

	lastUpdate := j.lastUpdate()
	if age := j.now().Sub(lastUpdate); age < GeoLiteUpdateInterval {
		j.logger.Debug("GeoLite database is up to date",
			slog.Time("last_update", lastUpdate),
			slog.Duration("age", age))
		return nil
	}

	j.logger.Info("Starting GeoLite database update", slog.Time("last_update", lastUpdate))
	return j.Update(ctx)
}

// Update downloads the database now, whatever the age of the current file.
func (j *GeoLiteUpdaterJob) Update(ctx context.Context) error {
	if j.licenseKey == "" {
		return errors.New("update GeoLite database: MaxMind license key not configured")
	}
	if err := j.downloadAndUpdate(ctx); err != nil {
		return fmt.Errorf("update GeoLite database: %w", err)
	}

	// New events resolve against the fresh file right away.
	geoip.ReloadGeoDB()

	j.logger.Info("GeoLite database updated successfully", slog.String("path", j.path))
	return nil
}

func (j *GeoLiteUpdaterJob) lastUpdate() time.Time {
	info, err := os.Stat(j.path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func (j *GeoLiteUpdaterJob) downloadAndUpdate(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(j.downloadURL, j.licenseKey), nil)
	if err != nil {
		return err
	}
	resp, err := j.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download GeoLite database: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	// Extract next to the target and rename, so readers never see a
	// partially written database.
	tmp, err := os.CreateTemp(filepath.Dir(j.path), ".geolite-*.mmdb")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := extractMMDB(resp.Body, tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to extract database: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), j.path)
}

// extractMMDB copies the first .mmdb entry of a tar.gz stream into dst.
func extractMMDB(r io.Reader, dst io.Writer) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}

		if header.Typeflag == tar.TypeReg && strings.HasSuffix(header.Name, ".mmdb") {
			if _, err := io.Copy(dst, tr); err != nil {
				return fmt.Errorf("failed to extract file: %w", err)
			}
			return nil
		}
	}

	return errors.New("no .mmdb file found in archive")
}
