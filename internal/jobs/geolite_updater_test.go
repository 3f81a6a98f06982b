package jobs

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagelens/internal/config"
	"pagelens/internal/testsupport"
)

func archive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gzw.Close())
	return buf.Bytes()
}

func newUpdater(t *testing.T, serverURL string) (*GeoLiteUpdaterJob, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "geo", "GeoLite2-City.mmdb")
	job := NewGeoLiteUpdaterJob(&config.Config{GeoDBPath: path, MaxMindLicenseKey: "secret"}, testsupport.GetLogger())
	job.downloadURL = serverURL + "/download?license_key=%s"
	return job, path
}

func TestGeoLiteUpdaterDownloadsMissingDatabase(t *testing.T) {
	payload := archive(t, map[string]string{
		"GeoLite2-City_20240312/COPYRIGHT.txt":      "copyright",
		"GeoLite2-City_20240312/GeoLite2-City.mmdb": "mmdb-bytes",
	})
	var licenseKey atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		licenseKey.Store(r.URL.Query().Get("license_key"))
		w.Write(payload)
	}))
	defer srv.Close()

	job, path := newUpdater(t, srv.URL)
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, "secret", licenseKey.Load())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mmdb-bytes", string(data))
}

func TestGeoLiteUpdaterSkipsFreshDatabase(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	job, path := newUpdater(t, srv.URL)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("current"), 0o644))

	require.NoError(t, job.Run(context.Background()))
	assert.Zero(t, hits.Load())

	// A week later the file is stale.
	job.now = func() time.Time { return time.Now().Add(GeoLiteUpdateInterval + time.Hour) }
	err := job.Run(context.Background())
	require.Error(t, err, "server answers with an empty body")
	assert.Equal(t, int32(1), hits.Load())

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "current", string(data), "a failed download keeps the old file")
}

func TestGeoLiteUpdaterWithoutLicenseKey(t *testing.T) {
	job := NewGeoLiteUpdaterJob(&config.Config{}, testsupport.GetLogger())
	assert.NoError(t, job.Run(context.Background()), "scheduled runs skip quietly")
	assert.Error(t, job.Update(context.Background()), "explicit updates report the missing key")
}

func TestGeoLiteUpdaterReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	job, _ := newUpdater(t, srv.URL)
	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status: 401")
}

func TestExtractMMDBWithoutDatabase(t *testing.T) {
	err := extractMMDB(bytes.NewReader(archive(t, map[string]string{"README": "nothing"})), &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no .mmdb file"))
}
