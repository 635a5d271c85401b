package polygon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadDay(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("gzip-payload"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := NewClient(srv.URL, "test-key", dir)

	ok, err := c.DownloadDay(context.Background(), time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/2022/01/2022-01-03.csv.gz", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)

	data, err := os.ReadFile(filepath.Join(dir, "2022-01-03.csv.gz"))
	require.NoError(t, err)
	assert.Equal(t, "gzip-payload", string(data))
}

func TestDownloadDay_ExistingFileSkipsNetwork(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2022-01-03.csv.gz"), []byte("cached"), 0o644))

	c := NewClient(srv.URL, "", dir)
	ok, err := c.DownloadDay(context.Background(), time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, calls)
}

func TestDownloadDay_NotFoundIsNormal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", t.TempDir())
	ok, err := c.DownloadDay(context.Background(), time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDownloadDay_ClientErrorFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad-key", t.TempDir())
	_, err := c.DownloadDay(context.Background(), time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err)
}

func TestDownloadRange_SkipsWeekends(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", t.TempDir())
	// 2022-01-07 viernes .. 2022-01-10 lunes: el finde no se pide.
	n, err := c.DownloadRange(context.Background(),
		time.Date(2022, 1, 7, 0, 0, 0, 0, time.UTC),
		time.Date(2022, 1, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"/2022/01/2022-01-07.csv.gz", "/2022/01/2022-01-10.csv.gz"}, paths)
}
