package polygon

// client.go — descarga de flat files diarios de agregados de opciones.
// El endpoint sirve archivos {YYYY}/{MM}/{YYYY-MM-DD}.csv.gz; el cliente
// los deja en el directorio del archivo local con el nombre plano
// {YYYY-MM-DD}.csv.gz que espera el lector.

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://files.polygon.io/flatfiles/us_options_opra/day_aggs_v1"

	// Flat files son archivos grandes; un request cada 2s es suficiente
	// y queda muy por debajo de cualquier límite del proveedor.
	downloadsPerSec = 0.5

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client descarga flat files con rate limiting y retries.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	destDir string
	limiter *rate.Limiter
}

// NewClient crea un Client que descarga al directorio dado.
// Si baseURL está vacío usa el endpoint de producción; si apiKey está
// vacío lee POLYGON_API_KEY del entorno.
func NewClient(baseURL, apiKey, destDir string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if apiKey == "" {
		apiKey = os.Getenv("POLYGON_API_KEY")
	}
	return &Client{
		http:    &http.Client{Timeout: 5 * time.Minute},
		baseURL: baseURL,
		apiKey:  apiKey,
		destDir: destDir,
		limiter: rate.NewLimiter(downloadsPerSec, 1),
	}
}

// DownloadDay descarga el flat file de una fecha. Idempotente: si el
// archivo local ya existe no toca la red. Un 404 es un resultado normal
// (festivo, día sin datos): devuelve false sin error.
func (c *Client) DownloadDay(ctx context.Context, date time.Time) (bool, error) {
	dateStr := date.Format("2006-01-02")
	dest := filepath.Join(c.destDir, dateStr+".csv.gz")

	if _, err := os.Stat(dest); err == nil {
		return true, nil
	}

	url := fmt.Sprintf("%s/%s/%s/%s.csv.gz",
		c.baseURL, date.Format("2006"), date.Format("01"), dateStr)

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return false, fmt.Errorf("polygon.DownloadDay: rate limiter: %w", err)
		}

		ok, retryable, err := c.fetch(ctx, url, dest)
		if err == nil {
			return ok, nil
		}
		if !retryable || attempt == maxRetries {
			return false, fmt.Errorf("polygon.DownloadDay: %s: %w", dateStr, err)
		}

		slog.Warn("polygon: download failed, retrying", "date", dateStr, "attempt", attempt+1, "err", err)
		c.sleep(ctx, attempt)
	}
	return false, fmt.Errorf("polygon.DownloadDay: %s: exhausted %d retries", dateStr, maxRetries)
}

// DownloadRange descarga [start, end] saltando fines de semana.
// Devuelve cuántos archivos quedaron disponibles localmente.
func (c *Client) DownloadRange(ctx context.Context, start, end time.Time) (int, error) {
	downloaded := 0
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		ok, err := c.DownloadDay(ctx, day)
		if err != nil {
			return downloaded, err
		}
		if ok {
			downloaded++
		}
	}
	slog.Info("polygon: download range complete",
		"start", start.Format("2006-01-02"),
		"end", end.Format("2006-01-02"),
		"files", downloaded,
	)
	return downloaded, nil
}

// fetch hace un único intento de descarga a un archivo temporal y lo
// renombra al destino solo si se completó entero.
func (c *Client) fetch(ctx context.Context, url, dest string) (ok, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, false, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return false, true, fmt.Errorf("status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, false, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return false, false, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return false, false, err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return false, true, fmt.Errorf("copy body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, false, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return false, false, err
	}

	slog.Debug("polygon: downloaded flat file", "dest", dest)
	return true, false, nil
}

// sleep espera con backoff exponencial y jitter, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	wait += time.Duration(rand.Int63n(int64(baseRetryWait)))
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}
