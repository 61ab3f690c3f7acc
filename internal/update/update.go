package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/chronos-inventory/chronos/internal/version"
)

// Manifest is the published update descriptor.
type Manifest struct {
	LatestVersion string `json:"latest_version"`
	InstallerURL  string `json:"installer_url"`
}

// Config holds update checker configuration.
type Config struct {
	ManifestURL string
	Timeout     time.Duration
}

// Checker talks to the update manifest endpoint. It only implements the
// protocol around an update: checking, downloading, and coordinating with the
// pre-update safety net. Installing is the external updater's job.
type Checker struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

func NewChecker(cfg Config, logger *slog.Logger) *Checker {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Checker{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Check fetches the manifest and reports whether a newer version is
// available. Transient fetch failures are retried with backoff.
func (c *Checker) Check(ctx context.Context) (*Manifest, bool, error) {
	if c.cfg.ManifestURL == "" {
		return nil, false, fmt.Errorf("update manifest URL not configured")
	}

	// Cache busting: the manifest sits behind aggressive CDN caching.
	url := fmt.Sprintf("%s?t=%d", c.cfg.ManifestURL, time.Now().Unix())

	var manifest Manifest
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("manifest fetch: status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("manifest fetch: status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&manifest)
	})
	if err != nil {
		return nil, false, fmt.Errorf("check for updates: %w", err)
	}

	newer := CompareVersions(manifest.LatestVersion, version.Version) > 0
	c.logger.Info("update check", "current", version.Version, "latest", manifest.LatestVersion, "available", newer)
	return &manifest, newer, nil
}

// Download streams the installer for the given manifest into the temp
// directory and returns its path. A stale partial download is removed first.
func (c *Checker) Download(ctx context.Context, manifest *Manifest) (string, error) {
	if manifest.InstallerURL == "" {
		return "", fmt.Errorf("manifest has no installer URL")
	}

	dest := filepath.Join(os.TempDir(), fmt.Sprintf("chronos_update_v%s.bin", manifest.LatestVersion))
	os.Remove(dest)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifest.InstallerURL, nil)
	if err != nil {
		return "", fmt.Errorf("download installer: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download installer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download installer: status %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create installer file: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(dest)
		return "", fmt.Errorf("write installer: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("close installer file: %w", err)
	}

	c.logger.Info("installer downloaded", "version", manifest.LatestVersion, "path", dest)
	return dest, nil
}

// CompareVersions compares dotted numeric versions, returning -1, 0, or 1.
// Non-numeric segments count as zero.
func CompareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var an, bn int
		if i < len(as) {
			an, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bn, _ = strconv.Atoi(bs[i])
		}
		if an != bn {
			if an < bn {
				return -1
			}
			return 1
		}
	}
	return 0
}
