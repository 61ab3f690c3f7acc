package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chronos-inventory/chronos/internal/update"
	"github.com/chronos-inventory/chronos/internal/version"
)

func newUpdateHandler(manifestURL string) *UpdateHandler {
	checker := update.NewChecker(update.Config{ManifestURL: manifestURL}, slog.Default())
	return NewUpdateHandler(checker, slog.Default())
}

func TestUpdateCheckEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"latest_version": "99.0.0", "installer_url": "https://example.com/installer"}`)
	}))
	defer srv.Close()

	h := newUpdateHandler(srv.URL)
	rec := httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodGet, "/api/update/check", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		CurrentVersion  string `json:"current_version"`
		LatestVersion   string `json:"latest_version"`
		UpdateAvailable bool   `json:"update_available"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.CurrentVersion != version.Version {
		t.Errorf("current_version = %q, want %q", resp.CurrentVersion, version.Version)
	}
	if resp.LatestVersion != "99.0.0" || !resp.UpdateAvailable {
		t.Errorf("resp = %+v, want update available", resp)
	}
}

func TestUpdateCheckManifestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	h := newUpdateHandler(srv.URL)
	rec := httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodGet, "/api/update/check", nil))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestUpdateDownloadNothingAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"latest_version": "0.0.1", "installer_url": "https://example.com/installer"}`)
	}))
	defer srv.Close()

	h := newUpdateHandler(srv.URL)
	rec := httptest.NewRecorder()
	h.Download(rec, httptest.NewRequest(http.MethodPost, "/api/update/download", nil))

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}
