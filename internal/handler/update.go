package handler

import (
	"log/slog"
	"net/http"

	"github.com/chronos-inventory/chronos/internal/update"
	"github.com/chronos-inventory/chronos/internal/version"
)

type UpdateHandler struct {
	checker *update.Checker
	logger  *slog.Logger
}

func NewUpdateHandler(checker *update.Checker, logger *slog.Logger) *UpdateHandler {
	return &UpdateHandler{checker: checker, logger: logger}
}

// Check reports whether a newer application version is published.
func (h *UpdateHandler) Check(w http.ResponseWriter, r *http.Request) {
	manifest, available, err := h.checker.Check(r.Context())
	if err != nil {
		h.logger.Error("update check", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"current_version":  version.Version,
		"latest_version":   manifest.LatestVersion,
		"update_available": available,
	})
}

// Download fetches the published installer into the temp directory. The
// caller is expected to take a pre-update snapshot before running it.
func (h *UpdateHandler) Download(w http.ResponseWriter, r *http.Request) {
	manifest, available, err := h.checker.Check(r.Context())
	if err != nil {
		h.logger.Error("update check", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	if !available {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "no update available"})
		return
	}

	path, err := h.checker.Download(r.Context(), manifest)
	if err != nil {
		h.logger.Error("installer download", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"version":        manifest.LatestVersion,
		"installer_path": path,
	})
}
