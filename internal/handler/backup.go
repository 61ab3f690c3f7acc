package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/chronos-inventory/chronos/internal/backup"
	"github.com/chronos-inventory/chronos/internal/model"
	"github.com/chronos-inventory/chronos/internal/store"
	"github.com/chronos-inventory/chronos/internal/websocket"
)

type BackupHandler struct {
	repo     *backup.Repository
	engine   *backup.Engine
	tester   *backup.Tester
	safety   *backup.SafetyNet
	diag     *backup.Diagnostics
	settings *store.SettingsStore
	hub      *websocket.Hub
	logger   *slog.Logger
}

func NewBackupHandler(repo *backup.Repository, engine *backup.Engine, tester *backup.Tester, safety *backup.SafetyNet, diag *backup.Diagnostics, settings *store.SettingsStore, hub *websocket.Hub, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{
		repo:     repo,
		engine:   engine,
		tester:   tester,
		safety:   safety,
		diag:     diag,
		settings: settings,
		hub:      hub,
		logger:   logger,
	}
}

func (h *BackupHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

// Create takes a manual backup of the active database.
func (h *BackupHandler) Create(w http.ResponseWriter, r *http.Request) {
	artifact, err := h.repo.Create(r.Context(), backup.PrefixManual)
	if err != nil {
		h.logger.Error("create backup", "error", err)
		writeError(w, err)
		return
	}
	h.broadcast(websocket.NewMessage("backup", "created", map[string]any{"name": artifact.Name}))
	writeJSON(w, http.StatusCreated, artifact)
}

// List returns all backup artifacts, newest first.
func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	artifacts, err := h.repo.List()
	if err != nil {
		h.logger.Error("list backups", "error", err)
		writeError(w, err)
		return
	}
	if artifacts == nil {
		artifacts = []model.BackupArtifact{}
	}
	writeJSON(w, http.StatusOK, artifacts)
}

// Validate runs an integrity check against ?name= or, when absent, the
// active database.
func (h *BackupHandler) Validate(w http.ResponseWriter, r *http.Request) {
	check, err := h.repo.Validate(r.URL.Query().Get("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

type restoreRequest struct {
	BackupName string `json:"backup_name"`
}

// Restore replaces the active database with the named backup.
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.BackupName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "backup_name is required"})
		return
	}

	outcome, err := h.engine.Restore(r.Context(), req.BackupName)
	if err != nil {
		h.logger.Error("restore failed", "backup", req.BackupName, "error", err)
		resp := map[string]any{"error": err.Error()}
		if outcome != nil {
			// Rollback case: the outcome describes how the previous state
			// was recovered.
			resp["outcome"] = outcome
		}
		writeJSON(w, errorStatus(err), resp)
		return
	}

	h.broadcast(websocket.NewMessage("restore", "completed", map[string]any{"restored_from": outcome.RestoredFrom}))
	writeJSON(w, http.StatusOK, outcome)
}

type restoreTestRequest struct {
	BackupName string `json:"backup_name"`
}

// RestoreTest rehearses a restore in a sandbox without touching the active
// database. An empty body or empty backup_name targets the newest backup.
func (h *BackupHandler) RestoreTest(w http.ResponseWriter, r *http.Request) {
	var req restoreTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	outcome, err := h.tester.RestoreTest(req.BackupName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// GetAutoConfig returns the persisted scheduler configuration.
func (h *BackupHandler) GetAutoConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := backup.LoadAutoBackupConfig(h.settings)
	if err != nil {
		h.logger.Error("load auto-backup config", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type autoConfigRequest struct {
	Enabled       bool               `json:"enabled"`
	Hour          int                `json:"hour"`
	Minute        int                `json:"minute"`
	RetentionDays int                `json:"retention_days"`
	ScheduleMode  model.ScheduleMode `json:"schedule_mode"`
	Weekday       int                `json:"weekday"`
}

// UpdateAutoConfig validates and persists the scheduler configuration. The
// new settings take effect from the scheduler's next wake.
func (h *BackupHandler) UpdateAutoConfig(w http.ResponseWriter, r *http.Request) {
	var req autoConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	cfg := model.AutoBackupConfig{
		Enabled:       req.Enabled,
		Hour:          req.Hour,
		Minute:        req.Minute,
		RetentionDays: req.RetentionDays,
		ScheduleMode:  req.ScheduleMode,
		Weekday:       req.Weekday,
	}
	if err := backup.SaveAutoBackupConfig(h.settings, cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	updated, err := backup.LoadAutoBackupConfig(h.settings)
	if err != nil {
		writeError(w, err)
		return
	}
	h.broadcast(websocket.NewMessage("backup_config", "updated", nil))
	writeJSON(w, http.StatusOK, updated)
}

// PreUpdateSnapshot creates the reserved pre-update snapshot. The external
// updater calls this immediately before installing a new version.
func (h *BackupHandler) PreUpdateSnapshot(w http.ResponseWriter, r *http.Request) {
	artifact, err := h.safety.CreateSnapshot(r.Context())
	if err != nil {
		h.logger.Error("pre-update snapshot", "error", err)
		writeError(w, err)
		return
	}
	h.broadcast(websocket.NewMessage("backup", "created", map[string]any{"name": artifact.Name}))
	writeJSON(w, http.StatusCreated, artifact)
}

// RestorePreUpdate rolls the active database back to the most recent
// pre-update snapshot after a failed install.
func (h *BackupHandler) RestorePreUpdate(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.safety.RestoreSnapshot(r.Context())
	if err != nil {
		h.logger.Error("restore pre-update snapshot", "error", err)
		resp := map[string]any{"error": err.Error()}
		if outcome != nil {
			resp["outcome"] = outcome
		}
		writeJSON(w, errorStatus(err), resp)
		return
	}
	h.broadcast(websocket.NewMessage("restore", "completed", map[string]any{"restored_from": outcome.RestoredFrom}))
	writeJSON(w, http.StatusOK, outcome)
}

// Diagnostics streams a support archive with database state, backup
// inventory, and log tails.
func (h *BackupHandler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	filename, data, err := h.diag.Archive()
	if err != nil {
		h.logger.Error("build diagnostics archive", "error", err)
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
