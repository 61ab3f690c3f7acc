package handler

import (
	"encoding/json"
	"net/http"

	"github.com/chronos-inventory/chronos/internal/backup"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorStatus maps an engine error kind to an HTTP status.
func errorStatus(err error) int {
	kind, ok := backup.ErrKind(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case backup.KindNotFound, backup.KindNoPreUpdateSnapshot:
		return http.StatusNotFound
	case backup.KindInvalidBackup:
		return http.StatusBadRequest
	case backup.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	case backup.KindConcurrentOperation:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errorStatus(err), map[string]string{"error": err.Error()})
}
