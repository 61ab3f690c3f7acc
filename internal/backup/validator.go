package backup

import (
	"fmt"
	"os"
	"strings"

	"github.com/chronos-inventory/chronos/internal/database"
)

// Check is the outcome of an integrity validation. Integrity failure is a
// normal, reportable result, never an error.
type Check struct {
	OK     bool   `json:"ok"`
	Result string `json:"result"`
}

// CheckIntegrity opens the SQLite file at path read-only and runs the engine's
// native consistency check. A missing file, unreadable header, or structural
// corruption all come back as OK=false with a human-readable Result.
func CheckIntegrity(path string) Check {
	if _, err := os.Stat(path); err != nil {
		return Check{Result: "database file not found"}
	}

	db, err := database.OpenReadOnly(path)
	if err != nil {
		return Check{Result: fmt.Sprintf("open failed: %v", err)}
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return Check{Result: fmt.Sprintf("integrity check failed: %v", err)}
	}

	return Check{OK: strings.EqualFold(result, "ok"), Result: result}
}
