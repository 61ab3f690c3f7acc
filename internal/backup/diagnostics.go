package backup

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/chronos-inventory/chronos/internal/model"
	"github.com/chronos-inventory/chronos/internal/store"
	"github.com/chronos-inventory/chronos/internal/version"
)

const diagnosticsBackupLimit = 30

// Diagnostics assembles a support archive: a JSON summary of the database and
// backup state plus the tail of the server log.
type Diagnostics struct {
	repo     *Repository
	settings *store.SettingsStore
	logPath  string
}

func NewDiagnostics(repo *Repository, settings *store.SettingsStore, logPath string) *Diagnostics {
	return &Diagnostics{repo: repo, settings: settings, logPath: logPath}
}

type diagnosticsDatabase struct {
	Path            string `json:"path"`
	Exists          bool   `json:"exists"`
	IntegrityOK     bool   `json:"integrity_ok"`
	IntegrityResult string `json:"integrity_result"`
}

type diagnosticsSummary struct {
	GeneratedAt      string                 `json:"generated_at"`
	AppVersion       string                 `json:"app_version"`
	GoVersion        string                 `json:"go_version"`
	Platform         string                 `json:"platform"`
	Database         diagnosticsDatabase    `json:"database"`
	Backups          []model.BackupArtifact `json:"backups"`
	AutoBackupConfig model.AutoBackupConfig `json:"auto_backup_config"`
}

// Archive builds the diagnostics zip and returns its suggested filename and
// content.
func (d *Diagnostics) Archive() (string, []byte, error) {
	check, err := d.repo.Validate("")
	if err != nil {
		return "", nil, err
	}

	backups, err := d.repo.List()
	if err != nil {
		return "", nil, err
	}
	if len(backups) > diagnosticsBackupLimit {
		backups = backups[:diagnosticsBackupLimit]
	}

	cfg, err := LoadAutoBackupConfig(d.settings)
	if err != nil {
		return "", nil, err
	}

	activePath := d.repo.ActivePath()
	_, statErr := os.Stat(activePath)

	summary := diagnosticsSummary{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		AppVersion:  version.Version,
		GoVersion:   runtime.Version(),
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
		Database: diagnosticsDatabase{
			Path:            activePath,
			Exists:          statErr == nil,
			IntegrityOK:     check.OK,
			IntegrityResult: check.Result,
		},
		Backups:          backups,
		AutoBackupConfig: cfg,
	}

	summaryJSON, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("marshal summary: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.Create("summary.json")
	if err != nil {
		return "", nil, fmt.Errorf("create summary entry: %w", err)
	}
	if _, err := w.Write(summaryJSON); err != nil {
		return "", nil, fmt.Errorf("write summary entry: %w", err)
	}

	logTail := readLogTail(d.logPath, 300)
	if logTail == "" {
		logTail = "no server log available"
	}
	w, err = zw.Create("logs/server.log.tail.txt")
	if err != nil {
		return "", nil, fmt.Errorf("create log entry: %w", err)
	}
	if _, err := w.Write([]byte(logTail)); err != nil {
		return "", nil, fmt.Errorf("write log entry: %w", err)
	}

	if err := zw.Close(); err != nil {
		return "", nil, fmt.Errorf("finalize archive: %w", err)
	}

	filename := fmt.Sprintf("diagnostics_%s.zip", time.Now().Format(nameTimeFormat))
	return filename, buf.Bytes(), nil
}

func readLogTail(path string, maxLines int) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.Join(lines, "\n")
}
