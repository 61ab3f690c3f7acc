package backup

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chronos-inventory/chronos/internal/store"
	"github.com/chronos-inventory/chronos/internal/version"
)

func readZipEntry(t *testing.T, zr *zip.Reader, name string) []byte {
	t.Helper()
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		return data
	}
	t.Fatalf("entry %s not in archive", name)
	return nil
}

func TestDiagnosticsArchive(t *testing.T) {
	repo, db := setupRepoTest(t)
	settings := store.NewSettingsStore(db)

	logPath := filepath.Join(t.TempDir(), "server.log")
	if err := os.WriteFile(logPath, []byte("line one\nline two\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	artifact, err := repo.Create(context.Background(), PrefixManual)
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}

	diag := NewDiagnostics(repo, settings, logPath)
	filename, data, err := diag.Archive()
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !strings.HasPrefix(filename, "diagnostics_") || !strings.HasSuffix(filename, ".zip") {
		t.Errorf("filename = %q, want diagnostics_*.zip", filename)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}

	var summary struct {
		AppVersion string `json:"app_version"`
		Database   struct {
			Exists      bool `json:"exists"`
			IntegrityOK bool `json:"integrity_ok"`
		} `json:"database"`
		Backups []struct {
			Name string `json:"name"`
		} `json:"backups"`
	}
	if err := json.Unmarshal(readZipEntry(t, zr, "summary.json"), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.AppVersion != version.Version {
		t.Errorf("app_version = %q, want %q", summary.AppVersion, version.Version)
	}
	if !summary.Database.Exists || !summary.Database.IntegrityOK {
		t.Errorf("database summary = %+v, want existing and healthy", summary.Database)
	}
	if len(summary.Backups) != 1 || summary.Backups[0].Name != artifact.Name {
		t.Errorf("backups = %+v, want [%s]", summary.Backups, artifact.Name)
	}

	tail := string(readZipEntry(t, zr, "logs/server.log.tail.txt"))
	if !strings.Contains(tail, "line two") {
		t.Errorf("log tail = %q, want server log content", tail)
	}
}

func TestDiagnosticsArchiveWithoutLog(t *testing.T) {
	repo, db := setupRepoTest(t)
	diag := NewDiagnostics(repo, store.NewSettingsStore(db), "")

	_, data, err := diag.Archive()
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	tail := string(readZipEntry(t, zr, "logs/server.log.tail.txt"))
	if !strings.Contains(tail, "no server log available") {
		t.Errorf("log tail = %q, want placeholder", tail)
	}
}
