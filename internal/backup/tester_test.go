package backup

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestRestoreTestHealthyBackup(t *testing.T) {
	repo, _ := setupRepoTest(t)
	tester := NewTester(repo, slog.Default())

	artifact, err := repo.Create(context.Background(), PrefixManual)
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}
	before := checksumFile(t, artifact.Path)
	activeBefore := checksumFile(t, repo.ActivePath())

	outcome, err := tester.RestoreTest(artifact.Name)
	if err != nil {
		t.Fatalf("restore test: %v", err)
	}
	if !outcome.OK {
		t.Errorf("outcome OK = false, integrity %q, missing %v", outcome.IntegrityResult, outcome.MissingTables)
	}
	if outcome.BackupName != artifact.Name {
		t.Errorf("BackupName = %q, want %q", outcome.BackupName, artifact.Name)
	}
	if len(outcome.MissingTables) != 0 {
		t.Errorf("MissingTables = %v, want none", outcome.MissingTables)
	}

	// The rehearsal is strictly read-only on both files.
	if after := checksumFile(t, artifact.Path); after != before {
		t.Error("restore test modified the backup artifact")
	}
	if activeAfter := checksumFile(t, repo.ActivePath()); activeAfter != activeBefore {
		t.Error("restore test modified the active database")
	}
}

func TestRestoreTestDefaultsToNewest(t *testing.T) {
	repo, _ := setupRepoTest(t)
	tester := NewTester(repo, slog.Default())
	ctx := context.Background()

	older, _ := repo.Create(ctx, PrefixAuto)
	newest, err := repo.Create(ctx, PrefixManual)
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}
	ageArtifact(t, older.Path, time.Hour)

	outcome, err := tester.RestoreTest("")
	if err != nil {
		t.Fatalf("restore test: %v", err)
	}
	if outcome.BackupName != newest.Name {
		t.Errorf("BackupName = %q, want newest %q", outcome.BackupName, newest.Name)
	}
}

func TestRestoreTestNoBackups(t *testing.T) {
	repo, _ := setupRepoTest(t)
	tester := NewTester(repo, slog.Default())

	_, err := tester.RestoreTest("")
	if err == nil {
		t.Fatal("expected error with no backups on disk")
	}
	if kind, _ := ErrKind(err); kind != KindInvalidBackup {
		t.Errorf("kind = %v, want invalid_backup", kind)
	}
}

func TestRestoreTestReportsMissingTables(t *testing.T) {
	repo, _ := setupRepoTest(t)
	tester := NewTester(repo, slog.Default())

	// Hand-build a valid SQLite file that lacks most required tables and
	// drop it into the backup directory under a resolvable name.
	path := filepath.Join(repo.dir, "backup_manual_20250101_090000.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open bare db: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE products (id INTEGER PRIMARY KEY, code TEXT, name TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close bare db: %v", err)
	}

	outcome, err := tester.RestoreTest("backup_manual_20250101_090000.db")
	if err != nil {
		t.Fatalf("restore test: %v", err)
	}
	if outcome.OK {
		t.Error("outcome OK = true for a backup missing required tables")
	}
	for _, table := range []string{"stock_movements", "history", "settings"} {
		if !slices.Contains(outcome.MissingTables, table) {
			t.Errorf("MissingTables = %v, want to include %q", outcome.MissingTables, table)
		}
	}
	if slices.Contains(outcome.MissingTables, "products") {
		t.Errorf("MissingTables = %v, must not include present table", outcome.MissingTables)
	}
}

func TestRestoreTestUnknownBackupLeavesActiveUntouched(t *testing.T) {
	repo, _ := setupRepoTest(t)
	tester := NewTester(repo, slog.Default())
	before := checksumFile(t, repo.ActivePath())

	_, err := tester.RestoreTest("backup_auto_19990101_000000.db")
	if err == nil {
		t.Fatal("expected error for unknown backup")
	}
	if kind, _ := ErrKind(err); kind != KindNotFound {
		t.Errorf("kind = %v, want not_found", kind)
	}

	if after := checksumFile(t, repo.ActivePath()); after != before {
		t.Error("failed restore test modified the active database")
	}
}

func TestRestoreTestCorruptBackup(t *testing.T) {
	repo, _ := setupRepoTest(t)
	tester := NewTester(repo, slog.Default())

	path := filepath.Join(repo.dir, "backup_manual_20250101_090000.db")
	if err := os.WriteFile(path, []byte("not a database at all"), 0o644); err != nil {
		t.Fatalf("write corrupt backup: %v", err)
	}

	outcome, err := tester.RestoreTest("backup_manual_20250101_090000.db")
	if err != nil {
		t.Fatalf("restore test: %v", err)
	}
	if outcome.OK {
		t.Error("outcome OK = true for a corrupt backup")
	}
	if outcome.IntegrityResult == "ok" {
		t.Errorf("IntegrityResult = %q, want failure description", outcome.IntegrityResult)
	}
}
