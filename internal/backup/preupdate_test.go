package backup

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/chronos-inventory/chronos/internal/database"
)

func setupSafetyNetTest(t *testing.T) (*SafetyNet, *Repository, *sql.DB) {
	t.Helper()
	repo, db := setupRepoTest(t)
	engine := NewEngine(repo, slog.Default())
	return NewSafetyNet(repo, engine), repo, db
}

func TestPreUpdateSnapshotAndRollback(t *testing.T) {
	net, repo, db := setupSafetyNetTest(t)
	ctx := context.Background()

	snapshot, err := net.CreateSnapshot(ctx)
	if err != nil {
		t.Fatalf("create snapshot: %v", err)
	}
	if !strings.HasPrefix(snapshot.Name, PrefixPreUpdate+"_") {
		t.Errorf("snapshot name = %q, want prefix %q", snapshot.Name, PrefixPreUpdate)
	}

	// A failed update mangles data; the rollback must erase the damage.
	if _, err := db.Exec(`UPDATE products SET name = 'CORRUPTED BY UPDATE'`); err != nil {
		t.Fatalf("mangle data: %v", err)
	}

	outcome, err := net.RestoreSnapshot(ctx)
	if err != nil {
		t.Fatalf("restore snapshot: %v", err)
	}
	if outcome.RestoredFrom != snapshot.Name {
		t.Errorf("RestoredFrom = %q, want %q", outcome.RestoredFrom, snapshot.Name)
	}

	conn, err := database.OpenReadOnly(repo.ActivePath())
	if err != nil {
		t.Fatalf("open restored db: %v", err)
	}
	defer conn.Close()
	var name string
	if err := conn.QueryRow(`SELECT name FROM products WHERE code = 'SKU-1'`).Scan(&name); err != nil {
		t.Fatalf("read product: %v", err)
	}
	if name != "Widget" {
		t.Errorf("product name after rollback = %q, want Widget", name)
	}
}

func TestRestoreSnapshotPicksNewestPreUpdate(t *testing.T) {
	net, _, _ := setupSafetyNetTest(t)
	ctx := context.Background()

	older, err := net.CreateSnapshot(ctx)
	if err != nil {
		t.Fatalf("create first snapshot: %v", err)
	}
	newest, err := net.CreateSnapshot(ctx)
	if err != nil {
		t.Fatalf("create second snapshot: %v", err)
	}
	ageArtifact(t, older.Path, time.Hour)

	outcome, err := net.RestoreSnapshot(ctx)
	if err != nil {
		t.Fatalf("restore snapshot: %v", err)
	}
	if outcome.RestoredFrom != newest.Name {
		t.Errorf("RestoredFrom = %q, want newest snapshot %q", outcome.RestoredFrom, newest.Name)
	}
}

func TestRestoreSnapshotWithoutSnapshot(t *testing.T) {
	net, repo, _ := setupSafetyNetTest(t)
	ctx := context.Background()

	// Other backups exist, but none from the pre-update protocol.
	if _, err := repo.Create(ctx, PrefixManual); err != nil {
		t.Fatalf("create manual backup: %v", err)
	}

	_, err := net.RestoreSnapshot(ctx)
	if err == nil {
		t.Fatal("expected error with no pre-update snapshot on disk")
	}
	if kind, _ := ErrKind(err); kind != KindNoPreUpdateSnapshot {
		t.Errorf("kind = %v, want no_pre_update_snapshot", kind)
	}
}
