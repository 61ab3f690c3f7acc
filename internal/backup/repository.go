package backup

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chronos-inventory/chronos/internal/model"
)

// Artifact name prefixes. The pre-update prefix doubles as the reserved slot
// key for the update safety net.
const (
	PrefixAuto       = "backup_auto"
	PrefixManual     = "backup_manual"
	PrefixPreRestore = "backup_pre_restore"
	PrefixPreUpdate  = "backup_pre_update"
)

const nameTimeFormat = "20060102_150405"

// Repository creates, lists, and deletes backup artifacts in a single
// directory. It owns the process-wide lock serializing every operation that
// reads or writes the active database file; the restore engine and scheduler
// run through the same lock.
type Repository struct {
	mu         sync.Mutex
	db         *sql.DB
	activePath string
	dir        string
	mirror     *Mirror
	logger     *slog.Logger

	// now is the clock; tests substitute synthetic timestamps so artifact
	// names embed predictable times.
	now func() time.Time
}

// NewRepository creates a Repository storing artifacts under dir, creating the
// directory if needed. mirror may be nil when no offsite storage is configured.
func NewRepository(db *sql.DB, activePath, dir string, mirror *Mirror, logger *slog.Logger) (*Repository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &OpError{Kind: KindStorageUnavailable, Detail: fmt.Sprintf("create backups directory %s", dir), Err: err}
	}
	return &Repository{
		db:         db,
		activePath: activePath,
		dir:        dir,
		mirror:     mirror,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// ActivePath returns the path of the active database file.
func (r *Repository) ActivePath() string {
	return r.activePath
}

// Create takes a consistent point-in-time snapshot of the active database and
// stores it as a new uniquely-named artifact. The snapshot goes through
// SQLite's VACUUM INTO so it is safe while the database is open mid-write;
// the active database is left untouched whatever the outcome.
func (r *Repository) Create(ctx context.Context, prefix string) (*model.BackupArtifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createLocked(ctx, prefix)
}

func (r *Repository) createLocked(ctx context.Context, prefix string) (*model.BackupArtifact, error) {
	name := r.nextName(prefix, r.now())
	dest := filepath.Join(r.dir, name)
	tmp := dest + ".tmp"
	os.Remove(tmp) // VACUUM INTO requires the target to not exist

	// Single quotes in the path would break the statement.
	escaped := strings.ReplaceAll(tmp, "'", "''")
	if _, err := r.db.ExecContext(ctx, "VACUUM INTO '"+escaped+"'"); err != nil {
		os.Remove(tmp)
		return nil, &OpError{Kind: KindStorageUnavailable, Detail: "snapshot active database", Err: err}
	}

	if chk := CheckIntegrity(tmp); !chk.OK {
		os.Remove(tmp)
		return nil, &OpError{Kind: KindStorageUnavailable, Detail: "snapshot failed verification: " + chk.Result}
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return nil, &OpError{Kind: KindStorageUnavailable, Detail: "finalize snapshot", Err: err}
	}

	stat, err := os.Stat(dest)
	if err != nil {
		return nil, &OpError{Kind: KindStorageUnavailable, Detail: "stat snapshot", Err: err}
	}

	artifact := &model.BackupArtifact{
		Name:      name,
		Path:      dest,
		Size:      stat.Size(),
		CreatedAt: stat.ModTime(),
	}

	r.logger.Info("backup created", "name", name, "size", artifact.Size)

	if r.mirror != nil {
		if err := r.mirror.Upload(ctx, artifact); err != nil {
			// Offsite mirroring is best-effort; the local artifact is the
			// source of truth.
			r.logger.Warn("offsite upload failed", "name", name, "error", err)
		}
	}

	return artifact, nil
}

// rawSnapshotLocked preserves the active database's exact bytes as an
// artifact. Used for the pre-restore safety snapshot when the active database
// is too damaged for VACUUM INTO; the fallback must capture current state
// even when that state is corrupt. Callers hold the active-path lock, so the
// copy cannot observe a mid-write file.
func (r *Repository) rawSnapshotLocked(ctx context.Context) (*model.BackupArtifact, error) {
	// Flush WAL pages into the main file if the database is still healthy
	// enough to do so.
	if _, err := r.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		r.logger.Warn("wal checkpoint before raw snapshot failed", "error", err)
	}

	name := r.nextName(PrefixPreRestore, r.now())
	dest := filepath.Join(r.dir, name)
	tmp := dest + ".tmp"

	if err := copyFile(r.activePath, tmp); err != nil {
		os.Remove(tmp)
		return nil, &OpError{Kind: KindStorageUnavailable, Detail: "copy active database", Err: err}
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return nil, &OpError{Kind: KindStorageUnavailable, Detail: "finalize snapshot", Err: err}
	}

	stat, err := os.Stat(dest)
	if err != nil {
		return nil, &OpError{Kind: KindStorageUnavailable, Detail: "stat snapshot", Err: err}
	}
	return &model.BackupArtifact{Name: name, Path: dest, Size: stat.Size(), CreatedAt: stat.ModTime()}, nil
}

// nextName builds a chronologically sortable artifact name, suffixing a
// counter when two snapshots land within the same second.
func (r *Repository) nextName(prefix string, now time.Time) string {
	base := fmt.Sprintf("%s_%s", prefix, now.Format(nameTimeFormat))
	name := base + ".db"
	for i := 2; ; i++ {
		if _, err := os.Stat(filepath.Join(r.dir, name)); os.IsNotExist(err) {
			return name
		}
		name = fmt.Sprintf("%s_%d.db", base, i)
	}
}

// List enumerates artifacts newest-first.
func (r *Repository) List() ([]model.BackupArtifact, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, &OpError{Kind: KindStorageUnavailable, Detail: fmt.Sprintf("read backups directory %s", r.dir), Err: err}
	}

	var artifacts []model.BackupArtifact
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".db") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Deleted between ReadDir and Info
			continue
		}
		artifacts = append(artifacts, model.BackupArtifact{
			Name:      entry.Name(),
			Path:      filepath.Join(r.dir, entry.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	sort.Slice(artifacts, func(i, j int) bool {
		if !artifacts[i].CreatedAt.Equal(artifacts[j].CreatedAt) {
			return artifacts[i].CreatedAt.After(artifacts[j].CreatedAt)
		}
		return artifacts[i].Name > artifacts[j].Name
	})
	return artifacts, nil
}

// Resolve maps a backup name to its path, rejecting anything that is not a
// plain .db filename inside the backups directory.
func (r *Repository) Resolve(name string) (string, error) {
	clean := strings.TrimSpace(name)
	if clean == "" || clean != filepath.Base(clean) || !strings.HasSuffix(clean, ".db") || clean == ".db" {
		return "", &OpError{Kind: KindInvalidBackup, Detail: fmt.Sprintf("invalid backup name %q", name)}
	}
	path := filepath.Join(r.dir, clean)
	stat, err := os.Stat(path)
	if err != nil || stat.IsDir() {
		return "", &OpError{Kind: KindNotFound, Detail: fmt.Sprintf("backup %q not found", clean)}
	}
	return path, nil
}

// Validate runs the integrity check against the named artifact, or against
// the active database when name is empty.
func (r *Repository) Validate(name string) (Check, error) {
	if name == "" {
		r.mu.Lock()
		defer r.mu.Unlock()
		return CheckIntegrity(r.activePath), nil
	}
	path, err := r.Resolve(name)
	if err != nil {
		return Check{}, err
	}
	return CheckIntegrity(path), nil
}

// Sweep deletes automatic backups older than retentionDays. Manual,
// pre-restore, and pre-update artifacts are never retention candidates:
// they exist as deliberate recovery points and a sweep must not take a
// rollback target out from under its protocol. The single most recent
// automatic backup is always retained regardless of age, so a sweep can
// never leave the system without a recovery point. Returns the number of
// deleted files.
func (r *Repository) Sweep(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays < 1 {
		return 0, fmt.Errorf("retention days must be >= 1, got %d", retentionDays)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	artifacts, err := r.List()
	if err != nil {
		return 0, err
	}

	var autos []model.BackupArtifact
	for _, artifact := range artifacts {
		if strings.HasPrefix(artifact.Name, PrefixAuto+"_") {
			autos = append(autos, artifact)
		}
	}
	if len(autos) <= 1 {
		return 0, nil
	}

	cutoff := r.now().AddDate(0, 0, -retentionDays)
	deleted := 0
	// autos[0] is the newest automatic backup and is never a sweep candidate.
	for _, artifact := range autos[1:] {
		if artifact.CreatedAt.After(cutoff) {
			continue
		}
		if err := os.Remove(artifact.Path); err != nil {
			r.logger.Warn("sweep delete failed", "name", artifact.Name, "error", err)
			continue
		}
		if r.mirror != nil {
			if err := r.mirror.Delete(ctx, artifact.Name); err != nil {
				r.logger.Warn("offsite delete failed", "name", artifact.Name, "error", err)
			}
		}
		deleted++
	}

	if deleted > 0 {
		r.logger.Info("retention sweep", "deleted", deleted, "retention_days", retentionDays)
	}
	return deleted, nil
}

// swapLocked atomically replaces the active database file with a copy of src.
// The copy is written to a temporary file in the same directory and renamed
// over the active path; the rename is the sole durability boundary. Stale WAL
// and SHM sidecars are removed so the swapped-in file is read as-is.
func (r *Repository) swapLocked(src string) error {
	dir := filepath.Dir(r.activePath)
	tmp, err := os.CreateTemp(dir, ".swap-*.db")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := copyTo(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("stage replacement: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync replacement: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close replacement: %w", err)
	}

	if err := os.Rename(tmpPath, r.activePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace active database: %w", err)
	}

	// Pooled connections still hold file handles to the renamed-over inode;
	// anything run through them now (the next VACUUM INTO, settings writes)
	// would read and write the dead pre-swap file. Drop the pool so every
	// later query reopens the path and sees the swapped-in database.
	r.db.SetMaxIdleConns(0)
	r.db.SetMaxIdleConns(2)

	os.Remove(r.activePath + "-wal")
	os.Remove(r.activePath + "-shm")
	return nil
}

func copyTo(dst *os.File, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	_, err = io.Copy(dst, in)
	return err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
