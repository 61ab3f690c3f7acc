package backup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chronos-inventory/chronos/internal/model"
)

// Engine performs the destructive replace-active-database operation. The
// whole protocol runs under the repository's active-path lock, so a restore
// can never interleave with a backup, sweep, or another restore.
type Engine struct {
	repo   *Repository
	logger *slog.Logger

	// verify runs the post-swap integrity check; swappable in tests to
	// exercise the rollback path.
	verify func(path string) Check
}

func NewEngine(repo *Repository, logger *slog.Logger) *Engine {
	return &Engine{repo: repo, logger: logger, verify: CheckIntegrity}
}

// Restore replaces the active database with the named backup:
//
//  1. The candidate must pass an integrity check; otherwise nothing changes.
//  2. A safety snapshot of the current active database is taken first; a
//     restore never proceeds without a fallback already on disk.
//  3. The active file is swapped atomically (temp copy + rename).
//  4. The now-active database is re-validated; on failure the safety
//     snapshot is swapped back in and the outcome reports the rollback.
//
// On rollback the returned outcome is non-nil alongside an OpError of kind
// integrity_check_failed, so callers get both the classification and the
// description of what happened.
func (e *Engine) Restore(ctx context.Context, name string) (*model.RestoreOutcome, error) {
	path, err := e.repo.Resolve(name)
	if err != nil {
		return nil, err
	}

	if chk := CheckIntegrity(path); !chk.OK {
		return nil, &OpError{Kind: KindInvalidBackup, Detail: fmt.Sprintf("backup %q failed integrity check: %s", name, chk.Result)}
	}

	e.repo.mu.Lock()
	defer e.repo.mu.Unlock()

	pre, err := e.repo.createLocked(ctx, PrefixPreRestore)
	if err != nil {
		// The active database may itself be too damaged for a clean
		// snapshot; preserve its exact bytes as the fallback instead.
		pre, err = e.repo.rawSnapshotLocked(ctx)
		if err != nil {
			return nil, fmt.Errorf("pre-restore snapshot: %w", err)
		}
	}

	e.logger.Info("restoring backup", "name", name, "pre_restore_backup", pre.Name)

	if err := e.repo.swapLocked(path); err != nil {
		return nil, &OpError{Kind: KindStorageUnavailable, Detail: "replace active database", Err: err}
	}

	chk := e.verify(e.repo.activePath)
	if !chk.OK {
		if rbErr := e.repo.swapLocked(pre.Path); rbErr != nil {
			return nil, &OpError{
				Kind:   KindIntegrityCheckFailed,
				Detail: fmt.Sprintf("restored database failed integrity check (%s) and rollback to %s also failed", chk.Result, pre.Name),
				Err:    rbErr,
			}
		}
		e.logger.Error("restore rolled back", "name", name, "integrity_result", chk.Result, "rolled_back_to", pre.Name)
		outcome := &model.RestoreOutcome{
			RestoredFrom:     name,
			ActiveDatabase:   e.repo.activePath,
			PreRestoreBackup: pre.Name,
			ValidationResult: fmt.Sprintf("restored database failed integrity check (%s); active database rolled back to %s", chk.Result, pre.Name),
		}
		return outcome, &OpError{Kind: KindIntegrityCheckFailed, Detail: outcome.ValidationResult}
	}

	e.logger.Info("restore complete", "name", name, "validation", chk.Result)
	return &model.RestoreOutcome{
		RestoredFrom:     name,
		ActiveDatabase:   e.repo.activePath,
		PreRestoreBackup: pre.Name,
		ValidationResult: chk.Result,
	}, nil
}
