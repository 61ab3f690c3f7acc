package backup

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/chronos-inventory/chronos/internal/database"
	"github.com/chronos-inventory/chronos/internal/model"
	"github.com/google/uuid"
)

// RequiredTables is the fixed set of tables the application depends on. A
// backup missing any of them would restore into an unusable database.
var RequiredTables = []string{"products", "stock_movements", "history", "settings"}

// Tester rehearses a restore by copying a backup into a throwaway directory
// and validating the copy there. It never touches the active database and
// never takes the active-path lock, so it can run during normal use.
type Tester struct {
	repo   *Repository
	logger *slog.Logger
}

func NewTester(repo *Repository, logger *slog.Logger) *Tester {
	return &Tester{repo: repo, logger: logger}
}

// RestoreTest validates the named backup, or the most recent one when name is
// empty. The sandbox directory is removed on every exit path.
func (t *Tester) RestoreTest(name string) (*model.RestoreTestOutcome, error) {
	var path string
	if name == "" {
		artifacts, err := t.repo.List()
		if err != nil {
			return nil, err
		}
		if len(artifacts) == 0 {
			return nil, &OpError{Kind: KindInvalidBackup, Detail: "no backups available to test"}
		}
		name, path = artifacts[0].Name, artifacts[0].Path
	} else {
		resolved, err := t.repo.Resolve(name)
		if err != nil {
			return nil, err
		}
		path = resolved
	}

	sandbox := filepath.Join(os.TempDir(), "chronos_restore_test_"+uuid.NewString())
	if err := os.Mkdir(sandbox, 0o700); err != nil {
		return nil, &OpError{Kind: KindStorageUnavailable, Detail: "create sandbox directory", Err: err}
	}
	defer os.RemoveAll(sandbox)

	copyPath := filepath.Join(sandbox, "restore_test.db")
	if err := copyFile(path, copyPath); err != nil {
		return nil, &OpError{Kind: KindStorageUnavailable, Detail: fmt.Sprintf("copy backup %q into sandbox", name), Err: err}
	}

	chk := CheckIntegrity(copyPath)
	missing := missingTables(copyPath)

	outcome := &model.RestoreTestOutcome{
		BackupName:      name,
		BackupPath:      path,
		OK:              chk.OK && len(missing) == 0,
		IntegrityResult: chk.Result,
		RequiredTables:  RequiredTables,
		MissingTables:   missing,
	}
	t.logger.Info("restore test", "name", name, "ok", outcome.OK, "missing_tables", len(missing))
	return outcome, nil
}

// missingTables reports which required tables are absent from the database at
// path. If the schema cannot be read at all, every required table counts as
// missing.
func missingTables(path string) []string {
	db, err := database.OpenReadOnly(path)
	if err != nil {
		return append([]string(nil), RequiredTables...)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return append([]string(nil), RequiredTables...)
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var table string
		if err := rows.Scan(&table); err != nil {
			return append([]string(nil), RequiredTables...)
		}
		present[table] = true
	}
	if err := rows.Err(); err != nil {
		return append([]string(nil), RequiredTables...)
	}

	missing := []string{}
	for _, table := range RequiredTables {
		if !present[table] {
			missing = append(missing, table)
		}
	}
	return missing
}
