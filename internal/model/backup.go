package model

import "time"

// ScheduleMode controls how often the automatic backup fires.
type ScheduleMode string

const (
	ScheduleDaily  ScheduleMode = "DAILY"
	ScheduleWeekly ScheduleMode = "WEEKLY"
)

// BackupArtifact is an immutable backup file on disk. The name embeds the
// creation timestamp so names sort chronologically.
type BackupArtifact struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// AutoBackupConfig is the persisted scheduler configuration. Weekday follows
// time.Weekday numbering (0 = Sunday) and only matters in WEEKLY mode.
type AutoBackupConfig struct {
	Enabled        bool         `json:"enabled"`
	Hour           int          `json:"hour"`
	Minute         int          `json:"minute"`
	ScheduleMode   ScheduleMode `json:"schedule_mode"`
	Weekday        int          `json:"weekday"`
	RetentionDays  int          `json:"retention_days"`
	LastRunDate    string       `json:"last_run_date,omitempty"`
	LastResult     string       `json:"last_result,omitempty"`
	LastBackupName string       `json:"last_backup_name,omitempty"`
}

// RestoreOutcome describes a completed restore, including the safety snapshot
// taken immediately before the active database was replaced.
type RestoreOutcome struct {
	RestoredFrom     string `json:"restored_from"`
	ActiveDatabase   string `json:"active_database"`
	PreRestoreBackup string `json:"pre_restore_backup"`
	ValidationResult string `json:"validation_result"`
}

// RestoreTestOutcome is the result of rehearsing a restore in a sandbox.
type RestoreTestOutcome struct {
	BackupName      string   `json:"backup_name"`
	BackupPath      string   `json:"backup_path"`
	OK              bool     `json:"ok"`
	IntegrityResult string   `json:"integrity_result"`
	RequiredTables  []string `json:"required_tables"`
	MissingTables   []string `json:"missing_tables"`
}
