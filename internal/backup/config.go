package backup

import (
	"fmt"
	"strconv"

	"github.com/chronos-inventory/chronos/internal/model"
	"github.com/chronos-inventory/chronos/internal/store"
)

// Settings keys backing the persisted AutoBackupConfig.
const (
	keyEnabled      = "backup_auto_enabled"
	keyHour         = "backup_auto_hour"
	keyMinute       = "backup_auto_minute"
	keyRetention    = "backup_retention_days"
	keyScheduleMode = "backup_auto_schedule_mode"
	keyWeekday      = "backup_auto_weekday"
	keyLastRunDate  = "backup_auto_last_run_date"
	keyLastResult   = "backup_auto_last_result"
	keyLastBackup   = "backup_auto_last_backup"
)

// Defaults applied when no configuration has been persisted yet.
const (
	defaultHour          = 18
	defaultMinute        = 0
	defaultRetentionDays = 15
)

// LoadAutoBackupConfig reads the persisted configuration, filling in safe
// defaults for anything unset or unparseable.
func LoadAutoBackupConfig(settings *store.SettingsStore) (model.AutoBackupConfig, error) {
	raw, err := settings.GetBackupSettings()
	if err != nil {
		return model.AutoBackupConfig{}, fmt.Errorf("load auto-backup config: %w", err)
	}

	cfg := model.AutoBackupConfig{
		Enabled:        parseBool(raw[keyEnabled], true),
		Hour:           parseIntRange(raw[keyHour], defaultHour, 0, 23),
		Minute:         parseIntRange(raw[keyMinute], defaultMinute, 0, 59),
		RetentionDays:  parseIntMin(raw[keyRetention], defaultRetentionDays, 1),
		ScheduleMode:   parseScheduleMode(raw[keyScheduleMode]),
		Weekday:        parseIntRange(raw[keyWeekday], 0, 0, 6),
		LastRunDate:    raw[keyLastRunDate],
		LastResult:     raw[keyLastResult],
		LastBackupName: raw[keyLastBackup],
	}
	return cfg, nil
}

// SaveAutoBackupConfig validates and persists the trigger configuration. The
// last-run bookkeeping fields are owned by the scheduler and not written here.
func SaveAutoBackupConfig(settings *store.SettingsStore, cfg model.AutoBackupConfig) error {
	if cfg.Hour < 0 || cfg.Hour > 23 {
		return fmt.Errorf("hour must be 0-23, got %d", cfg.Hour)
	}
	if cfg.Minute < 0 || cfg.Minute > 59 {
		return fmt.Errorf("minute must be 0-59, got %d", cfg.Minute)
	}
	if cfg.RetentionDays < 1 {
		return fmt.Errorf("retention days must be >= 1, got %d", cfg.RetentionDays)
	}
	if cfg.ScheduleMode != model.ScheduleDaily && cfg.ScheduleMode != model.ScheduleWeekly {
		return fmt.Errorf("schedule mode must be DAILY or WEEKLY, got %q", cfg.ScheduleMode)
	}
	if cfg.Weekday < 0 || cfg.Weekday > 6 {
		return fmt.Errorf("weekday must be 0-6, got %d", cfg.Weekday)
	}

	return settings.SetMany(map[string]string{
		keyEnabled:      strconv.FormatBool(cfg.Enabled),
		keyHour:         strconv.Itoa(cfg.Hour),
		keyMinute:       strconv.Itoa(cfg.Minute),
		keyRetention:    strconv.Itoa(cfg.RetentionDays),
		keyScheduleMode: string(cfg.ScheduleMode),
		keyWeekday:      strconv.Itoa(cfg.Weekday),
	})
}

// saveRunState persists the outcome bookkeeping of a scheduler run in one
// transaction, so a crash mid-run cannot record a half-written outcome.
func saveRunState(settings *store.SettingsStore, cfg model.AutoBackupConfig) error {
	return settings.SetMany(map[string]string{
		keyLastRunDate: cfg.LastRunDate,
		keyLastResult:  cfg.LastResult,
		keyLastBackup:  cfg.LastBackupName,
	})
}

func parseBool(value string, def bool) bool {
	switch value {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return def
	}
}

func parseIntRange(value string, def, min, max int) int {
	n, err := strconv.Atoi(value)
	if err != nil || n < min || n > max {
		return def
	}
	return n
}

func parseIntMin(value string, def, min int) int {
	n, err := strconv.Atoi(value)
	if err != nil || n < min {
		return def
	}
	return n
}

func parseScheduleMode(value string) model.ScheduleMode {
	if model.ScheduleMode(value) == model.ScheduleWeekly {
		return model.ScheduleWeekly
	}
	return model.ScheduleDaily
}
