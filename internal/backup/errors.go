package backup

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable classification of an engine failure.
type Kind string

const (
	KindStorageUnavailable   Kind = "storage_unavailable"
	KindInvalidBackup        Kind = "invalid_backup"
	KindIntegrityCheckFailed Kind = "integrity_check_failed"
	KindConcurrentOperation  Kind = "concurrent_operation"
	KindNoPreUpdateSnapshot  Kind = "no_pre_update_snapshot"
	KindNotFound             Kind = "not_found"
)

// OpError is a structured engine failure: a Kind for callers to branch on
// plus a human-readable Detail. None of these conditions are fatal to the
// process.
type OpError struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *OpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// ErrKind extracts the Kind from an error chain, if any.
func ErrKind(err error) (Kind, bool) {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind, true
	}
	return "", false
}
