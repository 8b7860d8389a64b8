package journal

import "codeberg.org/mutker/powerwallmon/internal/errors"

const (
	// Configuration errors
	ErrInvalidConfig = errors.ErrorCode("journal_invalid_config")
	ErrInvalidDBPath = errors.ErrorCode("journal_invalid_db_path")

	// Storage errors
	ErrStorageInit   = errors.ErrorCode("journal_storage_init_failed")
	ErrStorageAccess = errors.ErrorCode("journal_storage_access_failed")
	ErrStorageClose  = errors.ErrorCode("journal_storage_close_failed")

	// Operation errors
	ErrInvalidEntry     = errors.ErrorCode("journal_invalid_entry")
	ErrOperationTimeout = errors.ErrorCode("journal_operation_timeout")
)
