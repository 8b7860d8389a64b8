package telemetry

import "codeberg.org/mutker/powerwallmon/internal/errors"

const (
	// Configuration errors
	ErrInvalidConfig = errors.ErrorCode("telemetry_invalid_config")

	// Connection errors
	ErrConnectFailed = errors.ErrorCode("telemetry_connect_failed")
	ErrNotConnected  = errors.ErrorCode("telemetry_not_connected")

	// Write errors
	ErrWriteFailed = errors.ErrorCode("telemetry_write_failed")

	// Shutdown errors
	ErrCloseFailed = errors.ErrorCode("telemetry_close_failed")
)
