package powerwall

import "codeberg.org/mutker/powerwallmon/internal/errors"

const (
	// Session errors
	ErrAuthFailed      = errors.ErrorCode("powerwall_auth_failed")
	ErrUnreachable     = errors.ErrorCode("powerwall_unreachable")
	ErrNotConnected    = errors.ErrorCode("powerwall_not_connected")
	ErrSessionRejected = errors.ErrorCode("powerwall_session_rejected")

	// Fetch errors
	ErrFetchFailed       = errors.ErrorCode("powerwall_fetch_failed")
	ErrMalformedResponse = errors.ErrorCode("powerwall_malformed_response")
)
