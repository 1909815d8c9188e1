package engine

import "errors"

var (
	// ErrMissingID is returned when session issuance is attempted without a
	// video id.
	ErrMissingID = errors.New("missing video id")

	// ErrMissingToken is returned when an endpoint is called without a
	// session token.
	ErrMissingToken = errors.New("missing session token")

	// ErrSessionInvalid covers unknown, expired, and origin-mismatched
	// tokens. Callers must re-issue a session; the distinction is logged but
	// never echoed to the client.
	ErrSessionInvalid = errors.New("session invalid or expired")

	// ErrNotReady is returned when a manifest is requested before enough
	// segments exist to synthesize one. Self-resolving as the job progresses.
	ErrNotReady = errors.New("manifest not yet synthesizable")
)
