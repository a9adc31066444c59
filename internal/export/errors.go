package export

import "errors"

// Request-path errors are returned to the caller that is actively
// awaiting them. Job-lifecycle errors never surface here: polling runs
// detached, so they resolve into a FAILURE job state instead.
var (
	// ErrExportStart indicates the remote side rejected or could not
	// begin the export.
	ErrExportStart = errors.New("export could not be started")

	// ErrUnexpectedResponse indicates the remote response matched
	// neither the asynchronous nor the synchronous completion shape.
	ErrUnexpectedResponse = errors.New("unexpected export response format")

	// ErrAuthenticationRequired indicates a download was attempted
	// without an access credential.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrSessionExpired indicates the access credential was rejected.
	ErrSessionExpired = errors.New("session expired")

	// ErrFileNotFound indicates the export file no longer exists on
	// the remote side.
	ErrFileNotFound = errors.New("export file not found")

	// ErrDownloadFailed indicates any other download failure.
	ErrDownloadFailed = errors.New("download failed")
)
