// Package notify raises user-visible alerts for export lifecycle changes.
package notify

import "context"

// Alert kinds raised for a job. Each alert carries a stable tag derived
// from the task ID so repeated alerts for the same job replace rather
// than stack.
const (
	KindStarted = "export-started"
	KindReady   = "export-ready"
	KindFailed  = "export-failed"
)

// Notifier raises user-visible alerts for export jobs.
type Notifier interface {
	// RequestPermission reports whether notifications are currently
	// permitted, prompting the host user if undetermined. It never
	// fails; absence of a notification capability means false.
	RequestPermission(ctx context.Context) bool

	// Started announces that an export job has been accepted.
	Started(ctx context.Context, taskID, format string)

	// Ready announces that an export file is available.
	Ready(ctx context.Context, taskID, fileName string)

	// Failed announces that an export job ended in failure.
	Failed(ctx context.Context, taskID, reason string)
}

// Tag returns the per-task notification tag.
func Tag(taskID string) string {
	return "export-" + taskID
}

// Noop is a Notifier that does nothing. Used when the host has no
// notification facility and in tests.
type Noop struct{}

func (Noop) RequestPermission(context.Context) bool  { return false }
func (Noop) Started(context.Context, string, string) {}
func (Noop) Ready(context.Context, string, string)   {}
func (Noop) Failed(context.Context, string, string)  {}
