package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/motorgrid/exportd/internal/logger"
)

// Desktop raises native OS notifications via the host notification
// facility. Delivery failures degrade silently to "no notifications".
type Desktop struct {
	logger *logger.Logger

	mu        sync.Mutex
	permitted *bool
	lastKind  map[string]string // tag -> last alert kind
}

// NewDesktop creates a desktop notifier.
func NewDesktop(log *logger.Logger) *Desktop {
	return &Desktop{
		logger:   log,
		lastKind: make(map[string]string),
	}
}

// RequestPermission probes the host notification facility once and
// caches the outcome. Probing is a silent delivery attempt; hosts
// without a notification daemon report false.
func (d *Desktop) RequestPermission(ctx context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.permitted != nil {
		return *d.permitted
	}

	err := beeep.Notify("Export service", "Export notifications enabled", "")
	ok := err == nil
	d.permitted = &ok
	if err != nil {
		d.logger.Debug(ctx, "Desktop notifications unavailable", "error", err)
	}
	return ok
}

// Started announces that an export job has been accepted.
func (d *Desktop) Started(ctx context.Context, taskID, format string) {
	d.send(ctx, taskID, KindStarted, "Export started",
		fmt.Sprintf("Preparing %s export (job %s)", format, taskID))
}

// Ready announces that an export file is available.
func (d *Desktop) Ready(ctx context.Context, taskID, fileName string) {
	d.send(ctx, taskID, KindReady, "Export ready",
		fmt.Sprintf("%s is ready to download", fileName))
}

// Failed announces that an export job ended in failure.
func (d *Desktop) Failed(ctx context.Context, taskID, reason string) {
	if reason == "" {
		reason = "export failed"
	}
	d.send(ctx, taskID, KindFailed, "Export failed",
		fmt.Sprintf("Job %s: %s", taskID, reason))
}

func (d *Desktop) send(ctx context.Context, taskID, kind, title, body string) {
	tag := Tag(taskID)

	d.mu.Lock()
	if d.permitted != nil && !*d.permitted {
		d.mu.Unlock()
		return
	}
	// Same alert kind for the same tag replaces the previous one; the
	// host stacks distinct notifications, so suppress exact repeats.
	if d.lastKind[tag] == kind {
		d.mu.Unlock()
		return
	}
	d.lastKind[tag] = kind
	d.mu.Unlock()

	if err := beeep.Notify(title, body, ""); err != nil {
		d.logger.Debug(ctx, "Failed to deliver desktop notification",
			"error", err, "task_id", taskID, "kind", kind)
	}
}
