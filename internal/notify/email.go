package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/motorgrid/exportd/internal/config"
	"github.com/motorgrid/exportd/internal/logger"
)

// Email forwards export alerts to a set of recipients over SMTP. Meant
// for unattended gateway deployments where nobody watches the desktop.
type Email struct {
	cfg    *config.Email
	logger *logger.Logger
}

// NewEmail creates an SMTP notifier. Returns an error when the config
// is incomplete.
func NewEmail(cfg *config.Email, log *logger.Logger) (*Email, error) {
	if cfg.Host == "" || cfg.Port == 0 || cfg.From == "" || len(cfg.To) == 0 {
		return nil, fmt.Errorf("invalid email notifier configuration")
	}
	return &Email{cfg: cfg, logger: log}, nil
}

// RequestPermission always reports true: mail delivery needs no host
// permission.
func (e *Email) RequestPermission(context.Context) bool {
	return true
}

// Started announces that an export job has been accepted.
func (e *Email) Started(ctx context.Context, taskID, format string) {
	e.send(ctx, taskID, "Export started",
		fmt.Sprintf("Export job %s (%s) has been submitted.", taskID, format))
}

// Ready announces that an export file is available.
func (e *Email) Ready(ctx context.Context, taskID, fileName string) {
	e.send(ctx, taskID, "Export ready",
		fmt.Sprintf("Export job %s finished. File: %s", taskID, fileName))
}

// Failed announces that an export job ended in failure.
func (e *Email) Failed(ctx context.Context, taskID, reason string) {
	e.send(ctx, taskID, "Export failed",
		fmt.Sprintf("Export job %s failed: %s", taskID, reason))
}

func (e *Email) send(ctx context.Context, taskID, subject, body string) {
	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}

	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: [%s] %s\r\n\r\n%s\r\n",
		strings.Join(e.cfg.To, ", "), Tag(taskID), subject, body))

	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
	if err := smtp.SendMail(addr, auth, e.cfg.From, e.cfg.To, msg); err != nil {
		e.logger.Error(ctx, "Failed to send notification email",
			"error", err, "task_id", taskID, "subject", subject)
	}
}
