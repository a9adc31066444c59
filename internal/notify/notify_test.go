package notify

import (
	"context"
	"testing"

	"github.com/motorgrid/exportd/internal/config"
	"github.com/motorgrid/exportd/internal/logger"
)

func TestTag(t *testing.T) {
	if got := Tag("abc-123"); got != "export-abc-123" {
		t.Errorf("Tag = %q, want export-abc-123", got)
	}
}

func TestNoop(t *testing.T) {
	var n Notifier = Noop{}
	if n.RequestPermission(context.Background()) {
		t.Error("noop notifier granted permission")
	}
	// Must not panic.
	n.Started(context.Background(), "t", "excel")
	n.Ready(context.Background(), "t", "x.xlsx")
	n.Failed(context.Background(), "t", "boom")
}

func TestNewEmailValidation(t *testing.T) {
	log := logger.StdLogger()

	if _, err := NewEmail(&config.Email{}, log); err == nil {
		t.Error("expected error for empty SMTP config")
	}
	if _, err := NewEmail(&config.Email{Host: "smtp.example.com", Port: 587, From: "a@b.c"}, log); err == nil {
		t.Error("expected error without recipients")
	}
	if _, err := NewEmail(&config.Email{
		Host: "smtp.example.com", Port: 587,
		From: "agent@plant.example.com",
		To:   []string{"ops@plant.example.com"},
	}, log); err != nil {
		t.Errorf("valid SMTP config rejected: %v", err)
	}
}
