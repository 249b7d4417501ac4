package mail

import (
	"context"
	"strings"
	"testing"
)

func TestBuildMessage(t *testing.T) {
	msg := string(BuildMessage("no-reply@coursegate.test", "ada@example.com", "Renew", "<p>hi</p>"))

	if !strings.HasPrefix(msg, "From: no-reply@coursegate.test\r\nTo: ada@example.com\r\nSubject: Renew\r\n") {
		t.Fatalf("unexpected headers: %q", msg)
	}
	if !strings.Contains(msg, "Content-Type: text/html; charset=UTF-8\r\n\r\n<p>hi</p>") {
		t.Fatalf("expected html body after blank line: %q", msg)
	}
}

func TestSMTPMailer_CanceledContext(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "localhost", Port: "1", Sender: "a@b.c"})
	if !m.Enabled() {
		t.Fatalf("expected mailer with host to be enabled")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Send(ctx, "x@y.z", "s", "b"); err == nil {
		t.Fatalf("expected canceled context to abort send")
	}
	if NewSMTPMailer(SMTPConfig{}).Enabled() {
		t.Fatalf("expected mailer without host to be disabled")
	}
}
