package gcp

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/impersonate"
	"google.golang.org/api/option"

	"github.com/cwleong/videosharingflow/internal/batch"
	"github.com/cwleong/videosharingflow/internal/remote"
)

// GmailDispatcher implements remote.Mailer, sending as the configured sender
// through domain-wide delegation.
type GmailDispatcher struct {
	svc    *gmail.Service
	sender string
}

func NewGmailDispatcher(ctx context.Context, serviceAccount, sender string) (*GmailDispatcher, error) {
	ts, err := impersonate.CredentialsTokenSource(ctx, impersonate.CredentialsConfig{
		TargetPrincipal: serviceAccount,
		Subject:         sender,
		Scopes:          []string{gmail.GmailSendScope},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build gmail token source: %w", err)
	}
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return &GmailDispatcher{svc: svc, sender: sender}, nil
}

func (d *GmailDispatcher) Send(ctx context.Context, msg remote.Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("message has no recipients")
	}

	var raw strings.Builder
	fmt.Fprintf(&raw, "From: %s\r\n", d.sender)
	fmt.Fprintf(&raw, "To: %s\r\n", strings.Join(msg.To, ", "))
	if len(msg.CC) > 0 {
		fmt.Fprintf(&raw, "Cc: %s\r\n", strings.Join(msg.CC, ", "))
	}
	fmt.Fprintf(&raw, "Subject: %s\r\n", msg.Subject)
	raw.WriteString("MIME-Version: 1.0\r\n")
	raw.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	raw.WriteString("\r\n")
	raw.WriteString(msg.HTMLBody)

	encoded := base64.URLEncoding.EncodeToString([]byte(raw.String()))
	err := batch.Retry(ctx, func() error {
		_, err := d.svc.Users.Messages.Send("me", &gmail.Message{Raw: encoded}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to send mail %q: %w", msg.Subject, err)
	}
	return nil
}
