package mail

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/soyeahso/chatrelay/internal/googleauth"
	"github.com/soyeahso/chatrelay/internal/version"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailScope is the OAuth scope needed to send mail.
const GmailScope = gmail.GmailSendScope

// Gmail sends messages through the Gmail API as the authorized user.
type Gmail struct {
	svc *gmail.Service
}

// NewGmail wraps an existing Gmail service.
func NewGmail(svc *gmail.Service) *Gmail {
	return &Gmail{svc: svc}
}

// NewGmailFromFiles authorizes with a client secrets file and a cached token
// written by `chatrelay auth gmail`.
func NewGmailFromFiles(ctx context.Context, credentialsFile, tokenFile string) (*Gmail, error) {
	client, err := googleauth.HTTPClient(ctx, credentialsFile, tokenFile, GmailScope)
	if err != nil {
		return nil, err
	}
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client), option.WithUserAgent(version.UserAgent()))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return NewGmail(svc), nil
}

func (g *Gmail) Name() string { return "gmail" }

// Send submits the raw message with users.messages.send.
func (g *Gmail) Send(ctx context.Context, msg Message) error {
	raw, err := msg.Bytes()
	if err != nil {
		return err
	}
	out := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	if _, err := g.svc.Users.Messages.Send("me", out).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gmail send: %w", err)
	}
	return nil
}
