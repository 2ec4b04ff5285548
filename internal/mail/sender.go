package mail

import (
	"context"
	"fmt"

	"github.com/soyeahso/chatrelay/internal/config"
)

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// Open builds the sender selected by cfg. The "none" driver yields a nil
// Sender, which callers treat as notifications disabled.
func Open(ctx context.Context, cfg config.MailConfig, paths config.Paths) (Sender, error) {
	switch cfg.Driver {
	case "none", "":
		return nil, nil
	case "smtp":
		return NewSMTP(cfg.SMTP), nil
	case "gmail":
		creds := cfg.CredentialsFile
		if creds == "" {
			creds = paths.DriveCredentials()
		}
		token := cfg.TokenFile
		if token == "" {
			token = paths.Token("gmail")
		}
		g, err := NewGmailFromFiles(ctx, creds, token)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.Driver)
	}
}
