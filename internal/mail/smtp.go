package mail

import (
	"context"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"

	"github.com/soyeahso/chatrelay/internal/config"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTP sends messages through an SMTP relay with PLAIN auth over STARTTLS.
type SMTP struct {
	cfg  config.SMTPConfig
	send sendFunc
}

// NewSMTP creates an SMTP sender.
func NewSMTP(cfg config.SMTPConfig) *SMTP {
	return &SMTP{cfg: cfg, send: smtp.SendMail}
}

func (s *SMTP) Name() string { return "smtp" }

// Send delivers msg. net/smtp has no context support, so a cancelled ctx
// abandons the wait but not the underlying connection attempt.
func (s *SMTP) Send(ctx context.Context, msg Message) error {
	raw, err := msg.Bytes()
	if err != nil {
		return err
	}

	from := msg.From
	if from == "" {
		from = s.cfg.Username
	}
	envelopeFrom, err := addrOnly(from)
	if err != nil {
		return fmt.Errorf("smtp sender: %w", err)
	}
	rcpts := make([]string, 0, len(msg.To))
	for _, to := range msg.To {
		a, err := addrOnly(to)
		if err != nil {
			return fmt.Errorf("smtp recipient: %w", err)
		}
		rcpts = append(rcpts, a)
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	done := make(chan error, 1)
	go func() { done <- s.send(addr, auth, envelopeFrom, rcpts, raw) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send via %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send via %s: %w", addr, ctx.Err())
	}
}

func addrOnly(s string) (string, error) {
	a, err := mail.ParseAddress(s)
	if err != nil {
		return "", err
	}
	return a.Address, nil
}
