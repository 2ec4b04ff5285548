// Package notify schedules the delayed mail that carries a session's latest
// rendered document. Each session has at most one pending notification;
// arming again replaces it.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/soyeahso/chatrelay/internal/hooks"
	"github.com/soyeahso/chatrelay/internal/logging"
	"github.com/soyeahso/chatrelay/internal/mail"
)

// ErrMailDisabled is returned by SendNow when no mail transport is configured.
var ErrMailDisabled = errors.New("mail disabled")

// Document is the rendered artifact a notification delivers.
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}

// Config controls notification timing and addressing.
type Config struct {
	Delay   time.Duration
	Timeout time.Duration
	To      []string
	From    string
	Subject string // may contain {session}
}

// Pending describes an armed notification.
type Pending struct {
	SessionID string
	Document  string
	FireAt    time.Time
}

type pending struct {
	timer  *time.Timer
	gen    uint64
	doc    Document
	fireAt time.Time
}

// Scheduler owns one cancellable timer per session.
type Scheduler struct {
	cfg    Config
	sender mail.Sender
	hooks  *hooks.Manager
	log    *logging.Logger

	mu       sync.Mutex
	pending  map[string]*pending
	gen      uint64
	closed   bool
	inflight sync.WaitGroup
}

// New creates a scheduler. hooks may be nil.
func New(cfg Config, sender mail.Sender, hm *hooks.Manager, log *logging.Logger) *Scheduler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	return &Scheduler{
		cfg:     cfg,
		sender:  sender,
		hooks:   hm,
		log:     log.Sub("notify"),
		pending: make(map[string]*pending),
	}
}

// Arm schedules doc to be mailed after the configured delay, cancelling any
// notification already pending for the session. It returns the fire time.
func (s *Scheduler) Arm(sessionID string, doc Document) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return time.Time{}
	}
	if old, ok := s.pending[sessionID]; ok {
		old.timer.Stop()
	}

	s.gen++
	gen := s.gen
	p := &pending{gen: gen, doc: doc, fireAt: time.Now().Add(s.cfg.Delay)}
	p.timer = time.AfterFunc(s.cfg.Delay, func() { s.fire(sessionID, gen) })
	s.pending[sessionID] = p

	s.log.Debug().
		Str("sessionId", sessionID).
		Str("document", doc.Name).
		Time("fireAt", p.fireAt).
		Msg("notification armed")
	return p.fireAt
}

// Cancel drops the pending notification for the session. It reports whether
// one was pending.
func (s *Scheduler) Cancel(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[sessionID]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(s.pending, sessionID)
	return true
}

// Pending returns the armed notification for a session, if any.
func (s *Scheduler) Pending(sessionID string) (Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[sessionID]
	if !ok {
		return Pending{}, false
	}
	return Pending{SessionID: sessionID, Document: p.doc.Name, FireAt: p.fireAt}, true
}

// List returns all armed notifications ordered by fire time.
func (s *Scheduler) List() []Pending {
	s.mu.Lock()
	out := make([]Pending, 0, len(s.pending))
	for id, p := range s.pending {
		out = append(out, Pending{SessionID: id, Document: p.doc.Name, FireAt: p.fireAt})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out
}

// Close stops all pending timers and waits for sends already in progress.
// Notifications that have not fired are dropped.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for id, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, id)
	}
	s.mu.Unlock()

	s.inflight.Wait()
}

func (s *Scheduler) fire(sessionID string, gen uint64) {
	s.mu.Lock()
	p, ok := s.pending[sessionID]
	// A stopped timer may still run if it fired just before Stop; the
	// generation check drops it once a newer arming has replaced it.
	if !ok || p.gen != gen || s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.pending, sessionID)
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	if s.sender == nil {
		s.log.Debug().Str("sessionId", sessionID).Msg("mail disabled, notification dropped")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	s.send(ctx, sessionID, p.doc)
}

// SendNow mails doc immediately and cancels any pending notification for
// the session.
func (s *Scheduler) SendNow(ctx context.Context, sessionID string, doc Document) error {
	if s.sender == nil {
		return ErrMailDisabled
	}
	s.Cancel(sessionID)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	return s.send(ctx, sessionID, doc)
}

func (s *Scheduler) send(ctx context.Context, sessionID string, doc Document) error {
	log := s.log.With("sessionId", sessionID)
	if err := s.sender.Send(ctx, s.message(sessionID, doc)); err != nil {
		log.Error().Err(err).Str("step", "mail").Str("document", doc.Name).Msg("notification failed")
		if s.hooks != nil {
			s.hooks.EmitAsync(context.WithoutCancel(ctx), hooks.EventDeliveryFailed, map[string]any{
				hooks.KeySessionID: sessionID,
				hooks.KeyDocument:  doc.Name,
				hooks.KeyError:     err.Error(),
			})
		}
		return fmt.Errorf("notify %s: %w", sessionID, err)
	}

	log.Info().Str("document", doc.Name).Str("via", s.sender.Name()).Msg("notification sent")
	if s.hooks != nil {
		s.hooks.EmitAsync(context.WithoutCancel(ctx), hooks.EventNotificationSent, map[string]any{
			hooks.KeySessionID: sessionID,
			hooks.KeyDocument:  doc.Name,
		})
	}
	return nil
}

func (s *Scheduler) message(sessionID string, doc Document) mail.Message {
	return mail.Message{
		From:    s.cfg.From,
		To:      s.cfg.To,
		Subject: mail.Subject(s.cfg.Subject, sessionID),
		Body:    "Session " + sessionID + "\n\nThe latest transcript is attached as " + doc.Name + ".\n",
		Attachments: []mail.Attachment{
			{Filename: doc.Name, ContentType: doc.ContentType, Data: doc.Data},
		},
	}
}
