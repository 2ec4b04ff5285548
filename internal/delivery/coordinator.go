// Package delivery runs the post-turn cycle for a session: merge the live log
// against the durable transcript, persist what is new, render the document,
// upload both artifacts and re-arm the delayed notification.
//
// Every step is best effort. Failures are logged and reported in the
// CycleReport but never reach the user-facing stream; the next cycle's merge
// picks up whatever was not persisted.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/soyeahso/chatrelay/internal/conversation"
	"github.com/soyeahso/chatrelay/internal/domain"
	"github.com/soyeahso/chatrelay/internal/hooks"
	"github.com/soyeahso/chatrelay/internal/logging"
	"github.com/soyeahso/chatrelay/internal/notify"
	"github.com/soyeahso/chatrelay/internal/remote"
	"github.com/soyeahso/chatrelay/internal/render"
	"github.com/soyeahso/chatrelay/internal/store"
)

// Error classes attached to cycle step failures.
var (
	ErrPersistence = errors.New("persistence failure")
	ErrDelivery    = errors.New("delivery failure")
)

// Notifier arms the delayed notification for a session.
type Notifier interface {
	Arm(sessionID string, doc notify.Document) time.Time
}

// Deps are the collaborators of a Coordinator. Remote and Notifier may be
// nil to disable uploads and notifications.
type Deps struct {
	Log      *conversation.Registry
	Store    store.TranscriptStore
	Renderer render.Renderer
	Remote   remote.Store
	Notifier Notifier
	Hooks    *hooks.Manager
	Logger   *logging.Logger
}

// Options tune a Coordinator.
type Options struct {
	UploadTimeout time.Duration
	NamePrefix    string
}

// Upload is the outcome of one artifact upload.
type Upload struct {
	Name string
	Err  error
}

// CycleReport summarizes one delivery cycle.
type CycleReport struct {
	SessionID string
	NewTurns  int
	Persisted bool
	Rendered  bool
	Document  string
	Uploads   []Upload
	Armed     bool
	FireAt    time.Time
	Err       error
}

// Coordinator runs delivery cycles, one at a time per session.
type Coordinator struct {
	deps  Deps
	opts  Options
	locks *conversation.KeyedMutex
	log   *logging.Logger

	mu       sync.Mutex
	closed   bool
	attached *hooks.Manager
	wg       sync.WaitGroup
}

const hookName = "delivery"

// New creates a coordinator.
func New(deps Deps, opts Options) *Coordinator {
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = time.Minute
	}
	return &Coordinator{
		deps:  deps,
		opts:  opts,
		locks: conversation.NewKeyedMutex(),
		log:   deps.Logger.Sub("delivery"),
	}
}

// Names returns the remote object names for a session's transcript and
// rendered document.
func (c *Coordinator) Names(sessionID string) (transcript, document string) {
	base := c.opts.NamePrefix + sessionID
	return base + ".json", base + "." + c.deps.Renderer.Extension()
}

// Attach runs a cycle in the background whenever a turn completes. Close
// detaches it again.
func (c *Coordinator) Attach(hm *hooks.Manager) {
	c.mu.Lock()
	c.attached = hm
	c.mu.Unlock()
	hm.On(hooks.EventTurnCompleted, hookName, func(ctx context.Context, p hooks.Payload) error {
		id := p.SessionID()
		if id == "" {
			return fmt.Errorf("turn_completed without session id")
		}
		c.Go(context.WithoutCancel(ctx), id)
		return nil
	})
}

// Go starts a cycle for the session without waiting for it. It is a no-op
// after Close.
func (c *Coordinator) Go(ctx context.Context, sessionID string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.Deliver(ctx, sessionID)
	}()
}

// Close stops accepting cycles and waits for running ones.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	hm := c.attached
	c.attached = nil
	c.mu.Unlock()
	if hm != nil {
		hm.Off(hooks.EventTurnCompleted, hookName)
	}
	c.wg.Wait()
}

// Deliver runs one full cycle for the session and reports what happened.
func (c *Coordinator) Deliver(ctx context.Context, sessionID string) CycleReport {
	unlock := c.locks.Lock(sessionID)
	defer unlock()

	start := time.Now()
	log := c.log.With("sessionId", sessionID)
	report := CycleReport{SessionID: sessionID}
	var errs []error
	fail := func(step string, class, err error) {
		log.Error().Err(err).Str("step", step).Msg("delivery step failed")
		errs = append(errs, fmt.Errorf("%s: %w: %w", step, class, err))
	}

	snap, err := c.deps.Log.Snapshot(sessionID)
	if err != nil {
		report.Err = err
		return report
	}
	// A round still streaming is picked up by the cycle its reply triggers.
	snap = conversation.CompleteRounds(snap)

	// Merge and persist.
	transcript := domain.Transcript{SessionID: sessionID, Turns: snap}
	persisted, err := c.deps.Store.Load(ctx, sessionID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		err = nil
	case err != nil:
		fail("load", ErrPersistence, err)
	}
	if err == nil {
		fresh := conversation.NewTurns(snap, persisted.Turns)
		report.NewTurns = len(fresh)
		transcript.Turns = append(append([]domain.Turn(nil), persisted.Turns...), fresh...)
		transcript.UpdatedAt = lastTimestamp(transcript.Turns)
		if len(fresh) > 0 {
			if err := c.deps.Store.Save(ctx, transcript); err != nil {
				fail("persist", ErrPersistence, err)
			} else {
				report.Persisted = true
			}
		}
	}

	// Render the completed rounds.
	transcriptName, documentName := c.Names(sessionID)
	artifact, err := c.deps.Renderer.Render(sessionID, snap)
	if err != nil {
		fail("render", ErrDelivery, err)
	} else {
		report.Rendered = true
		report.Document = documentName
	}

	// Upload both artifacts independently.
	if c.deps.Remote != nil {
		data, err := json.MarshalIndent(transcript, "", "  ")
		if err != nil {
			fail("encode", ErrDelivery, err)
		}
		var jobs []upload
		if err == nil {
			jobs = append(jobs, upload{name: transcriptName, contentType: "application/json", data: data})
		}
		if report.Rendered {
			jobs = append(jobs, upload{name: documentName, contentType: artifact.ContentType, data: artifact.Data})
		}
		report.Uploads = c.uploadAll(ctx, jobs)
		for _, u := range report.Uploads {
			if u.Err != nil {
				fail("upload "+u.Name, ErrDelivery, u.Err)
			}
		}
	}

	// Re-arm with the latest document. A failed render leaves any earlier
	// arming in place.
	if report.Rendered && c.deps.Notifier != nil {
		report.FireAt = c.deps.Notifier.Arm(sessionID, notify.Document{
			Name:        documentName,
			ContentType: artifact.ContentType,
			Data:        artifact.Data,
		})
		report.Armed = !report.FireAt.IsZero()
	}

	report.Err = errors.Join(errs...)
	c.emit(ctx, report)
	log.Debug().
		Int("newTurns", report.NewTurns).
		Bool("persisted", report.Persisted).
		Bool("rendered", report.Rendered).
		Int("uploads", len(report.Uploads)).
		Bool("armed", report.Armed).
		Dur("took", time.Since(start)).
		Msg("delivery cycle finished")
	return report
}

type upload struct {
	name        string
	contentType string
	data        []byte
}

func (c *Coordinator) uploadAll(ctx context.Context, jobs []upload) []Upload {
	results := make([]Upload, len(jobs))
	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			uctx, cancel := context.WithTimeout(ctx, c.opts.UploadTimeout)
			defer cancel()
			results[i] = Upload{Name: job.name, Err: c.deps.Remote.Put(uctx, job.name, job.contentType, job.data)}
		}()
	}
	wg.Wait()
	return results
}

// emit reports the cycle outcome without waiting on subscribers.
func (c *Coordinator) emit(ctx context.Context, r CycleReport) {
	if c.deps.Hooks == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	data := map[string]any{
		hooks.KeySessionID: r.SessionID,
		hooks.KeyDocument:  r.Document,
	}
	if r.Err != nil {
		data[hooks.KeyError] = r.Err.Error()
		c.deps.Hooks.EmitAsync(ctx, hooks.EventDeliveryFailed, data)
		return
	}
	c.deps.Hooks.EmitAsync(ctx, hooks.EventDeliveryCompleted, data)
}

func lastTimestamp(turns []domain.Turn) time.Time {
	var latest time.Time
	for _, t := range turns {
		if t.Timestamp.After(latest) {
			latest = t.Timestamp
		}
	}
	return latest
}
