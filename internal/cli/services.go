package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/soyeahso/chatrelay/internal/agent"
	"github.com/soyeahso/chatrelay/internal/config"
	"github.com/soyeahso/chatrelay/internal/conversation"
	"github.com/soyeahso/chatrelay/internal/delivery"
	"github.com/soyeahso/chatrelay/internal/hooks"
	"github.com/soyeahso/chatrelay/internal/llm"
	"github.com/soyeahso/chatrelay/internal/mail"
	"github.com/soyeahso/chatrelay/internal/notify"
	"github.com/soyeahso/chatrelay/internal/remote"
	"github.com/soyeahso/chatrelay/internal/render"
	"github.com/soyeahso/chatrelay/internal/store"
)

// services holds everything a relay process wires together.
type services struct {
	cfg         config.Config
	hooks       *hooks.Manager
	sessions    *conversation.Registry
	store       store.TranscriptStore
	renderer    render.Renderer
	remote      remote.Store
	sender      mail.Sender
	scheduler   *notify.Scheduler
	coordinator *delivery.Coordinator
	runner      *agent.Runner
}

// buildServices constructs the relay's components from cfg. The model
// runner is only built when withRunner is set, so offline commands work
// without provider credentials.
func buildServices(ctx context.Context, cfg config.Config, withRunner bool) (*services, error) {
	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("creating data dirs: %w", err)
	}

	s := &services{
		cfg:      cfg,
		hooks:    hooks.NewManager(log),
		sessions: conversation.NewRegistry(),
	}

	var err error
	s.store, err = store.OpenTranscripts(cfg.Store, paths, log)
	if err != nil {
		return nil, fmt.Errorf("opening transcript store: %w", err)
	}

	s.renderer, err = render.New(cfg.Render.Format, cfg.Render.Locale)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.remote, err = remote.Open(ctx, cfg.Remote, paths)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("opening remote store: %w", err)
	}

	s.sender, err = mail.Open(ctx, cfg.Mail, paths)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("opening mail transport: %w", err)
	}

	s.scheduler = notify.New(notify.Config{
		Delay:   cfg.Delivery.NotifyDelay(),
		Timeout: cfg.Delivery.MailTimeout(),
		To:      splitAddresses(cfg.Mail.To),
		From:    cfg.Mail.From,
		Subject: cfg.Mail.Subject,
	}, s.sender, s.hooks, log)

	deps := delivery.Deps{
		Log:      s.sessions,
		Store:    s.store,
		Renderer: s.renderer,
		Remote:   s.remote,
		Hooks:    s.hooks,
		Logger:   log,
	}
	if s.sender != nil {
		deps.Notifier = s.scheduler
	}
	s.coordinator = delivery.New(deps, delivery.Options{
		UploadTimeout: cfg.Delivery.UploadTimeout(),
		NamePrefix:    cfg.Delivery.NamePrefix,
	})

	if withRunner {
		registry, err := llm.NewRegistryFromConfig(cfg.LLM, log)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("model providers: %w", err)
		}
		log.Info().Strs("providers", registry.List()).Msg("model providers available")

		s.runner = agent.NewRunner(
			agent.RunnerConfig{
				Model:        cfg.LLM.Model,
				Instructions: cfg.LLM.Instructions,
				MaxTokens:    cfg.LLM.MaxTokens,
				Temperature:  cfg.LLM.Temperature,
				Timeout:      cfg.LLM.Timeout(),
			},
			agent.NewFailoverClient(registry, log),
			s.sessions,
			s.store,
			s.hooks,
			log,
		)
	}
	return s, nil
}

// Close drains in-flight delivery cycles and pending sends, then releases
// the store. Notifications that have not fired yet are dropped.
func (s *services) Close() {
	if s.coordinator != nil {
		s.coordinator.Close()
	}
	if s.scheduler != nil {
		s.scheduler.Close()
	}
	s.hooks.Wait()
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Warn().Err(err).Msg("closing transcript store")
		}
	}
}

func splitAddresses(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
