package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/soyeahso/chatrelay/internal/llm"
	"github.com/soyeahso/chatrelay/internal/logging"
)

// FailoverClient tries the default provider first and then each failover
// provider in order, moving on only when a stream could not be opened with
// a retryable error. Once a stream is open it is never switched.
type FailoverClient struct {
	registry *llm.Registry
	log      *logging.Logger
}

// NewFailoverClient creates a failover client over the registry's default
// provider and failover chain.
func NewFailoverClient(registry *llm.Registry, log *logging.Logger) *FailoverClient {
	return &FailoverClient{
		registry: registry,
		log:      log.Sub("failover"),
	}
}

// Name returns the provider name.
func (f *FailoverClient) Name() string { return "failover" }

func (f *FailoverClient) chain(model string) ([]llm.Client, error) {
	primary, err := f.registry.Resolve(model)
	if err != nil {
		return nil, err
	}
	chain := []llm.Client{primary}
	for _, c := range f.registry.Failovers() {
		if c != primary {
			chain = append(chain, c)
		}
	}
	return chain, nil
}

// Stream opens a stream on the first provider that accepts the request.
// Each provider streams with its own configured model.
func (f *FailoverClient) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
	chain, err := f.chain(req.Model)
	if err != nil {
		return nil, err
	}
	req.Model = ""

	var lastErr error
	for i, client := range chain {
		ch, err := client.Stream(ctx, req)
		if err == nil {
			if i > 0 {
				f.log.Info().Str("provider", client.Name()).Msg("streaming from failover provider")
			}
			return ch, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, err
		}
		if isRetryable(err) {
			f.log.Warn().
				Str("provider", client.Name()).
				Err(err).
				Msg("retryable stream error, trying next provider")
			continue
		}
		return nil, err
	}

	return nil, fmt.Errorf("all providers failed: %w", lastErr)
}

// isRetryable checks if the error suggests trying another provider.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var provErr *llm.ProviderError
	if errors.As(err, &provErr) {
		switch provErr.Code {
		case 401, 403, 404, 429, 500, 502, 503, 504, 529:
			return true
		}
	}

	msg := err.Error()
	return strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "capacity") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout")
}
