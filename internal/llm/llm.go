// Package llm adapts the text-generation provider. The provider signals
// quota and length problems in the response body rather than via status
// codes; those sentinels are decoded here, once, into typed errors.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/vadimbarashkov/affiliate-publisher/internal/fetch"
)

const (
	sentinelQuotaExceeded  = "insufficient credits"
	sentinelLengthExceeded = "prompt length exceeded"
)

var (
	// ErrQuotaExceeded is decoded from the provider's in-band credit sentinel.
	ErrQuotaExceeded = errors.New("llm: quota exceeded")
	// ErrLengthExceeded is decoded from the provider's in-band length sentinel.
	ErrLengthExceeded = errors.New("llm: prompt length exceeded")
	// ErrDisabled is returned by the no-op client used when no provider is
	// configured; callers fall back to deterministic defaults.
	ErrDisabled = errors.New("llm: provider not configured")
)

// Client generates text for a prompt.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// DecodeSentinel reports the typed error a response body signals in-band,
// or nil when the body is ordinary text.
func DecodeSentinel(text string) error {
	lower := strings.ToLower(text)

	if strings.Contains(lower, sentinelQuotaExceeded) {
		return ErrQuotaExceeded
	}
	if strings.Contains(lower, sentinelLengthExceeded) {
		return ErrLengthExceeded
	}

	return nil
}

// frame surrounds the prompt with the provider's sentinel instructions so
// in-band errors stay machine-detectable.
func frame(prompt string) string {
	parts := []string{
		fmt.Sprintf("Respond with %q if there is no more credit for usage.", sentinelQuotaExceeded),
		fmt.Sprintf("Respond with %q if the input plus output length is too long. %s", sentinelLengthExceeded, prompt),
		"Do not include the prompt in the response.",
	}

	return strings.Join(parts, "\n")
}

// GenAI is a Client backed by the Google GenAI API.
type GenAI struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

func NewGenAI(ctx context.Context, apiKey, model string, logger *slog.Logger) (*GenAI, error) {
	const op = "llm.NewGenAI"

	if apiKey == "" {
		return nil, fmt.Errorf("%s: api key is required", op)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create client: %w", op, err)
	}

	return &GenAI{
		client: client,
		model:  model,
		logger: logger,
	}, nil
}

// Generate asks the provider for text. A response carrying an in-band
// sentinel is retried once before the typed error surfaces; transport
// failures are marked transient for the fetch layer.
func (g *GenAI) Generate(ctx context.Context, prompt string) (string, error) {
	const op = "llm.GenAI.Generate"

	framed := frame(prompt)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(framed), nil)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, fetch.Transient(err))
		}

		text := strings.TrimSpace(result.Text())
		if err := DecodeSentinel(text); err != nil {
			lastErr = err
			g.logger.Warn("provider signaled in-band error, retrying once",
				slog.String("op", op), slog.Any("err", err))
			continue
		}

		return text, nil
	}

	return "", fmt.Errorf("%s: %w", op, lastErr)
}

// Disabled is a Client for runs without a configured provider. Every call
// fails with ErrDisabled so composers use their fallbacks.
type Disabled struct{}

func (Disabled) Generate(ctx context.Context, prompt string) (string, error) {
	return "", ErrDisabled
}
