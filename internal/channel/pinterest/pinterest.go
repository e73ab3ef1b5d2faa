// Package pinterest publishes composed content as pins through the Pinterest
// API. The channel mandates media: a link without an image is skipped, never
// failed.
package pinterest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vadimbarashkov/affiliate-publisher/internal/channel"
	"github.com/vadimbarashkov/affiliate-publisher/internal/fetch"
	"github.com/vadimbarashkov/affiliate-publisher/internal/llm"
	"github.com/vadimbarashkov/affiliate-publisher/internal/models"
	"github.com/vadimbarashkov/affiliate-publisher/pkg/httpx"
)

const (
	defaultBaseURL = "https://api.pinterest.com/v5"

	// API limits, see the pin object reference.
	titleMaxLen       = 100
	descriptionMaxLen = 500
)

type Config struct {
	BaseURL           string
	AccessToken       string
	TitleMaxLen       int
	DescriptionMaxLen int
}

type Publisher struct {
	cfg        Config
	llm        llm.Client
	httpClient *http.Client
	policy     fetch.Policy
	logger     *slog.Logger
}

func New(cfg Config, llmClient llm.Client, policy fetch.Policy, logger *slog.Logger) *Publisher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.TitleMaxLen <= 0 {
		cfg.TitleMaxLen = titleMaxLen
	}
	// A budget that cannot even hold the disclosure is a misconfiguration;
	// honoring it would advertise a negative budget upstream and overflow
	// the API cap once the disclosure is appended.
	if cfg.DescriptionMaxLen <= disclosureOverhead() {
		cfg.DescriptionMaxLen = descriptionMaxLen
	}

	return &Publisher{
		cfg:        cfg,
		llm:        llmClient,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		policy:     policy,
		logger:     logger,
	}
}

func (p *Publisher) Name() string {
	return "pinterest"
}

// disclosureOverhead is what appending the disclosure to a pin description
// costs: the disclosure itself plus the blank line separating it.
func disclosureOverhead() int {
	return len([]rune(channel.Disclosure)) + 2
}

func (p *Publisher) Constraints() models.ChannelConstraints {
	return models.ChannelConstraints{
		TitleMaxLen: p.cfg.TitleMaxLen,
		// The disclosure shares the description budget with generated text.
		DescriptionMaxLen: p.cfg.DescriptionMaxLen - disclosureOverhead(),
		MaxKeywords:       3,
		RequiresMedia:     true,
		MediaPerItem:      1,
	}
}

func (p *Publisher) Publish(ctx context.Context, content models.ComposedContent, link models.AffiliateLink) models.PublishAttempt {
	const op = "channel.pinterest.Publisher.Publish"

	if len(content.MediaURLs) == 0 {
		return models.Skipped(p.Name(), "no media available and pins require an image")
	}

	boardID, err := p.getOrCreateBoard(ctx, link.PrimaryCategory())
	if err != nil {
		return models.Failed(p.Name(), fmt.Errorf("%s: %w", op, err))
	}

	payload := map[string]any{
		"board_id":    boardID,
		"title":       content.Title,
		"description": content.Description + "\n\n" + channel.Disclosure,
		"link":        link.URL,
		"media_source": map[string]string{
			"source_type": "image_url",
			"url":         content.MediaURLs[0],
		},
	}

	type pinResponse struct {
		ID string `json:"id"`
	}

	pin, err := fetch.Do(ctx, p.policy, func(ctx context.Context) (pinResponse, error) {
		var resp pinResponse
		if err := httpx.DoJSON(ctx, p.httpClient, http.MethodPost, p.cfg.BaseURL+"/pins", p.headers(), payload, &resp); err != nil {
			return pinResponse{}, err
		}
		return resp, nil
	})
	if err != nil {
		return models.Failed(p.Name(), fmt.Errorf("%s: failed to create pin: %w", op, err))
	}

	p.logger.Info("pin created",
		slog.String("pin_id", pin.ID), slog.String("url", link.URL))

	return models.Created(p.Name(), pin.ID)
}

type board struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type boardList struct {
	Items []board `json:"items"`
}

// getOrCreateBoard resolves the board id for name, creating the board when
// the account does not have it yet.
func (p *Publisher) getOrCreateBoard(ctx context.Context, name string) (string, error) {
	const op = "channel.pinterest.Publisher.getOrCreateBoard"

	listURL := fmt.Sprintf("%s/boards?%s", p.cfg.BaseURL, url.Values{"page_size": {"250"}}.Encode())

	existing, err := fetch.Do(ctx, p.policy, func(ctx context.Context) (boardList, error) {
		var list boardList
		if err := httpx.DoJSON(ctx, p.httpClient, http.MethodGet, listURL, p.headers(), nil, &list); err != nil {
			return boardList{}, err
		}
		return list, nil
	})
	if err != nil {
		return "", fmt.Errorf("%s: failed to list boards: %w", op, err)
	}

	for _, b := range existing.Items {
		if strings.EqualFold(b.Name, name) {
			return b.ID, nil
		}
	}

	created, err := fetch.Do(ctx, p.policy, func(ctx context.Context) (board, error) {
		var b board
		payload := map[string]string{
			"name":        name,
			"description": p.boardDescription(ctx, name),
		}
		if err := httpx.DoJSON(ctx, p.httpClient, http.MethodPost, p.cfg.BaseURL+"/boards", p.headers(), payload, &b); err != nil {
			return board{}, err
		}
		return b, nil
	})
	if err != nil {
		return "", fmt.Errorf("%s: failed to create board: %w", op, err)
	}

	p.logger.Info("board created",
		slog.String("board_id", created.ID), slog.String("name", name))

	return created.ID, nil
}

func (p *Publisher) boardDescription(ctx context.Context, name string) string {
	const op = "channel.pinterest.Publisher.boardDescription"

	prompt := fmt.Sprintf("Write a short, inviting Pinterest board description about %s. At most 300 characters. Return the description only.", name)

	text, err := fetch.Do(ctx, p.policy, func(ctx context.Context) (string, error) {
		return p.llm.Generate(ctx, prompt)
	})
	if err != nil {
		p.logger.Warn("board description generation failed, falling back to template",
			slog.String("op", op), slog.String("name", name), slog.Any("err", err))
		return fmt.Sprintf("Ideas and inspiration about %s.", name)
	}

	return strings.TrimSpace(text)
}

func (p *Publisher) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.cfg.AccessToken}
}
