// Package httpx holds the small HTTP client helpers shared by the provider
// adapters.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/vadimbarashkov/affiliate-publisher/internal/fetch"
)

// StatusError is a non-2xx provider response that is not retryable.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// DoJSON issues a JSON request and decodes the JSON response into out (out
// may be nil). Rate-limit and server-side failures are classified as
// retryable for the fetch layer; other non-2xx statuses surface as
// *StatusError.
func DoJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body, out any) error {
	const op = "httpx.DoJSON"

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request body: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, fetch.Transient(err))
	}
	defer resp.Body.Close()

	if err := classify(resp); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: failed to decode response body: %w", op, err)
		}
	}

	return nil
}

func classify(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fetch.RateLimited(err)
	case resp.StatusCode >= 500:
		return fetch.Transient(err)
	default:
		return err
	}
}
