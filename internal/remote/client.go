// Package remote is a single-attempt adapter for the hosted transcription
// API. It classifies failures so the router can tell transient network
// trouble apart from credential or quota misconfiguration; it never retries
// on its own.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ditado/ditado/internal/routing"
)

// Config holds the remote endpoint and credential surface.
type Config struct {
	BaseURL string // e.g. https://api.openai.com/v1
	Model   string
	APIKey  string
	Timeout time.Duration // per-call bound; zero means 30s
}

// Client issues one bounded transcription call per request.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient builds a client around the standard HTTP transport. The
// per-call timeout is enforced through the request context so caller
// cancellation and the configured bound compose.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	return &Client{cfg: cfg, http: &http.Client{}}
}

// transcriptionResponse mirrors the API's JSON body.
type transcriptionResponse struct {
	Text string `json:"text"`
}

// errorResponse mirrors the API's error envelope, when present.
type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Transcribe uploads the audio once and returns the transcript or a
// classified *routing.RemoteError.
func (c *Client) Transcribe(ctx context.Context, req routing.Request) (routing.Transcript, error) {
	file, err := os.Open(req.AudioPath)
	if err != nil {
		return routing.Transcript{}, &routing.RemoteError{
			Kind: routing.RemoteService,
			Err:  fmt.Errorf("open audio %q: %w", req.AudioPath, err),
		}
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(req.AudioPath))
	if err != nil {
		return routing.Transcript{}, &routing.RemoteError{Kind: routing.RemoteService, Err: err}
	}
	if _, err := io.Copy(part, file); err != nil {
		return routing.Transcript{}, &routing.RemoteError{
			Kind: routing.RemoteService,
			Err:  fmt.Errorf("read audio: %w", err),
		}
	}
	_ = writer.WriteField("model", c.cfg.Model)
	_ = writer.WriteField("response_format", "json")
	if req.Language != "" {
		_ = writer.WriteField("language", req.Language)
	}
	if req.Prompt != "" {
		_ = writer.WriteField("prompt", req.Prompt)
	}
	if err := writer.Close(); err != nil {
		return routing.Transcript{}, &routing.RemoteError{Kind: routing.RemoteService, Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/audio/transcriptions"
	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, &body)
	if err != nil {
		return routing.Transcript{}, &routing.RemoteError{Kind: routing.RemoteService, Err: err}
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		// Transport failures and timeouts are the only fallback-eligible kind.
		return routing.Transcript{}, &routing.RemoteError{
			Kind: routing.RemoteNetwork,
			Err:  fmt.Errorf("request: %w", err),
		}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return routing.Transcript{}, &routing.RemoteError{
			Kind: routing.RemoteNetwork,
			Err:  fmt.Errorf("read response: %w", err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return routing.Transcript{}, &routing.RemoteError{
			Kind: classifyStatus(resp.StatusCode),
			Err:  fmt.Errorf("http %d: %s", resp.StatusCode, apiErrorMessage(payload)),
		}
	}

	var parsed transcriptionResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return routing.Transcript{}, &routing.RemoteError{
			Kind: routing.RemoteService,
			Err:  fmt.Errorf("decode response: %w", err),
		}
	}

	return routing.Transcript{Text: strings.TrimSpace(parsed.Text)}, nil
}

// classifyStatus maps HTTP status to the router's failure taxonomy.
func classifyStatus(status int) routing.RemoteErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return routing.RemoteAuth
	case status == http.StatusTooManyRequests:
		return routing.RemoteQuota
	default:
		return routing.RemoteService
	}
}

// apiErrorMessage extracts the API error message when the body carries one.
func apiErrorMessage(payload []byte) string {
	var parsed errorResponse
	if err := json.Unmarshal(payload, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	text := strings.TrimSpace(string(payload))
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	if text == "" {
		return "(empty body)"
	}
	return text
}

// IsTimeout reports whether an error chain ends in a deadline expiry.
// Doctor uses it to distinguish a slow endpoint from a misconfigured one.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
