package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/dgplabs/dgpscan/internal/capture"
	"github.com/dgplabs/dgpscan/internal/config"
)

// Analyzer turns a fingerprint scan into a prediction.
type Analyzer interface {
	Analyze(ctx context.Context, img capture.Image) (Result, error)
}

// Credential yields the provider API key, or "" when none is configured. It
// is consulted on every call.
type Credential func() string

// EnvCredential reads the key from the named environment variable.
func EnvCredential(name string) Credential {
	return func() string { return strings.TrimSpace(os.Getenv(name)) }
}

// Client calls the Gemini generateContent endpoint. One Analyze is exactly one
// POST; nothing is retried or cached.
type Client struct {
	endpoint    string
	model       string
	temperature float64
	timeout     time.Duration
	credential  Credential
	http        *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithCredential(cred Credential) Option {
	return func(c *Client) { c.credential = cred }
}

func NewClient(cfg config.GeminiConfig, opts ...Option) *Client {
	c := &Client{
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		credential:  EnvCredential(cfg.APIKeyEnv),
		http:        &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Analyze(ctx context.Context, img capture.Image) (Result, error) {
	key := c.credential()
	if key == "" {
		return Result{}, newError(KindConfig, ErrMissingCredential)
	}

	text, err := c.generate(ctx, key, img)
	if err != nil {
		log.Printf("DGP analysis error: %v", err)
		return Result{}, err
	}
	if strings.TrimSpace(text) == "" {
		err := newError(KindEmpty, ErrNoData)
		log.Printf("DGP analysis error: %v", err)
		return Result{}, err
	}

	r, err := ParseResult(text)
	if err != nil {
		log.Printf("DGP analysis error: %v (response %q)", err, truncate(text, 512))
		return Result{}, err
	}
	return r, nil
}

func (c *Client) generate(ctx context.Context, key string, img capture.Image) (string, error) {
	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = capture.DefaultMIMEType
	}
	body, err := json.Marshal(generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{InlineData: &inlineData{MIMEType: mimeType, Data: img.Base64()}},
				{Text: instruction},
			},
		}},
		GenerationConfig: generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   ResultSchema(),
			Temperature:      c.temperature,
		},
	})
	if err != nil {
		return "", newError(KindTransport, fmt.Errorf("encode request: %w", err))
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, url.PathEscape(c.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", newError(KindTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", key)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", newError(KindCanceled, err)
		}
		return "", newError(KindTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", newError(KindTransport, fmt.Errorf("provider status %d %s: %s", resp.StatusCode, apiErr.Error.Status, apiErr.Error.Message))
		}
		return "", newError(KindTransport, fmt.Errorf("provider status %d: %s", resp.StatusCode, string(data)))
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", newError(KindTransport, fmt.Errorf("decode response: %w", err))
	}
	if len(parsed.Candidates) == 0 {
		if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
			return "", newError(KindEmpty, fmt.Errorf("%w: prompt blocked (%s)", ErrNoData, parsed.PromptFeedback.BlockReason))
		}
		return "", nil
	}

	parts := parsed.Candidates[0].Content.Parts
	texts := lo.FilterMap(parts, func(p responsePart, _ int) (string, bool) {
		return p.Text, !p.Thought && p.Text != ""
	})
	return strings.Join(texts, ""), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
