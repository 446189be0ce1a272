/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package gemini is a client of the Gemini generateContent API that sends every call through throttle.Limiter.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"go.uber.org/atomic"

	"github.com/pulsefit/aithrottle/httpclient"
	"github.com/pulsefit/aithrottle/log"
	"github.com/pulsefit/aithrottle/throttle"
	"github.com/pulsefit/aithrottle/upstream"
)

const apiKeyHeader = "x-goog-api-key"

// requestType is used in HTTP client logs and metrics.
const requestType = "gemini-generate-content"

// maxErrorBodySize bounds the part of an error response that is read.
const maxErrorBodySize = 64 * 1024

// ErrEmptyRequest is returned when a request has no contents.
var ErrEmptyRequest = errors.New("gemini: request has no contents")

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client. By default httpclient.NewClient with default config is used.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.FieldLogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client calls the Gemini API. All calls are admitted by the shared limiter.
type Client struct {
	cfg        Config
	limiter    *throttle.Limiter
	httpClient *http.Client
	logger     log.FieldLogger

	requests         *atomic.Int64
	promptTokens     *atomic.Int64
	candidatesTokens *atomic.Int64
	totalTokens      *atomic.Int64
}

// NewClient creates a new Client.
func NewClient(cfg *Config, limiter *throttle.Limiter, opts ...ClientOption) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("gemini: config is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if limiter == nil {
		return nil, errors.New("gemini: limiter is required")
	}
	c := &Client{
		cfg:              *cfg,
		limiter:          limiter,
		logger:           log.NewDisabledLogger(),
		requests:         atomic.NewInt64(0),
		promptTokens:     atomic.NewInt64(0),
		candidatesTokens: atomic.NewInt64(0),
		totalTokens:      atomic.NewInt64(0),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = httpclient.NewClientWithOpts(
			httpclient.NewDefaultConfig(), c.logger, nil, httpclient.Opts{RequestType: requestType})
	}
	return c, nil
}

// GenerateContent submits req through the limiter and returns the model response.
// The cost passed to the limiter is EstimateTokens(req) unless opts contain throttle.WithCost.
// Errors are classified with the upstream taxonomy, rate limited calls are retried by the limiter.
func (c *Client) GenerateContent(
	ctx context.Context, req *GenerateRequest, opts ...throttle.SubmitOption,
) (*GenerateResponse, error) {
	if req == nil || len(req.Contents) == 0 {
		return nil, ErrEmptyRequest
	}
	body := *req
	if body.GenerationConfig == nil && !c.cfg.Generation.isZero() {
		gen := c.cfg.Generation
		body.GenerationConfig = &gen
	}
	payload, err := json.Marshal(&body)
	if err != nil {
		return nil, fmt.Errorf("gemini: encode request: %w", err)
	}
	model := body.Model
	if model == "" {
		model = c.cfg.Model
	}

	submitOpts := append([]throttle.SubmitOption{throttle.WithCost(EstimateTokens(&body))}, opts...)
	return throttle.Call(ctx, c.limiter, func(ctx context.Context) (*GenerateResponse, error) {
		return c.generate(ctx, model, payload)
	}, submitOpts...)
}

// GenerateText is GenerateContent for a single user prompt. It returns the text of the first candidate.
func (c *Client) GenerateText(ctx context.Context, prompt string, opts ...throttle.SubmitOption) (string, error) {
	resp, err := c.GenerateContent(ctx, NewTextRequest(prompt), opts...)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// Usage returns the token usage reported by the API for all successful calls of this client.
func (c *Client) Usage() Usage {
	return Usage{
		Requests:         c.requests.Load(),
		PromptTokens:     c.promptTokens.Load(),
		CandidatesTokens: c.candidatesTokens.Load(),
		TotalTokens:      c.totalTokens.Load(),
	}
}

func (c *Client) generate(ctx context.Context, model string, payload []byte) (*GenerateResponse, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1beta/models/" + url.PathEscape(model) + ":generateContent"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, upstream.Permanent(fmt.Errorf("gemini: build request: %w", err))
	}
	httpReq.Header.Set(apiKeyHeader, c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("gemini: request failed: %w", ctxErr)
		}
		return nil, upstream.Transient(fmt.Errorf("gemini: request failed: %w", err))
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("gemini: failed to close response body", log.Error(closeErr))
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		apiErr := parseAPIError(resp.StatusCode, resp.Header, errBody)
		c.logger.Warn("gemini: call failed", log.String("model", model), log.Int("status", resp.StatusCode),
			log.String("api_status", apiErr.Status), log.Duration("retry_delay", apiErr.RetryDelay))
		return nil, classifyAPIError(apiErr)
	}

	var parsed GenerateResponse
	if err = json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, upstream.Transient(fmt.Errorf("gemini: decode response: %w", err))
	}
	c.requests.Inc()
	c.promptTokens.Add(int64(parsed.UsageMetadata.PromptTokenCount))
	c.candidatesTokens.Add(int64(parsed.UsageMetadata.CandidatesTokenCount))
	c.totalTokens.Add(int64(parsed.UsageMetadata.TotalTokenCount))
	return &parsed, nil
}

// EstimateTokens approximates the number of tokens a request consumes: a token per four characters
// of the input plus the output allowance.
func EstimateTokens(req *GenerateRequest) int {
	if req == nil {
		return 0
	}
	chars := 0
	countParts := func(content *Content) {
		for _, p := range content.Parts {
			chars += utf8.RuneCountInString(p.Text)
		}
	}
	for i := range req.Contents {
		countParts(&req.Contents[i])
	}
	if req.SystemInstruction != nil {
		countParts(req.SystemInstruction)
	}
	tokens := (chars + 3) / 4
	if req.GenerationConfig != nil {
		tokens += req.GenerationConfig.MaxOutputTokens
	}
	return max(tokens, 1)
}

func (g GenerationConfig) isZero() bool {
	return g.Temperature == nil && g.TopP == nil && g.TopK == nil && g.MaxOutputTokens == 0 &&
		g.ResponseMimeType == "" && len(g.StopSequences) == 0
}
