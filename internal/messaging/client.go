// Package messaging is the anti-corruption layer between the delivery engine
// and the WhatsApp template provider. All outbound provider calls go through
// one resilient client: circuit breaking, retries with backoff on 429/5xx,
// trace propagation, and mapping of HTTP failures to domain errors.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"stagecall/internal/types"
)

// TemplateSender is the provider interface consumed by the dispatch loop,
// the manual send path and the conversation guard.
type TemplateSender interface {
	// SendTemplate delivers one template message and returns the provider's
	// message ID. Failures come back as *types.AppError; IsRetryable
	// distinguishes transient provider trouble from permanent rejection.
	SendTemplate(ctx context.Context, to, templateID string, variables map[string]string) (string, error)
}

// TextSender sends a plain (non-template) text message inside an open
// session window. The conversation guard uses it for corrective replies.
type TextSender interface {
	SendText(ctx context.Context, to, body string) (string, error)
}

// RetryPolicy configures retry behavior for provider calls.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy returns the defaults used in production.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		MinWait:    500 * time.Millisecond,
		MaxWait:    10 * time.Second,
	}
}

// ClientConfig configures the WhatsApp provider client.
type ClientConfig struct {
	BaseURL    string
	AuthToken  types.SecretString
	FromNumber string

	// HTTPClient defaults to one with a 15s timeout.
	HTTPClient *http.Client
	Retry      RetryPolicy

	// SleepFn overrides the inter-retry sleep; tests use this to avoid real
	// delays.
	SleepFn func(time.Duration)
}

// Client sends WhatsApp template messages over the provider's HTTP API.
type Client struct {
	baseURL    string
	authToken  types.SecretString
	fromNumber string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	retry      RetryPolicy
	sleepFn    func(time.Duration)
}

// NewClient creates the provider client with its own circuit breaker.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	retry := cfg.Retry
	if retry.MaxRetries == 0 && retry.MinWait == 0 {
		retry = DefaultRetryPolicy()
	}
	sleepFn := cfg.SleepFn
	if sleepFn == nil {
		sleepFn = time.Sleep
	}

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "whatsapp-provider",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &Client{
		baseURL:    cfg.BaseURL,
		authToken:  cfg.AuthToken,
		fromNumber: cfg.FromNumber,
		httpClient: httpClient,
		breaker:    breaker,
		retry:      retry,
		sleepFn:    sleepFn,
	}
}

type sendRequest struct {
	From       string            `json:"from"`
	To         string            `json:"to"`
	TemplateID string            `json:"template_id,omitempty"`
	Variables  map[string]string `json:"variables,omitempty"`
	Body       string            `json:"body,omitempty"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

type providerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SendTemplate implements TemplateSender. Transient provider failures (429,
// 5xx, network errors) are retried up to the policy budget; any other 4xx is
// a permanent rejection returned without retry.
func (c *Client) SendTemplate(ctx context.Context, to, templateID string, variables map[string]string) (string, error) {
	return c.post(ctx, sendRequest{
		From:       c.fromNumber,
		To:         to,
		TemplateID: templateID,
		Variables:  variables,
	})
}

// SendText implements TextSender with the same resilience behavior as
// SendTemplate.
func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	return c.post(ctx, sendRequest{
		From: c.fromNumber,
		To:   to,
		Body: body,
	})
}

func (c *Client) post(ctx context.Context, req sendRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode send request", err)
	}

	var (
		lastStatus int
		lastErr    error
	)

	maxAttempts := 1 + c.retry.MaxRetries
	for attempt := 0; attempt < maxAttempts; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/v1/messages", bytes.NewReader(payload))
		if err != nil {
			return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build send request", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.authToken.Unmask())
		if traceID := types.GetRequestID(ctx); traceID != "" {
			httpReq.Header.Set("X-B3-TraceId", traceID)
		}

		resp, execErr := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.httpClient.Do(httpReq)
			if doErr != nil {
				return nil, doErr
			}
			// 429 and 5xx count as breaker failures.
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("provider returned %d", r.StatusCode)
			}
			return r, nil
		})

		if execErr == nil {
			defer resp.Body.Close()
			return c.decodeSuccess(resp)
		}

		lastErr = execErr
		lastStatus = 0
		var retryAfter string
		if resp != nil {
			lastStatus = resp.StatusCode
			retryAfter = resp.Header.Get("Retry-After")
			resp.Body.Close()
		}

		// Breaker open: fail fast, no further attempts.
		if errors.Is(execErr, gobreaker.ErrOpenState) || errors.Is(execErr, gobreaker.ErrTooManyRequests) {
			return "", types.NewAppError(types.ErrCodeUpstreamMessaging,
				"messaging provider circuit breaker is open", execErr)
		}

		if attempt < maxAttempts-1 {
			c.sleepFn(c.computeBackoff(attempt, retryAfter))
		}
	}

	if lastStatus == http.StatusTooManyRequests {
		return "", types.NewAppError(types.ErrCodeUpstreamRateLimit,
			"messaging provider rate limit exceeded after retries", lastErr)
	}
	return "", types.NewAppError(types.ErrCodeUpstreamMessaging,
		"messaging provider unavailable after retries", lastErr)
}

// decodeSuccess handles a non-retryable provider response: 2xx yields the
// message ID, any other status is a permanent rejection.
func (c *Client) decodeSuccess(resp *http.Response) (string, error) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var out sendResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", types.NewAppError(types.ErrCodeInternalUnexpected,
				"failed to decode provider response", err)
		}
		return out.MessageID, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var pe providerError
	detail := string(body)
	if json.Unmarshal(body, &pe) == nil && pe.Message != "" {
		detail = pe.Message
	}
	return "", types.NewAppError(types.ErrCodeUpstreamRejected,
		fmt.Sprintf("provider rejected message (%d): %s", resp.StatusCode, detail), nil)
}

// computeBackoff respects the Retry-After header when present, otherwise
// exponential backoff with full jitter clamped to [MinWait, MaxWait].
func (c *Client) computeBackoff(attempt int, retryAfter string) time.Duration {
	if retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
			wait := time.Duration(seconds) * time.Second
			if wait > c.retry.MaxWait {
				wait = c.retry.MaxWait
			}
			return wait
		}
	}

	base := float64(c.retry.MinWait) * math.Pow(2, float64(attempt))
	maxWait := float64(c.retry.MaxWait)
	if base > maxWait {
		base = maxWait
	}
	minWait := float64(c.retry.MinWait)
	if base <= minWait {
		return c.retry.MinWait
	}
	return time.Duration(minWait + rand.Float64()*(base-minWait))
}
