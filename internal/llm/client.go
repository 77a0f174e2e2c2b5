// Package llm is a client for OpenAI-compatible chat-completion servers such as
// LM Studio, vLLM or llama.cpp's server.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"sifra/internal/narrative"
)

// MetricsInterface is the subset of service metrics the client reports to.
type MetricsInterface interface {
	LLMLatencyObserve(seconds float64)
	LLMFailuresInc()
	LLMBreakerStateSet(state float64)
}

type noopMetrics struct{}

func (noopMetrics) LLMLatencyObserve(float64)  {}
func (noopMetrics) LLMFailuresInc()            {}
func (noopMetrics) LLMBreakerStateSet(float64) {}

// Config configures a Client. Zero values fall back to the defaults below.
type Config struct {
	BaseURL           string
	APIKey            string
	Model             string
	Timeout           time.Duration
	MaxTokens         int
	RequestsPerSecond float64
	FailureThreshold  uint32
	OpenTimeout       time.Duration
}

const (
	defaultBaseURL          = "http://127.0.0.1:1234/v1"
	defaultModel            = "meta-llama-3-8b-instruct"
	defaultTimeout          = 60 * time.Second
	defaultRequestsPerSec   = 5
	defaultFailureThreshold = 5
	defaultOpenTimeout      = 30 * time.Second
)

// ErrCircuitOpen is returned without contacting the server while the breaker is open.
var ErrCircuitOpen = errors.New("llm: circuit breaker open")

// Client implements narrative.Completer.
type Client struct {
	cfg     Config
	rest    *resty.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	metrics MetricsInterface
}

var _ narrative.Completer = (*Client)(nil)

// New returns a client. metrics may be nil.
func New(cfg Config, metrics MetricsInterface) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRequestsPerSec
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaultOpenTimeout
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	r := resty.New()
	r.SetTimeout(cfg.Timeout)
	r.SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		r.SetAuthToken(cfg.APIKey)
	}

	c := &Client{
		cfg:     cfg,
		rest:    r,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		metrics: metrics,
	}

	threshold := cfg.FailureThreshold
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// a caller giving up is not a server failure
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("circuit_breaker", name).
				Str("from_state", from.String()).
				Str("to_state", to.String()).
				Msg("circuit breaker state changed")
			metrics.LLMBreakerStateSet(float64(to))
		},
	})
	metrics.LLMBreakerStateSet(float64(gobreaker.StateClosed))
	return c
}

// Model is the model identifier sent with every request.
func (c *Client) Model() string { return c.cfg.Model }

type chatRequest struct {
	Model       string              `json:"model"`
	Messages    []narrative.Message `json:"messages"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      narrative.Message `json:"message"`
		FinishReason string            `json:"finish_reason"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends one chat completion and returns the first choice's text.
func (c *Client) Complete(ctx context.Context, messages []narrative.Message, temperature float64) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("llm: no messages")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm: rate limit wait failed: %w", err)
	}

	start := time.Now()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, messages, temperature)
	})
	c.metrics.LLMLatencyObserve(time.Since(start).Seconds())

	if err != nil {
		c.metrics.LLMFailuresInc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return "", err
	}
	return out.(string), nil
}

func (c *Client) do(ctx context.Context, messages []narrative.Message, temperature float64) (string, error) {
	var result chatResponse
	var apiErr errorResponse

	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model:       c.cfg.Model,
			Messages:    messages,
			Temperature: temperature,
			MaxTokens:   c.cfg.MaxTokens,
		}).
		SetResult(&result).
		SetError(&apiErr).
		Post(c.cfg.BaseURL + "/chat/completions")
	if err != nil {
		return "", fmt.Errorf("llm: request failed: %w", err)
	}

	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		if apiErr.Error.Message != "" {
			return "", fmt.Errorf("llm: api error (status %d): %s", resp.StatusCode(), apiErr.Error.Message)
		}
		return "", fmt.Errorf("llm: api returned status %d", resp.StatusCode())
	}
	if len(result.Choices) == 0 {
		return "", errors.New("llm: response has no choices")
	}

	log.Debug().
		Str("model", c.cfg.Model).
		Int("status", resp.StatusCode()).
		Dur("latency", resp.Time()).
		Str("finish_reason", result.Choices[0].FinishReason).
		Msg("llm completion")
	return result.Choices[0].Message.Content, nil
}
