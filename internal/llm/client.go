// Package llm wraps model invocation with retry, rate limiting, and tolerant
// response decoding. Both the extraction and completion-detection stages go
// through the same ResilientClient.
package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/todoharvest/internal/logging"
	"github.com/todoharvest/internal/retry"
)

// ModelClient is the minimal surface a model connector must provide.
type ModelClient interface {
	// Complete sends one prompt and returns the raw text response.
	Complete(ctx context.Context, prompt string) (string, error)
	// Model returns the model identifier, for logging.
	Model() string
}

// ResilientClient wraps a ModelClient with bounded retry, rate limiting,
// per-call timeout, and JSON repair of the response.
type ResilientClient struct {
	client      ModelClient
	retryConfig retry.Config
	limiter     *rate.Limiter
	timeout     time.Duration
}

// Option configures a ResilientClient.
type Option func(*ResilientClient)

// WithRetryConfig overrides the default model retry configuration.
func WithRetryConfig(config retry.Config) Option {
	return func(rc *ResilientClient) { rc.retryConfig = config }
}

// WithRateLimit caps outgoing model calls at n per minute.
func WithRateLimit(perMinute int) Option {
	return func(rc *ResilientClient) {
		if perMinute > 0 {
			rc.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
		}
	}
}

// WithTimeout sets the per-call timeout covering all retry attempts.
func WithTimeout(timeout time.Duration) Option {
	return func(rc *ResilientClient) { rc.timeout = timeout }
}

// NewResilientClient creates a resilient wrapper around a model client.
func NewResilientClient(client ModelClient, opts ...Option) *ResilientClient {
	rc := &ResilientClient{
		client:      client,
		retryConfig: retry.ModelConfig(),
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// StructuredResponse carries resiliency details alongside the decoded result.
type StructuredResponse struct {
	Raw           string
	Attempts      int
	TotalDuration time.Duration
	Repaired      bool
	RepairStats   *RepairStats
	RetryReasons  []string
}

// CompleteStructured sends the prompt, retries transient failures with
// backoff, repairs the JSON if needed, and unmarshals it into target. The
// stage name only labels log entries.
func (rc *ResilientClient) CompleteStructured(ctx context.Context, stage, prompt string, target interface{}) (StructuredResponse, error) {
	logger := logging.GetCurrentLogger()

	if rc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rc.timeout)
		defer cancel()
	}

	logger.LogPrompt(stage, rc.client.Model(), prompt)

	var resp StructuredResponse

	result := retry.WithBackoffAndReason(ctx, rc.retryConfig, func() (error, string) {
		if rc.limiter != nil {
			if err := rc.limiter.Wait(ctx); err != nil {
				return err, "rate_limiter_wait"
			}
		}

		raw, err := rc.client.Complete(ctx, prompt)
		if err != nil {
			return err, err.Error()
		}
		logger.LogResponse(stage, raw)

		processResult, err := ProcessResponse(raw, target)
		if err != nil {
			// Unparseable output is not transient; fail without retrying.
			return fmt.Errorf("schema validation failed: %w", err), "unparseable_response"
		}

		resp.Raw = processResult.RepairedJSON
		if processResult.RepairStats.WasRepaired {
			resp.Repaired = true
			stats := processResult.RepairStats
			resp.RepairStats = &stats
		}
		return nil, ""
	})

	resp.Attempts = result.Attempts
	resp.TotalDuration = result.TotalDuration
	resp.RetryReasons = result.RetryReasons

	if !result.Success {
		return resp, fmt.Errorf("%s model call failed after %d attempts: %w", stage, result.Attempts, result.LastError)
	}
	return resp, nil
}
