package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/todoharvest/internal/retry"
)

// mockModelClient replays scripted responses and errors in sequence.
type mockModelClient struct {
	responses []string
	errors    []error
	callCount int
}

func (m *mockModelClient) Complete(ctx context.Context, prompt string) (string, error) {
	idx := m.callCount
	m.callCount++

	if idx < len(m.errors) && m.errors[idx] != nil {
		return "", m.errors[idx]
	}
	if idx < len(m.responses) {
		return m.responses[idx], nil
	}
	return "[]", nil
}

func (m *mockModelClient) Model() string { return "mock-model" }

func quickRetry() retry.Config {
	return retry.Config{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestCompleteStructured_Success(t *testing.T) {
	mock := &mockModelClient{responses: []string{`[{"task": "Send report"}]`}}
	client := NewResilientClient(mock, WithRetryConfig(quickRetry()))

	var target []map[string]interface{}
	resp, err := client.CompleteStructured(context.Background(), "extraction", "prompt", &target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", resp.Attempts)
	}
	if len(target) != 1 {
		t.Errorf("expected 1 parsed item, got %d", len(target))
	}
}

func TestCompleteStructured_RetriesTransientErrors(t *testing.T) {
	mock := &mockModelClient{
		errors:    []error{errors.New("429 rate limit"), errors.New("503 service unavailable")},
		responses: []string{"", "", `[{"task": "Send report"}]`},
	}
	client := NewResilientClient(mock, WithRetryConfig(quickRetry()))

	var target []map[string]interface{}
	resp, err := client.CompleteStructured(context.Background(), "extraction", "prompt", &target)
	if err != nil {
		t.Fatalf("expected eventual success, got: %v", err)
	}
	if resp.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", resp.Attempts)
	}
	if len(resp.RetryReasons) != 2 {
		t.Errorf("expected 2 retry reasons, got %v", resp.RetryReasons)
	}
}

func TestCompleteStructured_ExhaustsRetries(t *testing.T) {
	mock := &mockModelClient{
		errors: []error{
			errors.New("timeout"),
			errors.New("timeout"),
			errors.New("timeout"),
		},
	}
	client := NewResilientClient(mock, WithRetryConfig(quickRetry()))

	var target []map[string]interface{}
	_, err := client.CompleteStructured(context.Background(), "extraction", "prompt", &target)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if mock.callCount != 3 {
		t.Errorf("expected 3 calls, got %d", mock.callCount)
	}
}

func TestCompleteStructured_RepairsMalformedJSON(t *testing.T) {
	mock := &mockModelClient{responses: []string{`[{"task": "Send report",}]`}}
	client := NewResilientClient(mock, WithRetryConfig(quickRetry()))

	var target []map[string]interface{}
	resp, err := client.CompleteStructured(context.Background(), "extraction", "prompt", &target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Repaired {
		t.Error("expected Repaired=true")
	}
	if resp.RepairStats == nil {
		t.Error("expected RepairStats to be populated")
	}
}

func TestCompleteStructured_Timeout(t *testing.T) {
	slow := &slowModelClient{delay: 200 * time.Millisecond}
	client := NewResilientClient(slow,
		WithRetryConfig(retry.Config{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}),
		WithTimeout(20*time.Millisecond))

	var target []map[string]interface{}
	_, err := client.CompleteStructured(context.Background(), "extraction", "prompt", &target)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

type slowModelClient struct {
	delay time.Duration
}

func (s *slowModelClient) Complete(ctx context.Context, prompt string) (string, error) {
	select {
	case <-time.After(s.delay):
		return "[]", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *slowModelClient) Model() string { return "slow-model" }
