package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// Mock status client for testing
type mockStatusClient struct {
	mu      sync.Mutex
	queries int
	// script is consumed one entry per query; the last entry repeats.
	script []scriptedResponse
}

type scriptedResponse struct {
	job *Job
	err error
}

func (m *mockStatusClient) GetJob(ctx context.Context, jobID string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.queries
	if idx >= len(m.script) {
		idx = len(m.script) - 1
	}
	m.queries++
	resp := m.script[idx]
	return resp.job, resp.err
}

func (m *mockStatusClient) queryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queries
}

func processing() scriptedResponse {
	return scriptedResponse{job: &Job{ID: "job-1", Status: StatusProcessing}}
}

func completed(ref string) scriptedResponse {
	return scriptedResponse{job: &Job{ID: "job-1", Status: StatusCompleted, ArtifactRef: ref}}
}

func failed(reason string) scriptedResponse {
	return scriptedResponse{job: &Job{ID: "job-1", Status: StatusFailed, Error: reason}}
}

func TestPoller_CompletesAfterProcessing(t *testing.T) {
	client := &mockStatusClient{
		script: []scriptedResponse{
			processing(), processing(), processing(), completed("artifact-9"),
		},
	}
	poller := NewPoller(client)

	result, err := poller.Poll(context.Background(), "job-1", PollOptions{
		Interval:    time.Millisecond,
		MaxAttempts: 10,
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if result.Outcome != OutcomeCompleted {
		t.Errorf("Expected outcome completed, got %s", result.Outcome)
	}
	if result.ArtifactRef != "artifact-9" {
		t.Errorf("Expected artifact-9, got %s", result.ArtifactRef)
	}
	if result.Attempts != 4 {
		t.Errorf("Expected 4 attempts, got %d", result.Attempts)
	}
	if client.queryCount() != 4 {
		t.Errorf("Expected exactly 4 status queries, got %d", client.queryCount())
	}
}

func TestPoller_FailedJobReturnsReason(t *testing.T) {
	client := &mockStatusClient{
		script: []scriptedResponse{
			processing(), failed("nesting rejected: panel exceeds sheet"),
		},
	}
	poller := NewPoller(client)

	result, err := poller.Poll(context.Background(), "job-1", PollOptions{
		Interval:    time.Millisecond,
		MaxAttempts: 10,
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if result.Outcome != OutcomeFailed {
		t.Errorf("Expected outcome failed, got %s", result.Outcome)
	}
	if result.Reason != "nesting rejected: panel exceeds sheet" {
		t.Errorf("Unexpected failure reason: %s", result.Reason)
	}
}

func TestPoller_TimesOutNeverFails(t *testing.T) {
	client := &mockStatusClient{
		script: []scriptedResponse{processing()},
	}
	poller := NewPoller(client)

	result, err := poller.Poll(context.Background(), "job-1", PollOptions{
		Interval:    time.Millisecond,
		MaxAttempts: 5,
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if result.Outcome != OutcomeTimedOut {
		t.Errorf("Expected outcome timed_out, got %s", result.Outcome)
	}
	if result.Attempts != 5 {
		t.Errorf("Expected 5 attempts, got %d", result.Attempts)
	}
	if client.queryCount() != 5 {
		t.Errorf("Expected 5 status queries, got %d", client.queryCount())
	}
}

func TestPoller_TransportErrorIsTransientMiss(t *testing.T) {
	client := &mockStatusClient{
		script: []scriptedResponse{
			{err: errors.New("connection refused")},
			{err: errors.New("connection refused")},
			completed("artifact-2"),
		},
	}
	poller := NewPoller(client)

	result, err := poller.Poll(context.Background(), "job-1", PollOptions{
		Interval:    time.Millisecond,
		MaxAttempts: 10,
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if result.Outcome != OutcomeCompleted {
		t.Errorf("Expected completion after transient misses, got %s", result.Outcome)
	}
	if result.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", result.Attempts)
	}
}

func TestPoller_CancellationAbandonsObservation(t *testing.T) {
	client := &mockStatusClient{
		script: []scriptedResponse{processing()},
	}
	poller := NewPoller(client)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	var result *PollResult
	var pollErr error
	go func() {
		result, pollErr = poller.Poll(ctx, "job-1", PollOptions{
			Interval:    5 * time.Millisecond,
			MaxAttempts: 1000,
		})
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Poll did not return after cancellation")
	}

	if result != nil {
		t.Errorf("Expected nil result on abandonment, got %+v", result)
	}
	if !errors.Is(pollErr, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", pollErr)
	}
}

func TestPoller_InvalidOptions(t *testing.T) {
	poller := NewPoller(&mockStatusClient{script: []scriptedResponse{processing()}})

	if _, err := poller.Poll(context.Background(), "", DefaultPollOptions()); err == nil {
		t.Error("Expected error for empty job id, got nil")
	}
	if _, err := poller.Poll(context.Background(), "job-1", PollOptions{}); err == nil {
		t.Error("Expected error for zero poll options, got nil")
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	if StatusCreated.IsTerminal() || StatusProcessing.IsTerminal() {
		t.Error("Expected created/processing to be non-terminal")
	}
	if !StatusCompleted.IsTerminal() || !StatusFailed.IsTerminal() {
		t.Error("Expected completed/failed to be terminal")
	}
}
