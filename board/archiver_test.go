package board

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"syncboard/domain"
)

type flakySink struct {
	mu       sync.Mutex
	failures int
	acts     []domain.Activity
}

func (s *flakySink) EnqueueActivity(_ context.Context, act domain.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("transient enqueue failure")
	}
	s.acts = append(s.acts, act)
	return nil
}

func (s *flakySink) delivered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.acts)
}

func (s *flakySink) firstID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.acts) == 0 {
		return ""
	}
	return s.acts[0].ID
}

func TestArchiverRetriesTransientFailures(t *testing.T) {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	sink := &flakySink{failures: 2}

	a := newArchiver(sink, logger)
	a.retryInitial = time.Millisecond
	a.retryMax = 5 * time.Millisecond
	defer a.shutdown()

	a.submit(domain.Activity{ID: "act-1", Action: domain.ActionTaskCreated})

	deadline := time.Now().Add(time.Second)
	for sink.delivered() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for retried delivery")
		}
		time.Sleep(2 * time.Millisecond)
	}
	if got := sink.firstID(); got != "act-1" {
		t.Fatalf("unexpected record id: %s", got)
	}
}

func TestArchiverDrainsOnShutdown(t *testing.T) {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	sink := &flakySink{}

	a := newArchiver(sink, logger)
	for i := 0; i < 10; i++ {
		a.submit(domain.Activity{ID: "act", Action: domain.ActionUserLoggedIn})
	}
	a.shutdown()

	if got := sink.delivered(); got != 10 {
		t.Fatalf("expected 10 records after drain, got %d", got)
	}
}

type failingSink struct {
	mu    sync.Mutex
	calls map[string]int
}

func (s *failingSink) EnqueueActivity(_ context.Context, act domain.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[act.ID]++
	return errors.New("sink down")
}

func (s *failingSink) attempts(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

func TestArchiverShutdownStopsRetrying(t *testing.T) {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	sink := &failingSink{}

	a := newArchiver(sink, logger)
	a.retryInitial = time.Hour
	a.retryMax = time.Hour

	a.submit(domain.Activity{ID: "stuck", Action: domain.ActionTaskCreated})
	// Wait until the worker has failed once and is parked in backoff.
	deadline := time.Now().Add(time.Second)
	for sink.attempts("stuck") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for first attempt")
		}
		time.Sleep(2 * time.Millisecond)
	}
	a.submit(domain.Activity{ID: "queued", Action: domain.ActionUserLoggedIn})

	done := make(chan struct{})
	go func() {
		a.shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown blocked on retry backoff")
	}

	// The interrupted backoff grants exactly one final attempt; drained
	// records get a single attempt each.
	if got := sink.attempts("stuck"); got != 2 {
		t.Fatalf("expected 2 attempts for the in-flight record, got %d", got)
	}
	if got := sink.attempts("queued"); got != 1 {
		t.Fatalf("expected 1 attempt for the drained record, got %d", got)
	}
}
