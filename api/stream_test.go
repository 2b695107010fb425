package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"syncboard/domain"
)

func TestStreamRequiresAuth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/stream", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestStreamDeliversFrames(t *testing.T) {
	s := newTestServer(t)
	alice := s.signUp(t, "alice@example.com", "Alice")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Token via query param, the way EventSource connects.
	req := httptest.NewRequest(http.MethodGet, "/api/stream?token="+alice.Token, nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		s.echo.ServeHTTP(rec, req)
		close(done)
	}()

	// Give the handler time to subscribe before broadcasting.
	time.Sleep(100 * time.Millisecond)
	s.hub.Publish(domain.TopicTaskCreated, domain.Task{ID: "t1", Title: "Card"})
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream handler did not stop on context cancel")
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %s", ct)
	}

	frames := parseFrames(t, rec.Body.String())
	if len(frames) < 2 {
		t.Fatalf("expected connected and task frames, got %d: %q", len(frames), rec.Body.String())
	}
	if frames[0].Type != domain.TopicConnected {
		t.Fatalf("first frame must be connected, got %s", frames[0].Type)
	}
	var hello domain.ConnectedEvent
	if err := sonic.Unmarshal(frames[0].Payload, &hello); err != nil || hello.ConnectionID == "" {
		t.Fatalf("connected frame must carry a connection id: %q", frames[0].Payload)
	}
	if frames[1].Type != domain.TopicTaskCreated {
		t.Fatalf("expected task_created frame, got %s", frames[1].Type)
	}
}

type rawFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func parseFrames(t *testing.T, body string) []rawFrame {
	t.Helper()
	var frames []rawFrame
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var f rawFrame
		if err := sonic.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &f); err != nil {
			t.Fatalf("invalid frame %q: %v", line, err)
		}
		frames = append(frames, f)
	}
	return frames
}
