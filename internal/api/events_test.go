package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/events"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/metrics"
)

// Streams through the instrumented writer, the same chain NewServer builds.
// The metrics wrapper must not hide the underlying http.Flusher.
func TestStreamEventsThroughInstrumentedWriter(t *testing.T) {
	bus := events.NewBus()
	handler := metrics.InstrumentHandler(http.HandlerFunc(NewEventsHandler(bus).StreamEvents))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest("GET", "/api/v1/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		handler.ServeHTTP(rec, req)
		close(done)
	}()

	// Wait for the handler to subscribe before publishing.
	deadline := time.After(2 * time.Second)
	for bus.SubscriberCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("handler never subscribed")
		case <-done:
			t.Fatalf("handler returned early: %d %s", rec.Code, rec.Body.String())
		case <-time.After(10 * time.Millisecond):
		}
	}

	bus.Publish(events.TypeStageStarted, "B00TEST", map[string]any{"stage": "fetch"})

	// Let the handler drain the event, then disconnect the client.
	time.Sleep(200 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after disconnect")
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 event stream, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: stage_started") {
		t.Errorf("stream missing published event: %q", body)
	}
	if !strings.Contains(body, "B00TEST") {
		t.Errorf("stream missing event payload: %q", body)
	}
}

func TestStreamEventsWithoutBus(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/events", nil)
	NewEventsHandler(nil).StreamEvents(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}
