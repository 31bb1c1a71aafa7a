package sse

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/ctxvault/internal/models"
)

// drain collects everything currently buffered on ch.
func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	filtered := b.Subscribe(RecordSession)
	if n := b.ClientCount(); n != 2 {
		t.Fatalf("ClientCount = %d, want 2", n)
	}
	b.Unsubscribe(ch)
	b.Unsubscribe(filtered)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishRecordEvent(RecordKnowledge, KindCreated, "thinking-2025-01-01-aaaaaaaa")

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.HasPrefix(s, "id: 1\n") {
			t.Errorf("first event should carry id 1: %q", s)
		}
		if !strings.Contains(s, "event: knowledge.created") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"record":"knowledge","kind":"created","id":"thinking-2025-01-01-aaaaaaaa"`) {
			t.Errorf("missing record payload in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishRecordEvent_StatsThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishRecordEvent(RecordKnowledge, KindCreated, "a")
	b.PublishRecordEvent(RecordSession, KindUpdated, "b")
	b.PublishRecordEvent(RecordSession, "renamed", "c")

	time.Sleep(50 * time.Millisecond)
	statsCount := 0
	var records []string
	for _, s := range drain(ch) {
		if strings.Contains(s, EventStats) {
			statsCount++
		} else {
			records = append(records, s)
		}
	}

	if len(records) != 2 {
		t.Fatalf("record events = %d, want 2", len(records))
	}
	if !strings.Contains(records[0], "event: knowledge.created") || !strings.Contains(records[1], "event: session.updated") {
		t.Errorf("unexpected record events: %q", records)
	}
	if statsCount != 1 {
		t.Errorf("stats events = %d, want 1 (throttled)", statsCount)
	}
}

func TestStatsSourceFillsPayload(t *testing.T) {
	b := NewBroker(time.Millisecond, WithStats(func(context.Context) (models.Stats, error) {
		return models.Stats{KnowledgeItems: 3, Sessions: 2, ByCategory: map[string]int{"thinking": 3}}, nil
	}))
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishRecordEvent(RecordKnowledge, KindCreated, "a")

	deadline := time.After(time.Second)
	for {
		select {
		case msg := <-ch:
			s := string(msg)
			if !strings.Contains(s, EventStats) {
				continue
			}
			if !strings.Contains(s, `"knowledge_items":3`) {
				t.Errorf("stats payload = %q", s)
			}
			return
		case <-deadline:
			t.Fatal("timeout waiting for stats event")
		}
	}
}

func TestStatsSourceErrorSkipsEvent(t *testing.T) {
	b := NewBroker(time.Millisecond, WithStats(func(context.Context) (models.Stats, error) {
		return models.Stats{}, errors.New("index closed")
	}))
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishRecordEvent(RecordSession, KindDeleted, "x")
	time.Sleep(50 * time.Millisecond)

	for _, s := range drain(ch) {
		if strings.Contains(s, EventStats) {
			t.Errorf("unexpected stats event: %q", s)
		}
	}
}

func TestSubscribeFiltersRecordKinds(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe(RecordSession)
	defer b.Unsubscribe(ch)

	b.PublishRecordEvent(RecordKnowledge, KindCreated, "k")
	b.PublishRecordEvent(RecordSession, KindCreated, "s")
	time.Sleep(50 * time.Millisecond)

	got := drain(ch)
	var records []string
	for _, s := range got {
		if !strings.Contains(s, EventStats) {
			records = append(records, s)
		}
	}
	if len(records) != 1 || !strings.Contains(records[0], "event: session.created") {
		t.Errorf("filtered client got %q", records)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100*time.Millisecond, WithKeepAlive(20*time.Millisecond))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events?record=session", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishRecordEvent(RecordKnowledge, KindCreated, "thinking-2025-01-01-aaaaaaaa")
	b.PublishRecordEvent(RecordSession, KindCreated, "2025-01-01T00-00-00-claude")
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: session.created") {
		t.Errorf("handler output missing event: %q", body)
	}
	if strings.Contains(body, "knowledge.created") {
		t.Errorf("record filter ignored: %q", body)
	}
	if !strings.Contains(body, ": keepalive") {
		t.Errorf("no keepalive written: %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// buffer holds 64; the rest must be dropped without blocking
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "session.updated", Data: RecordEvent{Record: RecordSession, Kind: KindUpdated, ID: "x"}})
	}
	time.Sleep(50 * time.Millisecond)
	if n := len(drain(ch)); n != 64 {
		t.Errorf("buffered events = %d, want 64", n)
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	b.Publish(Event{Type: "knowledge.updated", Data: nil})
	b.PublishRecordEvent(RecordKnowledge, KindUpdated, "x")
	if late := b.Subscribe(); late != nil {
		if _, ok := <-late; ok {
			t.Error("subscribe after close should return a closed channel")
		}
	}
}
