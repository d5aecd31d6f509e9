package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

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
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestEmitDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Emit("status", map[string]any{"status": "Saved", "busy": false})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.HasPrefix(s, "id: 1\nevent: status\n") {
			t.Errorf("missing id or event type in %q", s)
		}
		if !strings.Contains(s, `"status":"Saved"`) {
			t.Errorf("missing data in %q", s)
		}
		if !strings.HasSuffix(s, "\n\n") {
			t.Errorf("frame not terminated: %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestNotesRefreshed_TreeThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Emit(NotesEvent, []string{"a.tex"})
	b.Emit(NotesEvent, []string{"a.tex", "b.typ"})
	b.Emit("tabs.changed", map[string]any{})

	time.Sleep(50 * time.Millisecond)
	tree, notes, other := 0, 0, 0
	for _, s := range drain(ch) {
		switch {
		case strings.Contains(s, "event: "+TreeEvent):
			tree++
		case strings.Contains(s, "event: "+NotesEvent):
			notes++
		default:
			other++
		}
	}

	if notes != 2 {
		t.Errorf("notes events = %d, want 2", notes)
	}
	if tree != 1 {
		t.Errorf("tree events = %d, want 1 (throttled)", tree)
	}
	if other != 1 {
		t.Errorf("other events = %d, want 1", other)
	}

	// The second refresh fell inside the window: one trailing tree event.
	time.Sleep(600 * time.Millisecond)
	trailing := 0
	for _, s := range drain(ch) {
		if strings.Contains(s, "event: "+TreeEvent) {
			trailing++
		}
	}
	if trailing != 1 {
		t.Errorf("trailing tree events = %d, want 1", trailing)
	}
}

func TestReplayToLateSubscriber(t *testing.T) {
	b := NewBroker(time.Second, WithReplay("vault.opened", "status"))
	defer b.Close()

	b.Emit("status", map[string]string{"status": "Opening vault..."})
	b.Emit("vault.opened", map[string]string{"root_path": "/v"})
	b.Emit("status", map[string]string{"status": "Vault opened"})
	b.Emit("tabs.changed", map[string]any{})

	deadline := time.Now().Add(time.Second)
	var got []string
	for time.Now().Before(deadline) {
		ch := b.Subscribe()
		got = drain(ch)
		b.Unsubscribe(ch)
		if len(got) == 2 && strings.Contains(got[1], "Vault opened") {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if len(got) != 2 {
		t.Fatalf("replayed %d frames, want 2: %q", len(got), got)
	}
	if !strings.Contains(got[0], "event: vault.opened") {
		t.Errorf("first replay = %q, want vault.opened", got[0])
	}
	if !strings.Contains(got[1], "event: status") || !strings.Contains(got[1], "Vault opened") {
		t.Errorf("second replay = %q, want latest status", got[1])
	}
}

func TestHeartbeat(t *testing.T) {
	b := NewBroker(time.Second, WithHeartbeat(10*time.Millisecond))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()
	time.Sleep(60 * time.Millisecond)
	cancel()
	<-done

	if !strings.Contains(w.Body.String(), ": ping\n\n") {
		t.Errorf("no heartbeat in %q", w.Body.String())
	}
}

func TestTreeThrottleWindowExpires(t *testing.T) {
	b := NewBroker(20 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Emit(NotesEvent, nil)
	time.Sleep(40 * time.Millisecond)
	b.Emit(NotesEvent, nil)
	time.Sleep(20 * time.Millisecond)

	tree := 0
	for _, s := range drain(ch) {
		if strings.Contains(s, TreeEvent) {
			tree++
		}
	}
	if tree != 2 {
		t.Errorf("tree events = %d, want 2", tree)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
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

	b.Emit("preview.changed", map[string]string{"artifact": "/v/notes/a.pdf"})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "event: preview.changed") {
		t.Errorf("handler output missing event: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestEmitDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Subscriber buffer holds 64; the rest are dropped without blocking.
	for range 70 {
		b.Emit("status", map[string]string{"status": "Saving note..."})
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

	b.Emit(NotesEvent, nil)
	b.Close()
}
