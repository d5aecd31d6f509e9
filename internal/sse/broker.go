// Package sse streams workspace events to browser clients as Server-Sent
// Events.
//
// Besides plain fan-out the broker keeps the latest frame of every replayed
// kind, so a client that connects late starts from the current workspace
// state, and it derives a coalesced tree.updated from note list refreshes.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event is one workspace event.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// TreeEvent tells clients to rebuild the document tree. It is derived from
// NotesEvent: the first refresh in a window emits it at once, later ones in
// the same window collapse into a single trailing emission.
const TreeEvent = "tree.updated"

// NotesEvent is the note list refresh that drives TreeEvent.
const NotesEvent = "notes.refreshed"

const clientBuffer = 64

// Option configures a Broker.
type Option func(*Broker)

// WithReplay keeps the latest frame of each kind and sends them, in the given
// order, to every new subscriber.
func WithReplay(kinds ...string) Option {
	return func(b *Broker) { b.replay = append(b.replay, kinds...) }
}

// WithHeartbeat writes an SSE comment line to idle connections every d so
// proxies keep them open.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) { b.heartbeat = d }
}

// Broker fans workspace events out to SSE clients.
//
// A single loop goroutine owns the client set, the replay frames and the tree
// window; public methods talk to it over channels.
type Broker struct {
	treeWindow time.Duration
	replay     []string
	heartbeat  time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. treeWindow bounds how often TreeEvent is sent.
func NewBroker(treeWindow time.Duration, opts ...Option) *Broker {
	if treeWindow <= 0 {
		treeWindow = 2 * time.Second
	}
	b := &Broker{
		treeWindow:    treeWindow,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.loop()
	return b
}

type subscription struct {
	ch    chan []byte
	ready chan struct{}
}

// hub is the loop-owned state.
type hub struct {
	clients map[chan []byte]struct{}
	latest  map[string][]byte
	seq     uint64

	lastTree    time.Time
	treePending bool
	treeTimer   *time.Timer
}

func (b *Broker) loop() {
	defer close(b.stopped)

	h := &hub{
		clients: make(map[chan []byte]struct{}),
		latest:  make(map[string][]byte),
	}
	var treeFire <-chan time.Time

	for {
		select {
		case <-b.stopCh:
			if h.treeTimer != nil {
				h.treeTimer.Stop()
			}
			for ch := range h.clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			h.clients[sub.ch] = struct{}{}
			for _, kind := range b.replay {
				if frame, ok := h.latest[kind]; ok {
					send(sub.ch, frame)
				}
			}
			close(sub.ready)

		case ch := <-b.unsubscribeCh:
			if _, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			b.deliver(h, event)
			if event.Type != NotesEvent {
				continue
			}
			if now := time.Now(); now.Sub(h.lastTree) >= b.treeWindow {
				h.lastTree = now
				b.deliver(h, Event{Type: TreeEvent, Data: map[string]string{}})
			} else if !h.treePending {
				h.treePending = true
				h.treeTimer = time.NewTimer(b.treeWindow - now.Sub(h.lastTree))
				treeFire = h.treeTimer.C
			}

		case <-treeFire:
			treeFire = nil
			h.treePending = false
			h.lastTree = time.Now()
			b.deliver(h, Event{Type: TreeEvent, Data: map[string]string{}})

		case resp := <-b.countReqCh:
			resp <- len(h.clients)
		}
	}
}

// deliver encodes event once and queues it on every client. Events that fail
// to encode are dropped.
func (b *Broker) deliver(h *hub, event Event) {
	h.seq++
	frame, err := encode(h.seq, event)
	if err != nil {
		return
	}
	if b.replays(event.Type) {
		h.latest[event.Type] = frame
	}
	for ch := range h.clients {
		send(ch, frame)
	}
}

func (b *Broker) replays(kind string) bool {
	for _, k := range b.replay {
		if k == kind {
			return true
		}
	}
	return false
}

// send never blocks the loop; a client with a full buffer misses the frame.
func send(ch chan []byte, frame []byte) {
	select {
	case ch <- frame:
	default:
	}
}

func encode(id uint64, event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, fmt.Errorf("sse: encode %s: %w", event.Type, err)
	}
	return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", id, event.Type, payload), nil
}

// Close stops the loop and closes every client channel. It is idempotent.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client. Replayed frames are queued before it returns.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	sub := subscription{ch: ch, ready: make(chan struct{})}
	select {
	case b.subscribeCh <- sub:
	case <-b.stopped:
		close(ch)
		return ch
	}
	select {
	case <-sub.ready:
	case <-b.stopped:
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Emit publishes a workspace event. It satisfies workspace.EventSink.
func (b *Broker) Emit(kind string, data any) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- Event{Type: kind, Data: data}:
	case <-b.stopped:
	}
}

// ServeHTTP streams events to one client (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	var ping <-chan time.Time
	if b.heartbeat > 0 {
		t := time.NewTicker(b.heartbeat)
		defer t.Stop()
		ping = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
