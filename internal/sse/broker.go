// Package sse streams vault change notifications to HTTP clients as
// Server-Sent Events.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/starford/ctxvault/internal/models"
)

// Event is a named payload broadcast to subscribers.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Record kinds carried by record events.
const (
	RecordKnowledge = "knowledge"
	RecordSession   = "session"
)

// Change kinds carried by record events.
const (
	KindCreated = "created"
	KindUpdated = "updated"
	KindDeleted = "deleted"
)

// EventStats is sent after record changes, at most once per throttle
// interval. Its data is a models.Stats snapshot when a stats source is
// configured.
const EventStats = "stats.updated"

// RecordEvent is the payload of a "{record}.{kind}" event.
type RecordEvent struct {
	Record string `json:"record"`
	Kind   string `json:"kind"`
	ID     string `json:"id"`
}

// StatsFunc reports the current index counts.
type StatsFunc func(ctx context.Context) (models.Stats, error)

// Option configures a Broker.
type Option func(*Broker)

// WithStats attaches the source used to fill stats.updated events.
func WithStats(fn StatsFunc) Option {
	return func(b *Broker) { b.stats = fn }
}

// WithKeepAlive sets how often an idle stream receives a comment line.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) { b.keepAlive = d }
}

type client struct {
	ch      chan []byte
	records map[string]bool // nil receives every record kind
}

func (c *client) wants(eventType string) bool {
	if c.records == nil {
		return true
	}
	record, _, ok := strings.Cut(eventType, ".")
	if !ok || (record != RecordKnowledge && record != RecordSession) {
		return true
	}
	return c.records[record]
}

// Broker fans events out to connected clients.
//
// A single event loop goroutine owns the client set, the event sequence and
// the stats throttle. Public methods talk to it over channels.
type Broker struct {
	statsMin  time.Duration
	keepAlive time.Duration
	stats     StatsFunc

	subscribeCh   chan *client
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	recordCh      chan RecordEvent
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. statsThrottle is the minimum interval between
// stats.updated events.
func NewBroker(statsThrottle time.Duration, opts ...Option) *Broker {
	if statsThrottle <= 0 {
		statsThrottle = 2 * time.Second
	}

	b := &Broker{
		statsMin:      statsThrottle,
		keepAlive:     15 * time.Second,
		subscribeCh:   make(chan *client),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		recordCh:      make(chan RecordEvent, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]*client)
	var (
		seq       uint64
		lastStats time.Time
	)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))

		for ch, c := range clients {
			if !c.wants(event.Type) {
				continue
			}
			select {
			case ch <- raw:
			default:
				// slow client, drop
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case c := <-b.subscribeCh:
			clients[c.ch] = c

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case rec := <-b.recordCh:
			switch rec.Kind {
			case KindCreated, KindUpdated, KindDeleted:
				broadcast(Event{Type: rec.Record + "." + rec.Kind, Data: rec})
			default:
				continue
			}

			now := time.Now()
			if now.Sub(lastStats) < b.statsMin {
				continue
			}
			lastStats = now
			if b.stats == nil {
				broadcast(Event{Type: EventStats, Data: map[string]string{}})
			} else {
				go b.publishStats()
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// publishStats runs outside the event loop since the stats query hits the
// index.
func (b *Broker) publishStats() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := b.stats(ctx)
	if err != nil {
		return
	}
	b.Publish(Event{Type: EventStats, Data: st})
}

// Close stops the event loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client and returns its channel. With records given, the
// client only receives record events of those kinds (plus stats).
func (b *Broker) Subscribe(records ...string) chan []byte {
	c := &client{ch: make(chan []byte, 64)}
	if len(records) > 0 {
		c.records = make(map[string]bool, len(records))
		for _, r := range records {
			c.records[r] = true
		}
	}
	if b.closed.Load() {
		close(c.ch)
		return c.ch
	}

	select {
	case b.subscribeCh <- c:
	case <-b.stopped:
		close(c.ch)
	}
	return c.ch
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

// Publish sends an event to all interested clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishRecordEvent publishes a "{record}.{kind}" event for one record ID.
// Unknown kinds are dropped.
func (b *Broker) PublishRecordEvent(record, kind, id string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.recordCh <- RecordEvent{Record: record, Kind: kind, ID: id}:
	case <-b.stopped:
	}
}

// ServeHTTP streams events to one client (GET /api/events). The optional
// "record" query parameter takes a comma-separated list of record kinds.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var records []string
	for _, rec := range strings.Split(r.URL.Query().Get("record"), ",") {
		if rec = strings.TrimSpace(rec); rec != "" {
			records = append(records, rec)
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(records...)
	defer b.Unsubscribe(ch)

	ticker := time.NewTicker(b.keepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": keepalive\n\n"))
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
