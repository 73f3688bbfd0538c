// Package sse implements a Server-Sent Events broker that tells open pages
// when the community data behind them changed.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Event types.
const (
	TypeCommunityJoined    = "community.joined"
	TypeCommunitiesChanged = "communities.changed"
	TypeContentUpdated     = "content.updated"
)

const (
	clientBuffer = 64
	// historySize is how many framed events are kept for Last-Event-ID replay.
	historySize = 32
	// keepAlive is the interval of comment lines on idle streams.
	keepAlive = 25 * time.Second
)

type frame struct {
	id  string
	raw []byte
}

type subscribeReq struct {
	ch     chan []byte
	lastID string
}

// Broker manages SSE client connections and broadcasts events.
//
// A single event loop owns the clients, the replay history and the
// communities.changed throttle. Public methods talk to it over channels.
type Broker struct {
	listMin time.Duration

	subscribeCh   chan subscribeReq
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	joinCh        chan string
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. listThrottle bounds how often
// communities.changed is emitted.
func NewBroker(listThrottle time.Duration) *Broker {
	if listThrottle <= 0 {
		listThrottle = 2 * time.Second
	}

	b := &Broker{
		listMin:       listThrottle,
		subscribeCh:   make(chan subscribeReq),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		joinCh:        make(chan string, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func encode(event Event) (frame, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return frame{}, err
	}
	id := uuid.NewString()
	return frame{id: id, raw: []byte(fmt.Sprintf("id: %s\nevent: %s\ndata: %s\n\n", id, event.Type, payload))}, nil
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	history := make([]frame, 0, historySize)
	var lastList time.Time

	send := func(ch chan []byte, raw []byte) {
		select {
		case ch <- raw:
		default:
			// Slow client; drop rather than block the loop.
		}
	}

	broadcast := func(event Event) {
		f, err := encode(event)
		if err != nil {
			return
		}
		if len(history) == historySize {
			history = append(history[:0], history[1:]...)
		}
		history = append(history, f)
		for ch := range clients {
			send(ch, f.raw)
		}
	}

	replay := func(ch chan []byte, lastID string) {
		for i, f := range history {
			if f.id != lastID {
				continue
			}
			for _, next := range history[i+1:] {
				send(ch, next.raw)
			}
			return
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case req := <-b.subscribeCh:
			clients[req.ch] = struct{}{}
			if req.lastID != "" {
				replay(req.ch, req.lastID)
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case id := <-b.joinCh:
			broadcast(Event{Type: TypeCommunityJoined, Data: map[string]string{"id": id}})

			if now := time.Now(); now.Sub(lastList) >= b.listMin {
				lastList = now
				broadcast(Event{Type: TypeCommunitiesChanged, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the event loop and closes every client channel. It is safe to call twice.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	return b.SubscribeFrom("")
}

// SubscribeFrom adds a new client and first replays the remembered events
// published after lastID. Unknown ids replay nothing.
func (b *Broker) SubscribeFrom(lastID string) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscribeReq{ch: ch, lastID: lastID}:
	case <-b.stopped:
		close(ch)
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

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishJoin announces that community id gained a member, followed by a
// throttled communities.changed event.
func (b *Broker) PublishJoin(id string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.joinCh <- id:
	case <-b.stopped:
	}
}

// PublishContent announces that a content page was reloaded. An empty slug
// means every page.
func (b *Broker) PublishContent(slug string) {
	b.Publish(Event{Type: TypeContentUpdated, Data: map[string]string{"slug": slug}})
}

// ServeHTTP streams events to one client (GET /events/stream). A reconnecting
// browser sends Last-Event-ID and gets the events it missed.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.SubscribeFrom(r.Header.Get("Last-Event-ID"))
	defer b.Unsubscribe(ch)

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
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
