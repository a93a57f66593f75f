package server

import (
	"encoding/json"
	"sync"
	"time"
)

// ProgressEvent is published to a user's subscribers after every change to
// their active crawl.
type ProgressEvent struct {
	Type        string    `json:"type"`
	CrawlID     string    `json:"crawlId,omitempty"`
	StopNumber  int       `json:"stopNumber,omitempty"`
	CurrentStop int       `json:"currentStop,omitempty"`
	Completed   bool      `json:"completed,omitempty"`
	At          time.Time `json:"at"`
}

const (
	eventStarted       = "started"
	eventStopCompleted = "stop_completed"
	eventAdvanced      = "advanced"
	eventCompleted     = "completed"
	eventExited        = "exited"
	eventEnded         = "ended"
)

// Broker is an in-process pub/sub for progress events, keyed by user ID. A
// user's open SSE streams and WebSockets all subscribe to the same key.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan []byte]struct{}),
	}
}

// Subscribe returns a channel that receives JSON-encoded events for userID.
func (b *Broker) Subscribe(userID string) chan []byte {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[chan []byte]struct{})
	}
	b.subs[userID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(userID string, ch chan []byte) {
	b.mu.Lock()
	delete(b.subs[userID], ch)
	if len(b.subs[userID]) == 0 {
		delete(b.subs, userID)
	}
	b.mu.Unlock()
}

// Publish sends an event to all of userID's subscribers. Slow subscribers
// miss events rather than block the publisher.
func (b *Broker) Publish(userID string, event ProgressEvent) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	data, _ := json.Marshal(event)
	b.mu.RLock()
	for ch := range b.subs[userID] {
		select {
		case ch <- data:
		default:
		}
	}
	b.mu.RUnlock()
}

// Subscribers reports how many channels are open for userID.
func (b *Broker) Subscribers(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[userID])
}
