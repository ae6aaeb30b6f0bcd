package core

import (
	"sync"
	"time"
)

// EventKind names a change the presentation layer must react to.
type EventKind string

const (
	EventDatasetAdded     EventKind = "dataset.added"
	EventDatasetDeleted   EventKind = "dataset.deleted"
	EventDatasetSwitched  EventKind = "dataset.switched"
	EventDatasetUpdated   EventKind = "dataset.updated"
	EventFormCleared      EventKind = "form.cleared"
	EventFormReplaced     EventKind = "form.replaced"
	EventAttributeAdded   EventKind = "attribute.added"
	EventAttributeRemoved EventKind = "attribute.removed"
	EventAttributeUpdated EventKind = "attribute.updated"
	EventAttributesLabels EventKind = "attribute.relabeled"
	EventImportState      EventKind = "import.state"
	EventMergeConfirm     EventKind = "merge.confirm"
	EventMergeApplied     EventKind = "merge.applied"
	EventMergeCancelled   EventKind = "merge.cancelled"
	EventSubmitted        EventKind = "form.submitted"
)

// Event is one refresh signal. Only the fields relevant to Kind are set.
type Event struct {
	Kind      EventKind   `json:"kind"`
	DatasetID int         `json:"datasetId,omitempty"`
	Index     int         `json:"index,omitempty"`
	State     ImportState `json:"state,omitempty"`
	Message   string      `json:"message,omitempty"`
	At        time.Time   `json:"at"`
}

// eventBufferSize is the per-subscriber buffer. Slow subscribers drop events
// rather than stall the session.
const eventBufferSize = 32

// Broadcaster fans events out to subscribers.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

// Subscribe registers a listener. The returned cancel func must be called
// when the listener goes away. The channel is closed on cancel or Close.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, eventBufferSize)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers ev to every subscriber without blocking.
func (b *Broadcaster) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns the number of active listeners.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later subscriptions receive a
// closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
