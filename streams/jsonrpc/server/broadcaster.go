package server

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/defistate/defistate-oracle-go/differ"
	"github.com/defistate/defistate-oracle-go/engine"
)

// Event types pushed on the state stream.
const (
	EventFull = "full"
	EventDiff = "diff"
)

// Event is one message of the state stream.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}

// StateDiffer computes the diff between consecutive states.
type StateDiffer interface {
	Diff(old, new *engine.State) (*differ.StateDiff, error)
}

// Broadcaster fans published states out to subscribers. A new subscriber
// first receives the latest full state and then a diff per publish. When a
// subscriber falls a whole buffer behind, its pending events are discarded
// and replaced by a full copy of the newest state.
type Broadcaster struct {
	differ StateDiffer
	logger Logger
	buffer int

	mu     sync.Mutex
	last   *engine.State
	subs   map[uint64]chan Event
	nextID uint64

	metrics *Metrics
}

func newBroadcaster(d StateDiffer, logger Logger, buffer int, metrics *Metrics) *Broadcaster {
	return &Broadcaster{
		differ:  d,
		logger:  logger,
		buffer:  max(buffer, 1),
		subs:    make(map[uint64]chan Event),
		metrics: metrics,
	}
}

// Latest returns the most recently published state, or nil.
func (b *Broadcaster) Latest() *engine.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// Publish records state as the latest one and notifies subscribers. When the
// previous state cannot be diffed against, subscribers get a full state.
func (b *Broadcaster) Publish(state *engine.State) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var (
		event Event
		err   error
	)
	if b.last == nil {
		event, err = newEvent(EventFull, state)
	} else {
		diff, diffErr := b.differ.Diff(b.last, state)
		if diffErr != nil {
			b.logger.Warn("cannot diff states, sending full state", "error", diffErr, "block", state.BlockNumber())
			event, err = newEvent(EventFull, state)
		} else {
			event, err = newEvent(EventDiff, diff)
		}
	}
	if err != nil {
		return err
	}
	b.last = state

	var resync *Event
	for id, ch := range b.subs {
		select {
		case ch <- event:
			continue
		default:
		}

		if resync == nil {
			full := event
			if event.Type != EventFull {
				if full, err = newEvent(EventFull, state); err != nil {
					return err
				}
			}
			resync = &full
		}
		// Publish is the only sender and holds b.mu, so the drained buffer
		// stays empty until the full state is queued.
		drain(ch)
		ch <- *resync
		b.metrics.resyncs.Inc()
		b.logger.Warn("subscriber fell behind, resyncing with full state", "subscriber", id, "block", state.BlockNumber())
	}
	b.metrics.published.WithLabelValues(event.Type).Inc()
	return nil
}

func drain(ch chan Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// Subscribe registers a subscriber. The returned cancel func must be called
// once the subscriber is done.
func (b *Broadcaster) Subscribe() (<-chan Event, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.last != nil {
		event, err := newEvent(EventFull, b.last)
		if err != nil {
			return nil, nil, err
		}
		ch <- event
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.metrics.subscribers.Set(float64(len(b.subs)))

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			close(sub)
			delete(b.subs, id)
			b.metrics.subscribers.Set(float64(len(b.subs)))
		}
	}
	return ch, cancel, nil
}

func newEvent(eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return Event{Type: eventType, Payload: data, SentAt: time.Now().UnixNano()}, nil
}
