package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type Type string

const (
	ProductCreated  Type = "product.created"
	ProductUpdated  Type = "product.updated"
	ProductRestored Type = "product.restored"
	ProductLocked   Type = "product.locked"
	ProductUnlocked Type = "product.unlocked"
	VersionDeleted  Type = "version.deleted"
)

// Event announces a change to one product. Consumers re-read the store;
// the event itself is only a hint.
type Event struct {
	Type      Type      `json:"type"`
	ProductID string    `json:"product_id"`
	ActorID   string    `json:"actor_id,omitempty"`
	UpdatedAt string    `json:"updated_at,omitempty"`
	At        time.Time `json:"at"`
}

func (e Event) Marshal() ([]byte, error) { return json.Marshal(e) }

func Unmarshal(b []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(b, &e)
	return e, err
}

type Handler func(ctx context.Context, e Event)

// Broker fans every published event out to every live subscriber.
type Broker interface {
	Publish(ctx context.Context, e Event) error
	// Subscribe delivers events until ctx is done.
	Subscribe(ctx context.Context, h Handler) error
	Close() error
}

// MemoryBroker is the in-process Broker used when no AMQP URL is set.
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	next   int
	closed bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: map[int]chan Event{}}
}

// Publish never blocks: a subscriber whose buffer is full misses the
// event and falls back to its next poll.
func (b *MemoryBroker) Publish(_ context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, h Handler) error {
	ch := make(chan Event, 16)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return context.Canceled
	}
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		defer b.remove(id)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				h(ctx, e)
			}
		}
	}()
	return nil
}

func (b *MemoryBroker) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	return nil
}
