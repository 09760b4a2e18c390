// Package events fans settlement events out to in-process subscribers and
// forwards them to an external publisher.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindTransactionPending  Kind = "transaction.pending"
	KindTransactionResolved Kind = "transaction.resolved"
	KindTransactionInstant  Kind = "transaction.completed"
	KindReserveUpdated      Kind = "reserve.updated"
	KindPricesUpdated       Kind = "prices.updated"
)

type Event struct {
	ID            string          `json:"id"`
	Kind          Kind            `json:"kind"`
	TransactionID string          `json:"transaction_id,omitempty"`
	UserID        string          `json:"user_id,omitempty"`
	Type          string          `json:"type,omitempty"`
	Status        string          `json:"status,omitempty"`
	Decision      string          `json:"decision,omitempty"`
	FiatAmount    decimal.Decimal `json:"fiat_amount"`
	CacaoAmount   decimal.Decimal `json:"cacao_amount"`
	OperatorID    string          `json:"operator_id,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// Publisher delivers events outside the process.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close()
}

// Bus is an in-process fan-out. Publish never blocks: a subscriber whose
// buffer is full misses the event.
type Bus struct {
	mu      sync.RWMutex
	nextID  int
	subs    map[int]chan Event
	dropped atomic.Int64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a cancel func that closes it.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many deliveries were skipped because of full buffers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
