// Package bus carries dataset and analysis events between the API and the
// background workers.
package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/opensource-finance/fakeguard/internal/domain"
)

var (
	ErrBusClosed        = errors.New("bus is closed")
	ErrTenantIDRequired = errors.New("tenantID is required")
)

// ChannelBus is the in-process EventBus.
//
// Tenant partitions fan out to every subscriber. The pipeline partition is a
// work queue: each message goes to exactly one subscriber, round-robin, so a
// dataset is analyzed once however many workers are running.
type ChannelBus struct {
	mu         sync.RWMutex
	bufferSize int
	partitions map[string]*partition
	closed     bool
	dropped    atomic.Int64
}

type partition struct {
	subs []*channelSubscription
	next atomic.Uint64
}

type channelSubscription struct {
	id      string
	key     string
	topic   string
	handler domain.MessageHandler
	msgCh   chan *domain.Message
	ctx     context.Context
	cancel  context.CancelFunc
	bus     *ChannelBus
	once    sync.Once
}

// NewChannelBus creates a bus whose subscribers each buffer bufferSize
// messages before new ones are dropped.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		bufferSize: bufferSize,
		partitions: make(map[string]*partition),
	}
}

// Publish delivers payload to the subscribers of topic in tenantID's partition.
func (b *ChannelBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if tenantID == "" {
		return ErrTenantIDRequired
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	p := b.partitions[partitionKey(tenantID, topic)]
	var subs []*channelSubscription
	var start uint64
	if p != nil {
		subs = p.subs
		start = p.next.Add(1) - 1
	}
	b.mu.RUnlock()

	if len(subs) == 0 {
		return nil
	}

	msg := newMessage(ctx, tenantID, topic, payload)

	if tenantID == domain.PipelineTenantID {
		// First subscriber with room, starting from the round-robin cursor.
		for i := range subs {
			sub := subs[(int(start)+i)%len(subs)]
			select {
			case sub.msgCh <- msg:
				return nil
			default:
			}
		}
		b.drop(topic, msg.ID)
		return nil
	}

	for _, sub := range subs {
		select {
		case sub.msgCh <- msg:
		default:
			b.drop(topic, msg.ID)
		}
	}
	return nil
}

func (b *ChannelBus) drop(topic, id string) {
	b.dropped.Add(1)
	slog.Warn("subscriber buffer full, dropping message",
		"topic", topic,
		"message_id", id,
	)
}

// Subscribe registers handler for topic in tenantID's partition. Each
// subscription runs its handler on its own goroutine, one message at a time.
func (b *ChannelBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if tenantID == "" {
		return nil, ErrTenantIDRequired
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	key := partitionKey(tenantID, topic)

	sub := &channelSubscription{
		id:      uuid.New().String(),
		key:     key,
		topic:   topic,
		handler: handler,
		msgCh:   make(chan *domain.Message, b.bufferSize),
		ctx:     subCtx,
		cancel:  cancel,
		bus:     b,
	}

	p := b.partitions[key]
	if p == nil {
		p = &partition{}
		b.partitions[key] = p
	}
	// Copy on write; Publish iterates the old slice without the lock.
	subs := make([]*channelSubscription, 0, len(p.subs)+1)
	p.subs = append(append(subs, p.subs...), sub)

	go sub.run()

	return sub, nil
}

func (s *channelSubscription) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.msgCh:
			if err := s.handler(s.ctx, msg); err != nil {
				slog.Error("handler error",
					"topic", s.topic,
					"tenant_id", msg.TenantID,
					"message_id", msg.ID,
					"error", err,
				)
			}
		}
	}
}

// Ping reports whether the bus still accepts messages.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	return nil
}

// Close stops every subscription. Buffered messages are discarded.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, p := range b.partitions {
		for _, sub := range p.subs {
			sub.cancel()
		}
	}
	b.partitions = make(map[string]*partition)
	return nil
}

// Dropped returns how many deliveries were discarded on full buffers.
func (b *ChannelBus) Dropped() int64 {
	return b.dropped.Load()
}

func (b *ChannelBus) remove(sub *channelSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.partitions[sub.key]
	if p == nil {
		return
	}
	subs := make([]*channelSubscription, 0, len(p.subs))
	for _, s := range p.subs {
		if s != sub {
			subs = append(subs, s)
		}
	}
	if len(subs) == 0 {
		delete(b.partitions, sub.key)
		return
	}
	p.subs = subs
}

func partitionKey(tenantID, topic string) string {
	return tenantID + ":" + topic
}

// Unsubscribe stops the handler goroutine and detaches from the bus.
func (s *channelSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.cancel()
		s.bus.remove(s)
	})
	return nil
}

func (s *channelSubscription) Topic() string {
	return s.topic
}
