package events

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Topics published by the focus service.
const (
	TopicSessionStarted = "session.started"
	TopicSessionEvent   = "session.event"
	TopicSessionStatus  = "session.status"
	TopicCheckInPrompt  = "checkin.prompt"
	TopicSessionEnded   = "session.ended"

	// TopicAll subscribes to every topic.
	TopicAll = "*"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Event system event
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	Source    string    `json:"source,omitempty"`
}

// Handler receives events for one subscription, in publish order.
type Handler func(event Event)

type subscriber struct {
	topic   string
	ch      chan Event
	handler Handler
}

// Bus fans events out to subscribers. Each subscriber has its own queue and
// goroutine, so a slow subscriber never blocks Publish; when its queue is
// full the event is dropped for that subscriber only.
type Bus struct {
	mu        sync.RWMutex
	subs      map[uint64]*subscriber
	nextID    uint64
	published map[string]time.Time
	buffer    int
	dropped   atomic.Int64
	logger    *zap.Logger
}

// NewBus creates a bus; buffer <= 0 uses DefaultBuffer.
func NewBus(logger *zap.Logger, buffer int) *Bus {
	if logger == nil {
		logger = zap.L()
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{
		subs:      make(map[uint64]*subscriber),
		published: make(map[string]time.Time),
		buffer:    buffer,
		logger:    logger.Named("events"),
	}
}

// Subscribe registers handler for topic (or TopicAll) and returns a func that
// removes it. Events already queued are still delivered after unsubscribe.
func (b *Bus) Subscribe(topic string, handler Handler) (unsubscribe func()) {
	s := &subscriber{topic: topic, ch: make(chan Event, b.buffer), handler: handler}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = s
	b.mu.Unlock()

	go func() {
		for ev := range s.ch {
			b.deliver(s, ev)
		}
	}()
	b.logger.Debug("event handler subscribed", zap.String("topic", topic))

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(s.ch)
			}
			b.mu.Unlock()
		})
	}
}

func (b *Bus) deliver(s *subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", zap.String("topic", ev.Type), zap.Any("panic", r))
		}
	}()
	s.handler(ev)
}

// Publish queues event for every matching subscriber.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.Lock()
	if _, ok := b.published[event.Type]; !ok {
		b.published[event.Type] = event.Timestamp
	}
	// the write lock also keeps Subscribe's close from racing the sends
	delivered := 0
	for _, s := range b.subs {
		if s.topic != event.Type && s.topic != TopicAll {
			continue
		}
		select {
		case s.ch <- event:
			delivered++
		default:
			b.dropped.Add(1)
			b.logger.Warn("event dropped, subscriber queue full", zap.String("topic", event.Type))
		}
	}
	b.mu.Unlock()

	if delivered == 0 {
		b.logger.Debug("no handlers for event", zap.String("topic", event.Type))
	}
}

// PublishEvent convenience method: publish a session scoped event
func (b *Bus) PublishEvent(topic, sessionID string, data any, source string) {
	b.Publish(Event{Type: topic, SessionID: sessionID, Data: data, Source: source})
}

// PublishedTypes returns every topic published so far with its first time.
func (b *Bus) PublishedTypes() map[string]time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]time.Time, len(b.published))
	for k, v := range b.published {
		out[k] = v
	}
	return out
}

// Dropped counts events dropped on full subscriber queues.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close removes every subscriber.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, s := range b.subs {
		delete(b.subs, id)
		close(s.ch)
	}
}
