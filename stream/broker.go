package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/roster/ext"
	"github.com/xraph/roster/migration"
	"github.com/xraph/roster/task"
)

// The broker must stay subscribed to every lifecycle hook it streams.
var (
	_ ext.Extension         = (*Broker)(nil)
	_ ext.TaskCreated       = (*Broker)(nil)
	_ ext.TaskRunning       = (*Broker)(nil)
	_ ext.TaskUpdated       = (*Broker)(nil)
	_ ext.TaskTerminated    = (*Broker)(nil)
	_ ext.TaskPersistFailed = (*Broker)(nil)
	_ ext.TaskOverdue       = (*Broker)(nil)
	_ ext.OrphanExpunged    = (*Broker)(nil)
	_ ext.MigrationStep     = (*Broker)(nil)
	_ ext.Migrated          = (*Broker)(nil)
	_ ext.Shutdown          = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// Broker streams lifecycle events to subscribers. Registered as an
// engine extension, it converts each hook into an [Event] and fans it
// out over the topic registry; consumers attach with [Broker.Subscribe]
// and read from the subscriber channel.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[string]*Subscriber

	published atomic.Int64

	bufferSize     int
	defaultCredits int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// NewBroker creates a stream broker with no subscribers.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         logger,
		subs:           make(map[string]*Subscriber),
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Topics exposes the topic registry, for transports that manage
// subscriptions themselves.
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a subscriber and attaches it to the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)
	b.mu.Lock()
	b.subs[subscriberID] = sub
	b.mu.Unlock()
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo attaches an existing subscriber to additional topics.
// Unknown subscriber IDs are ignored.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	b.mu.RLock()
	sub, ok := b.subs[subscriberID]
	b.mu.RUnlock()
	if !ok {
		return
	}
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe detaches a subscriber from specific topics. The
// subscriber itself stays alive.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber detaches a subscriber from every topic and closes
// its channel.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	b.mu.Lock()
	sub, ok := b.subs[subscriberID]
	delete(b.subs, subscriberID)
	b.mu.Unlock()
	if ok {
		sub.Close()
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	sub, ok := b.subs[subscriberID]
	return sub, ok
}

// Stats reports the broker's current fan-out state. Drop counts are
// summed over live subscribers, so removing one forgets its drops.
func (b *Broker) Stats() BrokerStats {
	b.mu.RLock()
	count := len(b.subs)
	var dropped int64
	for _, sub := range b.subs {
		dropped += sub.Dropped()
	}
	b.mu.RUnlock()

	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.published.Load(),
		TotalDropped:    dropped,
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDropped    int64 `json:"total_dropped"`
}

// publish broadcasts an event to every topic it resolves to.
func (b *Broker) publish(evt *Event) {
	delivered := b.topics.Broadcast(resolveTopics(evt), evt)
	b.published.Add(int64(delivered))
}

// publishTask wraps a task payload in the event envelope and publishes
// it on the owning job's entity topic. The identifying fields are
// stamped here so the hooks only supply what varies.
func (b *Broker) publishTask(typ EventType, t *task.Task, data TaskEventData) error {
	data.TaskID = t.ID
	data.JobID = t.JobID.String()
	data.State = string(t.State)
	b.publish(&Event{
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(t.JobID.String()),
		Data:      mustMarshal(data),
	})
	return nil
}

// systemEvent publishes an event with no entity topic; routing is by
// event type alone.
func (b *Broker) systemEvent(typ EventType, data any) error {
	b.publish(&Event{
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Data:      mustMarshal(data),
	})
	return nil
}

// mustMarshal marshals event payloads. All payload types are plain
// structs, so a failure is a programming error.
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

// ── Task lifecycle hooks ────────────────────────────

func (b *Broker) OnTaskCreated(_ context.Context, t *task.Task) error {
	return b.publishTask(EventTaskCreated, t, TaskEventData{})
}

func (b *Broker) OnTaskRunning(_ context.Context, t *task.Task) error {
	return b.publishTask(EventTaskRunning, t, TaskEventData{Host: t.Host})
}

func (b *Broker) OnTaskUpdated(_ context.Context, t *task.Task) error {
	return b.publishTask(EventTaskUpdated, t, TaskEventData{Host: t.Host, Healthy: t.Health})
}

func (b *Broker) OnTaskTerminated(_ context.Context, t *task.Task) error {
	return b.publishTask(EventTaskTerminated, t, TaskEventData{})
}

func (b *Broker) OnTaskPersistFailed(_ context.Context, t *task.Task, taskErr error) error {
	return b.publishTask(EventTaskPersistFailed, t, TaskEventData{Error: taskErr.Error()})
}

func (b *Broker) OnTaskOverdue(_ context.Context, t *task.Task) error {
	return b.publishTask(EventTaskOverdue, t, TaskEventData{})
}

// ── Reconciliation and storage hooks ────────────────

func (b *Broker) OnOrphanExpunged(_ context.Context, key string) error {
	return b.systemEvent(EventOrphanExpunged, OrphanEventData{Key: key})
}

func (b *Broker) OnMigrationStep(_ context.Context, name string, target migration.Version) error {
	return b.systemEvent(EventMigrationStep, StorageEventData{
		Step:   name,
		Target: target.String(),
	})
}

func (b *Broker) OnMigrated(_ context.Context, from, to migration.Version, steps int) error {
	return b.systemEvent(EventMigrated, StorageEventData{
		From:  from.String(),
		To:    to.String(),
		Steps: steps,
	})
}

// ── Shutdown ────────────────────────────────────────

// OnShutdown closes every subscriber channel. Consumers see the close
// as end-of-stream.
func (b *Broker) OnShutdown(_ context.Context) error {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*Subscriber)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	b.logger.Info("stream broker shut down")
	return nil
}
