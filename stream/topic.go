package stream

import (
	"fmt"
	"strings"
	"sync"
)

// Topic names come in two shapes, globals and entity topics:
//
//	job:<jobID>  — events for one job's tasks
//	tasks        — all task lifecycle events
//	storage      — schema migration and orphan cleanup events
//	firehose     — everything
const (
	TopicTasks    = "tasks"
	TopicStorage  = "storage"
	TopicFirehose = "firehose"
)

// JobTopic names the entity topic carrying one job's task events.
func JobTopic(jobID string) string { return "job:" + jobID }

// TopicRegistry tracks which subscribers sit on which topics. Topics
// exist exactly as long as they have subscribers. Safe for concurrent
// use.
type TopicRegistry struct {
	mu   sync.RWMutex
	subs map[string]map[string]*Subscriber // topic → subscriber ID → subscriber
}

// NewTopicRegistry returns a registry with no topics yet.
func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{subs: make(map[string]map[string]*Subscriber)}
}

// Subscribe puts a subscriber on a topic, creating the topic as needed.
func (tr *TopicRegistry) Subscribe(topic string, sub *Subscriber) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.subs[topic] == nil {
		tr.subs[topic] = make(map[string]*Subscriber)
	}
	tr.subs[topic][sub.ID()] = sub
	sub.addTopic(topic)
}

// drop removes one subscriber from one topic and prunes the topic if it
// emptied. Callers hold the write lock.
func (tr *TopicRegistry) drop(topic, subscriberID string) {
	set, ok := tr.subs[topic]
	if !ok {
		return
	}
	if sub, on := set[subscriberID]; on {
		sub.removeTopic(topic)
		delete(set, subscriberID)
	}
	if len(set) == 0 {
		delete(tr.subs, topic)
	}
}

// Unsubscribe removes a subscriber from a topic.
func (tr *TopicRegistry) Unsubscribe(topic, subscriberID string) {
	tr.mu.Lock()
	tr.drop(topic, subscriberID)
	tr.mu.Unlock()
}

// UnsubscribeAll removes a subscriber from every topic it is on.
func (tr *TopicRegistry) UnsubscribeAll(subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	for topic := range tr.subs {
		tr.drop(topic, subscriberID)
	}
}

// Broadcast delivers an event to every subscriber on any of the given
// topics, once per subscriber regardless of how many of the topics it is
// on. Returns the number of subscribers that accepted the event.
// Delivery happens outside the lock; a slow subscriber cannot stall the
// registry.
func (tr *TopicRegistry) Broadcast(topics []string, evt *Event) int {
	tr.mu.RLock()
	targets := make(map[string]*Subscriber)
	for _, topic := range topics {
		for id, sub := range tr.subs[topic] {
			targets[id] = sub
		}
	}
	tr.mu.RUnlock()

	delivered := 0
	for _, sub := range targets {
		if sub.send(evt) {
			delivered++
		}
	}
	return delivered
}

// TopicCount returns the number of live topics.
func (tr *TopicRegistry) TopicCount() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.subs)
}

// SubscriberCount reports how many subscribers sit on the topic.
func (tr *TopicRegistry) SubscriberCount(topic string) int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.subs[topic])
}

// resolveTopics maps an event to the topics it publishes on: always the
// firehose, the matching global topic for its type family, and the
// event's own entity topic when set.
func resolveTopics(evt *Event) []string {
	topics := []string{TopicFirehose}

	name := string(evt.Type)
	switch {
	case strings.HasPrefix(name, "task."):
		topics = append(topics, TopicTasks)
	case strings.HasPrefix(name, "store."), strings.HasPrefix(name, "storage."):
		topics = append(topics, TopicStorage)
	}

	if evt.Topic != "" {
		topics = append(topics, evt.Topic)
	}
	return topics
}

// ParseTopicEntity splits an entity topic into its type and ID.
// For example, "job:/prod/api" returns ("job", "/prod/api").
// Returns ("", "") for global topics like "tasks" or "firehose".
func ParseTopicEntity(topic string) (entityType, entityID string) {
	entityType, entityID, ok := strings.Cut(topic, ":")
	if !ok {
		return "", ""
	}
	return entityType, entityID
}

// ValidateTopic checks whether a topic names one of the globals or a
// job entity.
func ValidateTopic(topic string) error {
	switch topic {
	case TopicTasks, TopicStorage, TopicFirehose:
		return nil
	}

	entityType, entityID := ParseTopicEntity(topic)
	if entityType == "" || entityID == "" {
		return fmt.Errorf("stream: malformed topic %q", topic)
	}
	if entityType != "job" {
		return fmt.Errorf("stream: no such topic entity type %q", entityType)
	}
	return nil
}
