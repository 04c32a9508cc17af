// Package events provides in-process pub/sub distribution of pipeline
// progress events to SSE subscribers.
package events

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the pipeline.
const (
	TypeStageStarted      = "stage_started"
	TypeStageCompleted    = "stage_completed"
	TypePipelineCompleted = "pipeline_completed"
	TypePipelineFailed    = "pipeline_failed"
)

// Event is one pipeline progress notification.
type Event struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	ASIN    string         `json:"asin"`
	Time    time.Time      `json:"time"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Bus fan-outs events to subscribers. Slow subscribers drop events rather
// than block the pipeline.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]chan Event
	nextID      uint64
	seq         atomic.Uint64
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[uint64]chan Event)}
}

// Subscribe registers a subscriber and returns its channel and a cancel
// function. The channel is closed on cancel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, 64)
	b.subscribers[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if c, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(c)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to all current subscribers.
func (b *Bus) Publish(eventType, asin string, payload map[string]any) {
	e := Event{
		ID:      fmt.Sprintf("%d", b.seq.Add(1)),
		Type:    eventType,
		ASIN:    asin,
		Time:    time.Now().UTC(),
		Payload: payload,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
