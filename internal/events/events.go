// Package events fans lottery events out to sinks after mutations commit.
package events

import (
	"context"
	"encoding/json"
	"sync"

	"lotto/internal/models"

	"github.com/google/logger"
)

// Sink receives committed events.
type Sink interface {
	Write(ctx context.Context, evt models.Event) error
}

// Bus delivers every event to every sink in registration order. A failing
// sink is logged and does not stop delivery to the others.
type Bus struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewBus creates a Bus with the given sinks.
func NewBus(sinks ...Sink) *Bus {
	return &Bus{sinks: sinks}
}

// Add registers another sink.
func (b *Bus) Add(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Publish delivers evts in order.
func (b *Bus) Publish(ctx context.Context, evts ...models.Event) {
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()
	for _, evt := range evts {
		for _, s := range sinks {
			if err := s.Write(ctx, evt); err != nil {
				logger.Errorf("events: sink %T rejected %s: %v", s, evt.Kind, err)
			}
		}
	}
}

// LogSink writes each event to the process log as JSON.
type LogSink struct{}

// Write implements Sink.
func (LogSink) Write(ctx context.Context, evt models.Event) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	logger.Infof("event %s: %s", evt.Kind, b)
	return nil
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []models.Event
}

// Write implements Sink.
func (r *Recorder) Write(ctx context.Context, evt models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

// Events returns recorded events, optionally filtered by kind.
func (r *Recorder) Events(kinds ...models.EventKind) []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(kinds) == 0 {
		return append([]models.Event(nil), r.events...)
	}
	var out []models.Event
	for _, e := range r.events {
		for _, k := range kinds {
			if e.Kind == k {
				out = append(out, e)
				break
			}
		}
	}
	return out
}
