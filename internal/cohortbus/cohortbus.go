// Package cohortbus is an in-process stand-in for the external cohort
// message bus named out of scope in spec §1: a channel per subscribed
// cohort member, fanning published events out to everyone except the
// publisher. Used by this module's own tests and by cmd/server's
// single-process demo in place of a real Kafka/JMS topic. Grounded on the
// teacher's pkg/orchestration/staging_registry.go Registry — a mutex-guarded
// map keyed by an identifier, with Register/Get/Unregister — generalized
// from storage-provider registration to event-channel subscription.
package cohortbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nucleus/omrs-core/internal/eventproc"
	"github.com/nucleus/omrs-core/internal/events"
)

// Bus is the in-process cohort event topic.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]chan events.InstanceEvent
}

func New() *Bus {
	return &Bus{subs: map[string]chan events.InstanceEvent{}}
}

// Subscribe registers metadataCollectionID as a cohort member and returns
// its inbound event channel, buffered to depth.
func (b *Bus) Subscribe(metadataCollectionID string, depth int) <-chan events.InstanceEvent {
	if depth <= 0 {
		depth = 100
	}
	ch := make(chan events.InstanceEvent, depth)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[metadataCollectionID] = ch
	return ch
}

// Unsubscribe removes a cohort member and closes its channel.
func (b *Bus) Unsubscribe(metadataCollectionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[metadataCollectionID]; ok {
		close(ch)
		delete(b.subs, metadataCollectionID)
	}
}

// Publish implements events.Connector: it fans the event out to every
// subscriber other than its originator. Delivery is at-least-once to a live
// subscriber with room in its queue and best-effort otherwise (spec §5
// "delivery is at-least-once with no ordering guarantee across GUIDs") — a
// full subscriber queue drops the event rather than blocking the publisher.
func (b *Bus) Publish(ctx context.Context, ev events.InstanceEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		if id == ev.OriginatingMetadataCollectionID {
			continue
		}
		select {
		case ch <- ev:
		default:
			slog.Default().Warn("cohortbus: subscriber queue full, event dropped", "subscriber", id, "eventType", ev.EventType)
		}
	}
	return nil
}

var _ events.Connector = (*Bus)(nil)

// Consume drains ch into processor.Process until ch is closed or ctx is
// cancelled — the per-subscriber loop that stands in for a real cohort
// member's inbound event listener.
func Consume(ctx context.Context, ch <-chan events.InstanceEvent, processor *eventproc.Processor) {
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			processor.Process(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}
