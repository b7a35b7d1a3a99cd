// Package notifier is an in-process publish/subscribe registry for domain events.
//
// A Registry is created once per process (or per test) and injected where needed.
// Handlers for an event name run sequentially in subscription order; the first
// handler error stops delivery and is returned to the publisher. Nothing is
// persisted or retried.
package notifier

import (
	"context"
	"fmt"
	"sync"

	"storybook-server/internal/domain"

	"go.uber.org/zap"
)

// Handler reacts to one published event.
type Handler func(ctx context.Context, event domain.Event) error

// SubscriptionID identifies a subscription for Unsubscribe.
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	handler Handler
}

// Registry keeps subscribers keyed by event name.
type Registry struct {
	mu     sync.RWMutex
	nextID SubscriptionID
	subs   map[string][]subscription
	logger *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		subs:   make(map[string][]subscription),
		logger: logger.Named("Notifier"),
	}
}

// Subscribe registers handler for events with the given name.
func (r *Registry) Subscribe(name string, handler Handler) SubscriptionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.subs[name] = append(r.subs[name], subscription{id: id, handler: handler})
	r.logger.Debug("Handler subscribed", zap.String("event", name), zap.Uint64("subscriptionID", uint64(id)))
	return id
}

// Unsubscribe removes a subscription. It reports whether it was found.
func (r *Registry) Unsubscribe(id SubscriptionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, subs := range r.subs {
		for i, s := range subs {
			if s.id != id {
				continue
			}
			remaining := make([]subscription, 0, len(subs)-1)
			remaining = append(remaining, subs[:i]...)
			remaining = append(remaining, subs[i+1:]...)
			if len(remaining) == 0 {
				delete(r.subs, name)
			} else {
				r.subs[name] = remaining
			}
			return true
		}
	}
	return false
}

// Publish delivers event to every handler subscribed to its name.
func (r *Registry) Publish(ctx context.Context, event domain.Event) error {
	name := event.EventName()

	// Handlers run without the lock held so they may subscribe or do I/O.
	r.mu.RLock()
	subs := make([]subscription, len(r.subs[name]))
	copy(subs, r.subs[name])
	r.mu.RUnlock()

	for _, s := range subs {
		if err := s.handler(ctx, event); err != nil {
			return fmt.Errorf("handler %d for %s: %w", s.id, name, err)
		}
	}
	return nil
}

// PublishMany publishes events in order and stops at the first error.
func (r *Registry) PublishMany(ctx context.Context, events ...domain.Event) error {
	for _, event := range events {
		if err := r.Publish(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// HandlerCount returns the number of handlers subscribed to name.
func (r *Registry) HandlerCount(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[name])
}

// Clear drops every subscription. Intended for tests.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = make(map[string][]subscription)
}
