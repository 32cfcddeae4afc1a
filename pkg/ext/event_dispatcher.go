// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package ext

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
)

type Event string

type EventHandlerFn[T any] func(ctx context.Context, args T) error

var ErrInvalidEvent = errors.New("invalid event name for the current type")

// EventDispatcher fans a raised event out to every registered handler.
// Handlers run synchronously on the raising goroutine, so by the time
// RaiseEvent returns every subscriber has observed the event payload.
// There is no replay: handlers added after an event was raised do not
// see it.
type EventDispatcher[T any] struct {
	mu         sync.RWMutex
	handlers   map[Event][]EventHandlerFn[T]
	eventNames map[Event]struct{}
}

// NewEventDispatcher creates a dispatcher accepting the given event names.
// An empty set of names allows any event.
func NewEventDispatcher[T any](validEventNames ...Event) *EventDispatcher[T] {
	eventNames := map[Event]struct{}{}
	for _, name := range validEventNames {
		eventNames[name] = struct{}{}
	}

	return &EventDispatcher[T]{
		handlers:   map[Event][]EventHandlerFn[T]{},
		eventNames: eventNames,
	}
}

// AddHandler registers an event handler for the specified event name.
func (ed *EventDispatcher[T]) AddHandler(name Event, handler EventHandlerFn[T]) error {
	if err := ed.validateEvent(name); err != nil {
		return err
	}

	ed.mu.Lock()
	defer ed.mu.Unlock()

	ed.handlers[name] = append(ed.handlers[name], handler)
	return nil
}

// RemoveHandler unregisters a previously added handler.
func (ed *EventDispatcher[T]) RemoveHandler(name Event, handler EventHandlerFn[T]) error {
	if err := ed.validateEvent(name); err != nil {
		return err
	}

	ed.mu.Lock()
	defer ed.mu.Unlock()

	target := fmt.Sprintf("%v", handler)
	handlers := ed.handlers[name]
	for i, ref := range handlers {
		if fmt.Sprintf("%v", ref) == target {
			ed.handlers[name] = append(handlers[:i], handlers[i+1:]...)
			return nil
		}
	}

	return fmt.Errorf("specified handler was not found in %s event registrations", name)
}

// RaiseEvent calls every handler registered for the event. All handlers
// run even when an earlier one fails; their errors are combined.
func (ed *EventDispatcher[T]) RaiseEvent(ctx context.Context, name Event, eventArgs T) error {
	if err := ed.validateEvent(name); err != nil {
		return err
	}

	ed.mu.RLock()
	handlers := make([]EventHandlerFn[T], len(ed.handlers[name]))
	copy(handlers, ed.handlers[name])
	ed.mu.RUnlock()

	var combined error
	for _, handler := range handlers {
		if err := handler(ctx, eventArgs); err != nil {
			combined = multierr.Append(combined, err)
		}
	}

	return combined
}

func (ed *EventDispatcher[T]) validateEvent(name Event) error {
	if len(ed.eventNames) == 0 {
		return nil
	}

	if _, has := ed.eventNames[name]; !has {
		return fmt.Errorf("%s: %w", name, ErrInvalidEvent)
	}

	return nil
}
