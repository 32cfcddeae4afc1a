// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package ext

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

const testEvent Event = "testEvent"

func TestEventDispatcher_RaiseEvent(t *testing.T) {
	dispatcher := NewEventDispatcher[string](testEvent)

	var received []string
	require.NoError(t, dispatcher.AddHandler(testEvent, func(ctx context.Context, args string) error {
		received = append(received, "first:"+args)
		return nil
	}))
	require.NoError(t, dispatcher.AddHandler(testEvent, func(ctx context.Context, args string) error {
		received = append(received, "second:"+args)
		return nil
	}))

	require.NoError(t, dispatcher.RaiseEvent(context.Background(), testEvent, "payload"))
	require.Equal(t, []string{"first:payload", "second:payload"}, received)
}

func TestEventDispatcher_InvalidEventName(t *testing.T) {
	dispatcher := NewEventDispatcher[string](testEvent)

	err := dispatcher.AddHandler("unknown", func(ctx context.Context, args string) error { return nil })
	require.ErrorIs(t, err, ErrInvalidEvent)

	err = dispatcher.RaiseEvent(context.Background(), "unknown", "payload")
	require.ErrorIs(t, err, ErrInvalidEvent)
}

func TestEventDispatcher_AnyEventWhenUnconstrained(t *testing.T) {
	dispatcher := NewEventDispatcher[int]()

	require.NoError(t, dispatcher.AddHandler("anything", func(ctx context.Context, args int) error { return nil }))
	require.NoError(t, dispatcher.RaiseEvent(context.Background(), "anything", 1))
}

func TestEventDispatcher_AllHandlersRunOnError(t *testing.T) {
	dispatcher := NewEventDispatcher[string](testEvent)

	firstErr := errors.New("first failed")
	secondRan := false

	require.NoError(t, dispatcher.AddHandler(testEvent, func(ctx context.Context, args string) error {
		return firstErr
	}))
	require.NoError(t, dispatcher.AddHandler(testEvent, func(ctx context.Context, args string) error {
		secondRan = true
		return errors.New("second failed")
	}))

	err := dispatcher.RaiseEvent(context.Background(), testEvent, "payload")
	require.True(t, secondRan)
	require.ErrorIs(t, err, firstErr)
	require.Len(t, multierr.Errors(err), 2)
}

func TestEventDispatcher_RemoveHandler(t *testing.T) {
	dispatcher := NewEventDispatcher[string](testEvent)

	calls := 0
	handler := func(ctx context.Context, args string) error {
		calls++
		return nil
	}

	require.NoError(t, dispatcher.AddHandler(testEvent, handler))
	require.NoError(t, dispatcher.RemoveHandler(testEvent, handler))

	require.NoError(t, dispatcher.RaiseEvent(context.Background(), testEvent, "payload"))
	require.Equal(t, 0, calls)

	// Removing a handler that is not registered reports an error.
	require.Error(t, dispatcher.RemoveHandler(testEvent, handler))
}
