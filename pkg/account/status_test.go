// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package account

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStatusTracker_Transitions(t *testing.T) {
	var observed []Status
	tracker := NewStatusTracker(func(status Status) {
		observed = append(observed, status)
	})

	require.Equal(t, StatusInitializing, tracker.Current())

	tracker.BeginLoggingIn()
	require.Equal(t, StatusLoggingIn, tracker.Current())

	tracker.Update(2)
	require.Equal(t, StatusLoggedIn, tracker.Current())

	// A login attempt while already logged in does not regress the status.
	tracker.BeginLoggingIn()
	require.Equal(t, StatusLoggedIn, tracker.Current())

	// Settling to the same status again does not notify.
	tracker.Update(1)
	require.Equal(t, StatusLoggedIn, tracker.Current())

	tracker.Update(0)
	require.Equal(t, StatusLoggedOut, tracker.Current())

	require.Equal(t, []Status{StatusLoggingIn, StatusLoggedIn, StatusLoggedOut}, observed)
}

func TestStatusTracker_WaitForLogin(t *testing.T) {
	tests := []struct {
		name   string
		drive  func(tracker *StatusTracker)
		want   bool
	}{
		{
			name: "ResolvesTrueOnLogin",
			drive: func(tracker *StatusTracker) {
				tracker.BeginLoggingIn()
				tracker.Update(1)
			},
			want: true,
		},
		{
			name: "ResolvesFalseOnLogout",
			drive: func(tracker *StatusTracker) {
				tracker.Update(0)
			},
			want: false,
		},
		{
			name: "SuspendsThroughToggles",
			drive: func(tracker *StatusTracker) {
				tracker.BeginLoggingIn()
				// Still logging in; waiters must keep waiting.
				time.Sleep(10 * time.Millisecond)
				tracker.Update(1)
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewStatusTracker(nil)

			type result struct {
				loggedIn bool
				err      error
			}
			results := make(chan result, 2)

			// Two concurrent waiters both observe the settled status.
			for i := 0; i < 2; i++ {
				go func() {
					loggedIn, err := tracker.WaitForLogin(context.Background())
					results <- result{loggedIn, err}
				}()
			}

			tt.drive(tracker)

			for i := 0; i < 2; i++ {
				select {
				case res := <-results:
					require.NoError(t, res.err)
					require.Equal(t, tt.want, res.loggedIn)
				case <-time.After(5 * time.Second):
					t.Fatal("timed out waiting for WaitForLogin")
				}
			}
		})
	}
}

func TestStatusTracker_WaitForLoginCancellation(t *testing.T) {
	tracker := NewStatusTracker(nil)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := tracker.WaitForLogin(ctx)
		errs <- err
	}()

	cancel()

	select {
	case err := <-errs:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for cancellation")
	}
}
