// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package account

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func TestReachabilityProbe_Settles(t *testing.T) {
	probe := startReachabilityProbe(context.Background(), onlineClient(), "https://login.contoso.example")
	defer probe.Cancel()

	reachable, err := probe.wait(context.Background())
	require.NoError(t, err)
	require.True(t, reachable)

	// A settled probe answers the timed wait immediately too.
	reachable, err = probe.waitWithTimeout(context.Background(), clock.New(), time.Minute)
	require.NoError(t, err)
	require.True(t, reachable)
}

func TestReachabilityProbe_TimeoutIsAdvisory(t *testing.T) {
	mockClock := clock.NewMock()
	probe := startReachabilityProbe(context.Background(), offlineClient(), "https://login.contoso.example")
	defer probe.Cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				mockClock.Add(time.Second)
				time.Sleep(time.Millisecond)
			}
		}
	}()

	reachable, err := probe.waitWithTimeout(context.Background(), mockClock, time.Second)
	require.NoError(t, err)
	require.False(t, reachable)
}

func TestReachabilityProbe_Cancel(t *testing.T) {
	probe := startReachabilityProbe(context.Background(), offlineClient(), "https://login.contoso.example")
	probe.Cancel()

	reachable, err := probe.wait(context.Background())
	require.NoError(t, err)
	require.False(t, reachable)
}

func TestReachabilityProbe_ContextCancellation(t *testing.T) {
	probe := startReachabilityProbe(context.Background(), offlineClient(), "https://login.contoso.example")
	defer probe.Cancel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := probe.wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
