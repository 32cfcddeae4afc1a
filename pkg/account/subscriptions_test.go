// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package account

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSortSubscriptions(t *testing.T) {
	subscriptions := []Subscription{
		{SubscriptionInfo: SubscriptionInfo{ID: "3", DisplayName: "beta"}},
		{SubscriptionInfo: SubscriptionInfo{ID: "1", DisplayName: "Alpha"}},
		{SubscriptionInfo: SubscriptionInfo{ID: "4", DisplayName: "alpha"}},
		{SubscriptionInfo: SubscriptionInfo{ID: "2", DisplayName: "Gamma"}},
	}

	sortSubscriptions(subscriptions)

	names := make([]string, 0, len(subscriptions))
	for _, subscription := range subscriptions {
		names = append(names, subscription.DisplayName)
	}

	// Case-insensitive by name; equal names keep their relative order.
	require.Equal(t, []string{"Alpha", "alpha", "beta", "Gamma"}, names)
}

func TestSubscriptionsCache_RoundTrip(t *testing.T) {
	cache := NewSubscriptionsCache(filepath.Join(t.TempDir(), cSubscriptionsCacheFile))

	_, err := cache.Load()
	require.ErrorIs(t, err, os.ErrNotExist)

	entries := []CacheEntry{
		{
			Session:      SessionIdentity{EnvironmentName: "AzureCloud", UserID: "user@contoso.com", TenantID: "t1"},
			Subscription: SubscriptionInfo{ID: "s1", DisplayName: "Sub One", TenantID: "t1"},
		},
		{
			Session:      SessionIdentity{EnvironmentName: "AzureCloud", UserID: "user@contoso.com", TenantID: "t2"},
			Subscription: SubscriptionInfo{ID: "s2", DisplayName: "Sub Two", TenantID: "t2"},
		},
	}
	require.NoError(t, cache.Save(entries))

	loaded, err := cache.Load()
	require.NoError(t, err)
	require.Equal(t, entries, loaded)

	require.NoError(t, cache.Clear())
	_, err = cache.Load()
	require.ErrorIs(t, err, os.ErrNotExist)

	// Clearing an absent cache is not an error.
	require.NoError(t, cache.Clear())
}

func TestToCacheEntries(t *testing.T) {
	session := &Session{
		Environment: testEnvironment(),
		UserID:      "user@contoso.com",
		TenantID:    "t1",
	}

	entries := toCacheEntries([]Subscription{
		{Session: session, SubscriptionInfo: SubscriptionInfo{ID: "s1", DisplayName: "Sub One", TenantID: "t1"}},
	})

	require.Len(t, entries, 1)
	require.Equal(t, SessionIdentity{
		EnvironmentName: "AzureCloud",
		UserID:          "user@contoso.com",
		TenantID:        "t1",
	}, entries[0].Session)
	require.Equal(t, "s1", entries[0].Subscription.ID)
}
