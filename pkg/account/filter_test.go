// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package account

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeFilter(t *testing.T) {
	tests := []struct {
		name    string
		filter  []string
		present bool
		want    []string
	}{
		{name: "MissingMeansAll", filter: nil, present: false, want: []string{AllFilter}},
		{name: "EmptyStaysEmpty", filter: []string{}, present: true, want: []string{}},
		{name: "ExplicitKeys", filter: []string{"t/a", "t/b"}, present: true, want: []string{"t/a", "t/b"}},
		{name: "AllCollapses", filter: []string{"t/a", "all", "t/b"}, present: true, want: []string{AllFilter}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, normalizeFilter(tt.filter, tt.present))
		})
	}
}

func TestIsSelected(t *testing.T) {
	require.True(t, IsSelected([]string{AllFilter}, "t/a"))
	require.True(t, IsSelected([]string{"t/a", "t/b"}, "t/a"))
	require.False(t, IsSelected([]string{"t/a"}, "t/b"))
	require.False(t, IsSelected([]string{}, "t/a"))
}

func TestAddFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter []string
		key    string
		want   []string
	}{
		{name: "AddToEmpty", filter: []string{}, key: "t/a", want: []string{"t/a"}},
		{name: "AddNew", filter: []string{"t/a"}, key: "t/b", want: []string{"t/a", "t/b"}},
		{name: "AddDuplicateNoOp", filter: []string{"t/a"}, key: "t/a", want: []string{"t/a"}},
		{name: "AddToSentinelNoOp", filter: []string{AllFilter}, key: "t/a", want: []string{AllFilter}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, AddFilter(tt.filter, tt.key))
		})
	}
}

func TestRemoveFilter(t *testing.T) {
	allKeys := []string{"t/a", "t/b", "t/c"}

	tests := []struct {
		name   string
		filter []string
		key    string
		want   []string
	}{
		{name: "RemoveExisting", filter: []string{"t/a", "t/b"}, key: "t/a", want: []string{"t/b"}},
		{name: "RemoveMissingNoOp", filter: []string{"t/a"}, key: "t/b", want: []string{"t/a"}},
		{name: "RemoveFromSentinelExpands", filter: []string{AllFilter}, key: "t/b", want: []string{"t/a", "t/c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, RemoveFilter(tt.filter, tt.key, allKeys))
		})
	}
}

func TestApplyFilter(t *testing.T) {
	subscriptions := []Subscription{
		{SubscriptionInfo: SubscriptionInfo{ID: "a", TenantID: "t"}},
		{SubscriptionInfo: SubscriptionInfo{ID: "b", TenantID: "t"}},
		{SubscriptionInfo: SubscriptionInfo{ID: "c", TenantID: "u"}},
	}

	selected := applyFilter([]string{AllFilter}, subscriptions)
	require.Len(t, selected, 3)

	selected = applyFilter([]string{"t/b", "u/c"}, subscriptions)
	require.Len(t, selected, 2)
	require.Equal(t, "b", selected[0].ID)
	require.Equal(t, "c", selected[1].ID)

	selected = applyFilter([]string{}, subscriptions)
	require.Empty(t, selected)
}

func TestNextFilter(t *testing.T) {
	keys := []string{"t/a", "t/b", "t/c"}

	tests := []struct {
		name      string
		filter    []string
		isChecked map[int]bool
		want      []string
	}{
		{
			name:      "SentinelExpandsToCheckedKeys",
			filter:    []string{AllFilter},
			isChecked: map[int]bool{0: true, 2: true},
			want:      []string{"t/a", "t/c"},
		},
		{
			name:      "UncheckedKeysDropped",
			filter:    []string{"t/a", "t/b"},
			isChecked: map[int]bool{0: true},
			want:      []string{"t/a"},
		},
		{
			name:      "NewlyCheckedKeysAppended",
			filter:    []string{"t/a"},
			isChecked: map[int]bool{0: true, 1: true},
			want:      []string{"t/a", "t/b"},
		},
		{
			name:      "UnknownEntriesSurvive",
			filter:    []string{"other/x", "t/a"},
			isChecked: map[int]bool{1: true},
			want:      []string{"other/x", "t/b"},
		},
		{
			name:      "EverythingUnchecked",
			filter:    []string{"t/a", "t/b"},
			isChecked: map[int]bool{},
			want:      []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, nextFilter(tt.filter, keys, tt.isChecked))
		})
	}
}

func TestSerializeFilter(t *testing.T) {
	require.Equal(t, `["all"]`, serializeFilter([]string{AllFilter}))
	require.Equal(t, `["t/a","t/b"]`, serializeFilter([]string{"t/a", "t/b"}))
	require.Equal(t, `[]`, serializeFilter([]string{}))
}
