// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package config

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChangeEvent_AffectsKey(t *testing.T) {
	event := ChangeEvent{Changed: []string{"azure.resourceFilter", "azure.customCloud.audience"}}

	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "ExactMatch", path: "azure.resourceFilter", want: true},
		{name: "NestedChange", path: "azure.customCloud", want: true},
		{name: "PrefixIsNotAMatch", path: "azure.resource", want: false},
		{name: "Unrelated", path: "azure.cloud", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, event.AffectsKey(tt.path))
		})
	}
}

func TestDiffLeaves(t *testing.T) {
	old := map[string]string{
		"azure.cloud":          `"AzureCloud"`,
		"azure.tenant":         `"t1"`,
		"azure.resourceFilter": `["all"]`,
	}
	current := map[string]string{
		"azure.cloud":          `"AzureChinaCloud"`, // changed
		"azure.resourceFilter": `["all"]`,           // unchanged
		"azure.newKey":         `1`,                 // added
		// azure.tenant removed
	}

	changed := diffLeaves(old, current)
	sort.Strings(changed)
	require.Equal(t, []string{"azure.cloud", "azure.newKey", "azure.tenant"}, changed)

	require.Empty(t, diffLeaves(old, old))
}

func TestWatcher_ReloadDispatchesDiff(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "config.json")
	manager := NewFileConfigManager(NewManager())

	cfg := NewEmptyConfig()
	require.NoError(t, cfg.Set("azure.cloud", "AzureCloud"))
	require.NoError(t, manager.Save(cfg, filePath))

	watcher, err := NewWatcher(manager, filePath)
	require.NoError(t, err)
	defer watcher.Close()

	var events []ChangeEvent
	watcher.OnDidChange(func(ctx context.Context, event ChangeEvent) {
		events = append(events, event)
	})

	// No change yet; reload raises nothing.
	watcher.Reload(context.Background())
	require.Empty(t, events)

	require.NoError(t, cfg.Set("azure.cloud", "AzureUSGovernment"))
	require.NoError(t, cfg.Set("azure.resourceFilter", []string{"t/a"}))
	require.NoError(t, manager.Save(cfg, filePath))

	watcher.Reload(context.Background())
	require.Len(t, events, 1)
	require.True(t, events[0].AffectsKey("azure.cloud"))
	require.True(t, events[0].AffectsKey("azure.resourceFilter"))
	require.False(t, events[0].AffectsKey("azure.tenant"))

	// The new state is the baseline for the next diff.
	watcher.Reload(context.Background())
	require.Len(t, events, 1)
}
