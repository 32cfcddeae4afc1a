// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ChangeEvent describes an external modification of the persisted settings
// file. Changed contains the dotted paths of every leaf value whose
// serialized form differs from the previously observed configuration.
type ChangeEvent struct {
	Changed []string
}

// AffectsKey reports whether the change touched the given path or anything
// nested under it.
func (e ChangeEvent) AffectsKey(path string) bool {
	for _, changed := range e.Changed {
		if changed == path || strings.HasPrefix(changed, path+".") {
			return true
		}
	}

	return false
}

type ChangeHandler func(ctx context.Context, event ChangeEvent)

// Watcher observes the persisted settings file and raises change events when
// it is edited outside of this process. The containing directory is watched
// rather than the file itself so that atomic save-by-rename is observed.
type Watcher struct {
	filePath string
	manager  FileConfigManager
	notify   *fsnotify.Watcher

	mu       sync.Mutex
	handlers []ChangeHandler
	lastSeen map[string]string

	closeOnce sync.Once
	done      chan struct{}
}

func NewWatcher(manager FileConfigManager, filePath string) (*Watcher, error) {
	notify, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	if err := notify.Add(filepath.Dir(filePath)); err != nil {
		notify.Close()
		return nil, fmt.Errorf("watching config directory: %w", err)
	}

	w := &Watcher{
		filePath: filePath,
		manager:  manager,
		notify:   notify,
		lastSeen: map[string]string{},
		done:     make(chan struct{}),
	}
	w.lastSeen = w.snapshot()

	return w, nil
}

// OnDidChange registers a handler invoked whenever the settings file changes
// on disk. Handlers run on the watcher goroutine, sequentially.
func (w *Watcher) OnDidChange(handler ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.handlers = append(w.handlers, handler)
}

// Start begins dispatching change events until the context is canceled or
// the watcher is closed.
func (w *Watcher) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		if err := w.notify.Close(); err != nil {
			log.Printf("closing config watcher: %v", err)
		}
	})
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case err, ok := <-w.notify.Errors:
			if !ok {
				return
			}
			log.Printf("config watcher error: %v", err)
		case event, ok := <-w.notify.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != filepath.Clean(w.filePath) {
				continue
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
				continue
			}

			w.dispatch(ctx)
		}
	}
}

// Reload re-reads the settings file and raises a change event for any paths
// that differ from the last observed state. Used by callers that mutate the
// file themselves and want observers notified without waiting on fsnotify.
func (w *Watcher) Reload(ctx context.Context) {
	w.dispatch(ctx)
}

func (w *Watcher) dispatch(ctx context.Context) {
	current := w.snapshot()

	w.mu.Lock()
	changed := diffLeaves(w.lastSeen, current)
	w.lastSeen = current
	handlers := make([]ChangeHandler, len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.Unlock()

	if len(changed) == 0 {
		return
	}

	event := ChangeEvent{Changed: changed}
	for _, handler := range handlers {
		handler(ctx, event)
	}
}

// snapshot flattens the settings file into serialized leaf values. A missing
// file yields an empty snapshot so that deleting the file reads as "every
// key removed".
func (w *Watcher) snapshot() map[string]string {
	cfg, err := w.manager.Load(w.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}
	} else if err != nil {
		log.Printf("reloading config for change detection: %v", err)
		return map[string]string{}
	}

	leaves := map[string]string{}
	flattenLeaves("", cfg.Raw(), leaves)
	return leaves
}

func flattenLeaves(prefix string, node map[string]any, into map[string]string) {
	for key, value := range node {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		if child, isNode := value.(map[string]any); isNode {
			flattenLeaves(path, child, into)
			continue
		}

		serialized, err := json.Marshal(value)
		if err != nil {
			log.Printf("serializing config value at '%s': %v", path, err)
			continue
		}
		into[path] = string(serialized)
	}
}

func diffLeaves(old, current map[string]string) []string {
	var changed []string
	for path, value := range current {
		if prev, has := old[path]; !has || prev != value {
			changed = append(changed, path)
		}
	}
	for path := range old {
		if _, has := current[path]; !has {
			changed = append(changed, path)
		}
	}

	return changed
}
