// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

// Package config provides storage for persisted, user-scoped settings.
//
// Configuration data is stored in the user's home directory under
// ~/.azure-account/config.json and is not specific to any given project.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Config stores settings as a tree of maps addressed by dotted paths,
// e.g. "azure.resourceFilter".
type Config interface {
	Raw() map[string]any
	Get(path string) (any, bool)
	GetString(path string) (string, bool)
	GetStringSlice(path string) ([]string, bool)
	GetSection(path string, section any) (bool, error)
	Set(path string, value any) error
	Unset(path string) error
	IsEmpty() bool
}

// NewEmptyConfig creates an empty configuration object.
func NewEmptyConfig() Config {
	return NewConfig(nil)
}

// NewConfig creates a configuration object populated with an initial set of
// keys and values.
func NewConfig(data map[string]any) Config {
	if data == nil {
		data = map[string]any{}
	}

	return &config{
		data: data,
	}
}

type config struct {
	data map[string]any
}

func (c *config) IsEmpty() bool {
	return len(c.data) == 0
}

// Raw returns the values stored in the configuration as a Go map.
func (c *config) Raw() map[string]any {
	return c.data
}

// Set stores a value at the specified path, creating intermediate nodes as
// needed.
func (c *config) Set(path string, value any) error {
	depth := 1
	currentNode := c.data
	parts := strings.Split(path, ".")
	for _, part := range parts {
		if depth == len(parts) {
			currentNode[part] = value
			return nil
		}

		var node map[string]any
		existing, ok := currentNode[part]
		if !ok || existing == nil {
			node = map[string]any{}
		} else {
			node, ok = existing.(map[string]any)
			if !ok {
				return fmt.Errorf("failed converting node at path '%s' to map", part)
			}
		}

		currentNode[part] = node
		currentNode = node
		depth++
	}

	return nil
}

// Unset removes any value stored at the specified path. Removing a path that
// does not exist is a no-op.
func (c *config) Unset(path string) error {
	depth := 1
	currentNode := c.data
	parts := strings.Split(path, ".")
	for _, part := range parts {
		if depth == len(parts) {
			delete(currentNode, part)
			return nil
		}

		existing, ok := currentNode[part]
		if !ok || existing == nil {
			return nil
		}

		node, ok := existing.(map[string]any)
		if !ok {
			return fmt.Errorf("failed converting node at path '%s' to map", part)
		}

		currentNode = node
		depth++
	}

	return nil
}

// Get returns the value stored at the specified path and whether it exists.
func (c *config) Get(path string) (any, bool) {
	depth := 1
	currentNode := c.data
	parts := strings.Split(path, ".")
	for _, part := range parts {
		if depth == len(parts) {
			value, ok := currentNode[part]
			return value, ok
		}

		value, ok := currentNode[part]
		if !ok {
			return value, ok
		}

		node, ok := value.(map[string]any)
		if !ok {
			return nil, false
		}

		currentNode = node
		depth++
	}

	return nil, false
}

// GetString returns the value stored at the specified path as a string.
func (c *config) GetString(path string) (string, bool) {
	value, ok := c.Get(path)
	if !ok {
		return "", false
	}

	str, ok := value.(string)
	return str, ok
}

// GetStringSlice returns the value stored at the specified path as a string
// slice. JSON round-trips store slices as []any, so both representations are
// accepted.
func (c *config) GetStringSlice(path string) ([]string, bool) {
	value, ok := c.Get(path)
	if !ok {
		return nil, false
	}

	switch v := value.(type) {
	case []string:
		return v, true
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			result = append(result, str)
		}
		return result, true
	}

	return nil, false
}

// GetSection unmarshals the node at the specified path into section.
func (c *config) GetSection(path string, section any) (bool, error) {
	sectionConfig, ok := c.Get(path)
	if !ok {
		return false, nil
	}

	jsonBytes, err := json.Marshal(sectionConfig)
	if err != nil {
		return true, fmt.Errorf("marshalling section config: %w", err)
	}

	if err := json.Unmarshal(jsonBytes, section); err != nil {
		return true, fmt.Errorf("unmarshalling section config: %w", err)
	}

	return true, nil
}
