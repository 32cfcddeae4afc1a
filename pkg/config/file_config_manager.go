// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/azure/azure-account/pkg/osutil"
)

// FileConfigManager provides the ability to load, parse and save
// configuration files.
type FileConfigManager interface {
	// Save stores the configuration at the specified file path. The
	// containing directory is created if it does not exist.
	Save(config Config, filePath string) error

	// Load reads configuration from the specified file path.
	Load(filePath string) (Config, error)
}

func NewFileConfigManager(configManager Manager) FileConfigManager {
	return &fileConfigManager{
		manager: configManager,
	}
}

type fileConfigManager struct {
	manager Manager
}

func (m *fileConfigManager) Load(filePath string) (Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed opening configuration file: %w", err)
	}
	defer file.Close()

	return m.manager.Load(file)
}

func (m *fileConfigManager) Save(c Config, filePath string) error {
	folderPath := filepath.Dir(filePath)
	if err := os.MkdirAll(folderPath, osutil.PermissionDirectoryOwnerOnly); err != nil {
		return fmt.Errorf("failed creating config directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, osutil.PermissionFile)
	if err != nil {
		return fmt.Errorf("failed creating config file: %w", err)
	}
	defer file.Close()

	return m.manager.Save(c, file)
}

// LoadOrCreate reads configuration from the specified path, returning an
// empty configuration when the file does not exist yet.
func LoadOrCreate(manager FileConfigManager, filePath string) (Config, error) {
	cfg, err := manager.Load(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return NewEmptyConfig(), nil
	} else if err != nil {
		return nil, err
	}

	return cfg, nil
}
