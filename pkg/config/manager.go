// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/azure/azure-account/pkg/osutil"
)

const cConfigDir = ".azure-account"

// cConfigFileName is the name of the persisted settings file inside the user
// config directory.
const cConfigFileName = "config.json"

// Manager provides the ability to load, parse and save configuration data.
type Manager interface {
	Save(config Config, writer io.Writer) error
	Load(io.Reader) (Config, error)
}

type manager struct {
}

func NewManager() Manager {
	return &manager{}
}

func (c *manager) Save(config Config, writer io.Writer) error {
	configJson, err := json.MarshalIndent(config.Raw(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed marshalling config JSON: %w", err)
	}

	_, err = writer.Write(configJson)
	if err != nil {
		return fmt.Errorf("failed writing configuration data: %w", err)
	}

	return nil
}

func (c *manager) Load(reader io.Reader) (Config, error) {
	jsonBytes, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed reading configuration file")
	}

	return Parse(jsonBytes)
}

// Parse parses configuration JSON and returns a Config instance.
func Parse(configJson []byte) (Config, error) {
	var data map[string]any
	err := json.Unmarshal(configJson, &data)
	if err != nil {
		return nil, fmt.Errorf("failed unmarshalling configuration JSON: %w", err)
	}

	return NewConfig(data), nil
}

// GetUserConfigDir returns the config directory for storing user wide
// configuration data.
//
// The config directory is guaranteed to exist, otherwise an error is
// returned.
func GetUserConfigDir() (string, error) {
	configDirPath := os.Getenv("AZURE_ACCOUNT_CONFIG_DIR")
	if configDirPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine current home directory: %w", err)
		}

		configDirPath = filepath.Join(homeDir, cConfigDir)
	}

	err := os.MkdirAll(configDirPath, osutil.PermissionDirectoryOwnerOnly)
	return configDirPath, err
}

// GetUserConfigFilePath returns the path of the persisted settings file. The
// containing directory is created if needed.
func GetUserConfigFilePath() (string, error) {
	configDir, err := GetUserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed getting user config dir: %w", err)
	}

	return filepath.Join(configDir, cConfigFileName), nil
}
