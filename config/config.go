// Copyright © 2024 Depsland Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// DepslandConfig represents the parameters found in depsland.toml.
type DepslandConfig struct {
	Project projectConf
	Oss     ossConf
	Install installConf

	/* hidden properties */
	filename string
}

type projectConf struct {
	Root string `toml:"ROOT"`
}

type ossConf struct {
	// Server selects the blob store implementation: "remote", "local"
	// or "fake".
	Server string `toml:"SERVER"`
	// Symlinks makes the local and fake stores link instead of copy.
	Symlinks bool `toml:"SYMLINKS"`
	// Credentials points to the INI file with remote endpoint settings.
	Credentials string `toml:"CREDENTIALS"`
}

type installConf struct {
	// MaxWorkers caps the package download/unpack pool of the installer.
	MaxWorkers int `toml:"MAX_WORKERS"`
}

// LoadDefaults sets sane values for the config properties
func (config *DepslandConfig) LoadDefaults() error {
	pwd, err := os.Getwd()
	if err != nil {
		return err
	}

	config.LoadDefaultsForPath(pwd)
	return nil
}

// LoadDefaultsForPath sets sane values for config properties using `path` as base directory
func (config *DepslandConfig) LoadDefaultsForPath(path string) {
	config.Project.Root = path
	config.Oss.Server = "local"
	config.Oss.Symlinks = false
	config.Oss.Credentials = filepath.Join(path, "oss-credentials.ini")
	config.Install.MaxWorkers = 8

	config.filename = filepath.Join(path, "depsland.toml")
}

// CreateDefaultConfig writes a default depsland.toml using the active
// directory as base path for the variables values.
func (config *DepslandConfig) CreateDefaultConfig() error {
	if err := config.LoadDefaults(); err != nil {
		return err
	}
	if _, err := os.Stat(config.filename); err == nil {
		// depsland.toml already exists. Skip creation.
		return nil
	}
	return config.SaveConfig()
}

// SaveConfig saves the properties in DepslandConfig to a TOML config file
func (config *DepslandConfig) SaveConfig() error {
	w, err := os.OpenFile(config.filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return err
	}
	defer func() {
		_ = w.Close()
	}()

	enc := toml.NewEncoder(w)
	return enc.Encode(config)
}

// LoadConfig loads a configuration file from a provided path or from the
// local directory if none is provided
func (config *DepslandConfig) LoadConfig(filename string) error {
	if err := config.initConfigPath(filename); err != nil {
		return err
	}
	if _, err := os.Stat(config.filename); os.IsNotExist(err) {
		// No config file: defaults apply.
		return config.validate()
	}
	if _, err := toml.DecodeFile(config.filename, &config); err != nil {
		return err
	}
	return config.validate()
}

func (config *DepslandConfig) initConfigPath(filename string) error {
	if filename != "" {
		config.filename = filename
		if config.Project.Root == "" {
			config.Project.Root = filepath.Dir(filename)
		}
		return nil
	}
	pwd, err := os.Getwd()
	if err != nil {
		return err
	}
	config.LoadDefaultsForPath(pwd)
	return nil
}

func (config *DepslandConfig) validate() error {
	switch config.Oss.Server {
	case "", "remote", "local", "fake":
	default:
		return errors.Errorf("invalid Oss.SERVER value %q (want remote, local or fake)", config.Oss.Server)
	}
	if config.Oss.Server == "" {
		config.Oss.Server = "local"
	}
	if config.Install.MaxWorkers < 1 {
		config.Install.MaxWorkers = 8
	}
	if config.Project.Root == "" {
		return errors.Errorf("missing Project.ROOT value")
	}
	return nil
}
