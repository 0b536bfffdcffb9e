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

// Package registry reads and writes the per-app history files: newest-first
// plain text lists of published and installed versions. The head line of
// each file is the authoritative "current" version.
package registry

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/depsland/depsland/helpers"
	"github.com/depsland/depsland/paths"
)

// ReadHistory returns the versions recorded in a history file, newest
// first. A missing file yields an empty history.
func ReadHistory(file string) ([]string, error) {
	lines, err := helpers.ReadFileAndSplit(file)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var versions []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			versions = append(versions, line)
		}
	}
	return versions, nil
}

// Head returns the newest entry of a history file, or "" when the history
// is empty.
func Head(file string) (string, error) {
	versions, err := ReadHistory(file)
	if err != nil || len(versions) == 0 {
		return "", err
	}
	return versions[0], nil
}

// Prepend records a version as the newest history entry. Re-recording the
// current head is a no-op so repeated operations do not pad the file.
func Prepend(file, version string) error {
	versions, err := ReadHistory(file)
	if err != nil {
		return err
	}
	if len(versions) > 0 && versions[0] == version {
		return nil
	}
	if err = os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return err
	}
	lines := append([]string{version}, versions...)
	return ioutil.WriteFile(file, []byte(strings.Join(lines, "\n")+"\n"), 0644)
}

// GetLastInstalledVersion returns the newest installed version of an app,
// or "" when it has never been installed.
func GetLastInstalledVersion(layout *paths.Layout, appid string) (string, error) {
	return Head(layout.InstHistory(appid))
}

// GetLastPublishedVersion returns the newest published version of an app,
// or "" when it has never been published.
func GetLastPublishedVersion(layout *paths.Layout, appid string) (string, error) {
	return Head(layout.DistHistory(appid))
}

// GetDistributionHistory returns every published version of an app, newest
// first.
func GetDistributionHistory(layout *paths.Layout, appid string) ([]string, error) {
	return ReadHistory(layout.DistHistory(appid))
}
