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

// Package paths pins down the on-disk layout of a depsland project root.
// Every other package addresses the filesystem through a Layout so that
// tests can point the whole pipeline at a temporary directory.
package paths

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
)

// Layout describes the project root directory structure:
//
//	$D/apps/<appid>/<version>/          materialized app trees
//	$D/apps/<appid>/.inst_history       newest-first install history
//	$D/apps/<appid>/.dist_history       newest-first publish history
//	$D/apps/.venv/<appid>/<version>/    per-version library views
//	$D/apps/.bin/                       CLI entry copies
//	$D/pypi/downloads/<name>/           cached package archives
//	$D/pypi/installed/<name>/<version>/ unpacked install trees
//	$D/pypi/index/                      the shared package index files
//	$D/oss/apps/, $D/oss/test/          local and fake blob stores
//	$D/temp/                            per-operation staging
type Layout struct {
	Root string
}

// NewLayout returns a Layout rooted at root. The directories are not
// created until EnsureDirs is called.
func NewLayout(root string) *Layout {
	return &Layout{Root: root}
}

// EnsureDirs creates the project skeleton. It is idempotent.
func (l *Layout) EnsureDirs() error {
	dirs := []string{
		l.Apps(),
		l.Bin(),
		l.Venv(),
		l.Dist(),
		l.OssApps(),
		l.OssTest(),
		l.PypiDownloads(),
		l.PypiInstalled(),
		l.PypiIndex(),
		l.Temp(),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return err
		}
	}
	return nil
}

func (l *Layout) Apps() string { return filepath.Join(l.Root, "apps") }
func (l *Layout) Bin() string  { return filepath.Join(l.Root, "apps", ".bin") }
func (l *Layout) Venv() string { return filepath.Join(l.Root, "apps", ".venv") }
func (l *Layout) Dist() string { return filepath.Join(l.Root, "dist") }
func (l *Layout) Temp() string { return filepath.Join(l.Root, "temp") }

// App is the per-app registry directory.
func (l *Layout) App(appid string) string {
	return filepath.Join(l.Apps(), appid)
}

// AppVersion is the materialized tree of one installed release.
func (l *Layout) AppVersion(appid, version string) string {
	return filepath.Join(l.Apps(), appid, version)
}

// VenvApp is the library view directory of one installed release.
func (l *Layout) VenvApp(appid, version string) string {
	return filepath.Join(l.Venv(), appid, version)
}

// InstHistory is the newest-first installation history file.
func (l *Layout) InstHistory(appid string) string {
	return filepath.Join(l.Apps(), appid, ".inst_history")
}

// DistHistory is the newest-first distribution history file.
func (l *Layout) DistHistory(appid string) string {
	return filepath.Join(l.Apps(), appid, ".dist_history")
}

func (l *Layout) Pypi() string           { return filepath.Join(l.Root, "pypi") }
func (l *Layout) PypiDownloads() string  { return filepath.Join(l.Root, "pypi", "downloads") }
func (l *Layout) PypiInstalled() string  { return filepath.Join(l.Root, "pypi", "installed") }
func (l *Layout) PypiIndex() string      { return filepath.Join(l.Root, "pypi", "index") }
func (l *Layout) IDToPathsFile() string  { return filepath.Join(l.PypiIndex(), "id_2_paths.json") }
func (l *Layout) NameToVersFile() string { return filepath.Join(l.PypiIndex(), "name_2_vers.json") }

// PypiDownloadDir is the archive cache directory for one package name.
func (l *Layout) PypiDownloadDir(name string) string {
	return filepath.Join(l.PypiDownloads(), name)
}

// PypiInstallDir is the unpacked install tree for one package release.
func (l *Layout) PypiInstallDir(name, version string) string {
	return filepath.Join(l.PypiInstalled(), name, version)
}

func (l *Layout) Oss() string     { return filepath.Join(l.Root, "oss") }
func (l *Layout) OssApps() string { return filepath.Join(l.Root, "oss", "apps") }
func (l *Layout) OssTest() string { return filepath.Join(l.Root, "oss", "test") }

// MakeTempDir creates a fresh per-operation staging directory under temp/.
func (l *Layout) MakeTempDir() (string, error) {
	if err := os.MkdirAll(l.Temp(), 0755); err != nil {
		return "", err
	}
	return ioutil.TempDir(l.Temp(), "op-")
}

// BinEntry is the CLI entry copy for an app, with the platform suffix
// chosen by the launcher emitter.
func (l *Layout) BinEntry(appid, suffix string) string {
	return filepath.Join(l.Bin(), fmt.Sprintf("%s%s", appid, suffix))
}
