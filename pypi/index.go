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

// Package pypi manages the machine-wide shared package store: the cached
// archives under pypi/downloads/, the unpacked trees under pypi/installed/
// and the index files that map package ids onto both.
package pypi

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/depsland/depsland/log"
	"github.com/depsland/depsland/paths"
	"github.com/depsland/depsland/verspec"
)

// Record kinds accepted by AddToIndex.
const (
	KindDownload = 0
	KindInstall  = 1
)

// IndexInconsistencyError reports an index whose records contradict each
// other or the filesystem, e.g. an install tree with no matching archive.
type IndexInconsistencyError struct {
	Reason string
}

func (e *IndexInconsistencyError) Error() string {
	return "package index inconsistency: " + e.Reason
}

// pathPair is one id_2_paths.json value: the archive and install tree
// locations, slash separated and relative to the pypi root.
type pathPair struct {
	Download string `json:"download_path"`
	Install  string `json:"install_path"`
}

// indexMu serializes index mutation across the process. Concurrent
// installs share one store, so last-writer-wins on the data files is only
// safe when writers do not interleave.
var indexMu sync.Mutex

// Index is the in-memory image of the two index data files plus the stash
// of half-registered packages (downloaded but not yet unpacked).
type Index struct {
	layout *paths.Layout

	idToPaths  map[string]*pathPair
	nameToVers map[string][]string

	// stash holds archive paths keyed by id until the matching install
	// record arrives and completes the pair.
	stash map[string]string
	// dirty marks names whose version list must be re-sorted on save.
	dirty map[string]bool
}

// Load reads the index data files. Missing files yield an empty index so
// that a fresh project root works without an init step.
func Load(layout *paths.Layout) (*Index, error) {
	idx := &Index{
		layout:     layout,
		idToPaths:  map[string]*pathPair{},
		nameToVers: map[string][]string{},
		stash:      map[string]string{},
		dirty:      map[string]bool{},
	}
	if err := readJSONFile(layout.IDToPathsFile(), &idx.idToPaths); err != nil {
		return nil, err
	}
	if err := readJSONFile(layout.NameToVersFile(), &idx.nameToVers); err != nil {
		return nil, err
	}
	return idx, nil
}

func readJSONFile(file string, v interface{}) error {
	data, err := ioutil.ReadFile(file)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err = json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "couldn't parse %s", file)
	}
	return nil
}

// HasID reports whether the package id has a complete index record.
func (idx *Index) HasID(id string) bool {
	_, ok := idx.idToPaths[id]
	return ok
}

// HasName reports whether any version of the package is indexed.
func (idx *Index) HasName(name string) bool {
	return len(idx.nameToVers[verspec.NormalizeName(name)]) > 0
}

// Versions returns the indexed versions of a package, newest first.
func (idx *Index) Versions(name string) []string {
	return idx.nameToVers[verspec.NormalizeName(name)]
}

// Get resolves a package id to its absolute archive and install tree
// locations.
func (idx *Index) Get(id string) (downloadPath, installPath string, err error) {
	pair, ok := idx.idToPaths[id]
	if !ok {
		return "", "", errors.Errorf("package %s is not indexed", id)
	}
	root := idx.layout.Pypi()
	return filepath.Join(root, filepath.FromSlash(pair.Download)),
		filepath.Join(root, filepath.FromSlash(pair.Install)), nil
}

// AddToIndex feeds one record into the index. A download record (kind 0)
// names the cached archive and parks in the stash; the matching install
// record (kind 1) names the unpacked tree, pops the stash and completes
// the pair. An install record with no stashed download means the caller
// broke the protocol.
func (idx *Index) AddToIndex(path string, kind int) error {
	indexMu.Lock()
	defer indexMu.Unlock()

	switch kind {
	case KindDownload:
		name, version, err := verspec.SplitPackageFilename(filepath.Base(path))
		if err != nil {
			return err
		}
		idx.stash[verspec.PackageID(name, version)] = path
		return nil

	case KindInstall:
		name, version, err := splitInstallPath(path)
		if err != nil {
			return err
		}
		id := verspec.PackageID(name, version)
		downloadPath, ok := idx.stash[id]
		if !ok {
			return &IndexInconsistencyError{
				Reason: "install record for " + id + " arrived without a download record",
			}
		}
		delete(idx.stash, id)
		return idx.updateIndex(id, downloadPath, path, false)
	}
	return errors.Errorf("unknown index record kind %d", kind)
}

// splitInstallPath recovers (name, version) from an install tree path of
// the form .../installed/<name>/<version>.
func splitInstallPath(path string) (name, version string, err error) {
	clean := filepath.Clean(path)
	version = filepath.Base(clean)
	parent := filepath.Dir(clean)
	name = filepath.Base(parent)
	if filepath.Base(filepath.Dir(parent)) != "installed" || name == "" || version == "" {
		return "", "", errors.Errorf("install path %q is not of the form installed/<name>/<version>", path)
	}
	return name, version, nil
}

// UpdateIndex registers or overwrites one complete record. Without force
// an existing record is left alone.
func (idx *Index) UpdateIndex(id, downloadPath, installPath string, force bool) error {
	indexMu.Lock()
	defer indexMu.Unlock()
	return idx.updateIndex(id, downloadPath, installPath, force)
}

func (idx *Index) updateIndex(id, downloadPath, installPath string, force bool) error {
	if _, exists := idx.idToPaths[id]; exists && !force {
		return nil
	}
	name, version, err := verspec.SplitID(id)
	if err != nil {
		return err
	}

	relDownload, err := idx.relUnder(downloadPath, "downloads")
	if err != nil {
		return err
	}
	relInstall, err := idx.relUnder(installPath, "installed")
	if err != nil {
		return err
	}

	idx.idToPaths[id] = &pathPair{Download: relDownload, Install: relInstall}
	if !containsVersion(idx.nameToVers[name], version) {
		idx.nameToVers[name] = append(idx.nameToVers[name], version)
	}
	idx.dirty[name] = true
	log.Debug(log.Pypi, "indexed %s", id)
	return nil
}

// relUnder rewrites an absolute path as a slash path relative to the pypi
// root and checks it lives under the expected subtree. The prefix check is
// case insensitive because the store may sit on a case-preserving
// filesystem.
func (idx *Index) relUnder(path, subtree string) (string, error) {
	rel, err := filepath.Rel(idx.layout.Pypi(), filepath.Clean(path))
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if !strings.HasPrefix(strings.ToLower(rel), subtree+"/") {
		return "", &IndexInconsistencyError{
			Reason: "path " + path + " is outside the pypi " + subtree + " tree",
		}
	}
	return rel, nil
}

func containsVersion(versions []string, version string) bool {
	for _, v := range versions {
		if v == version {
			return true
		}
	}
	return false
}

// Save re-sorts the touched version lists newest first and writes both
// data files atomically. A non-empty stash at save time means downloads
// were registered whose installs never completed; they are dropped with a
// warning rather than persisted half-done.
func (idx *Index) Save() error {
	indexMu.Lock()
	defer indexMu.Unlock()

	for id := range idx.stash {
		log.Warning(log.Pypi, "dropping incomplete index record for %s", id)
	}
	idx.stash = map[string]string{}

	for name := range idx.dirty {
		verspec.SortVersions(idx.nameToVers[name], true)
	}
	idx.dirty = map[string]bool{}

	if err := os.MkdirAll(idx.layout.PypiIndex(), 0755); err != nil {
		return err
	}
	if err := writeJSONFile(idx.layout.IDToPathsFile(), idx.idToPaths); err != nil {
		return err
	}
	return writeJSONFile(idx.layout.NameToVersFile(), idx.nameToVers)
}

// writeJSONFile writes via a temp file in the same directory and renames
// so that readers never observe a truncated data file.
func writeJSONFile(file string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := ioutil.TempFile(filepath.Dir(file), "."+filepath.Base(file)+".")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, file)
}

// Rebuild discards the in-memory image and re-derives it by scanning the
// downloads and installed trees. Archives without a matching install tree
// are reported, not indexed.
func (idx *Index) Rebuild() error {
	indexMu.Lock()
	defer indexMu.Unlock()

	idx.idToPaths = map[string]*pathPair{}
	idx.nameToVers = map[string][]string{}
	idx.stash = map[string]string{}
	idx.dirty = map[string]bool{}

	archives := map[string]string{}
	nameDirs, err := ioutil.ReadDir(idx.layout.PypiDownloads())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	for _, nameDir := range nameDirs {
		if !nameDir.IsDir() {
			continue
		}
		dir := filepath.Join(idx.layout.PypiDownloads(), nameDir.Name())
		files, err := ioutil.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			name, version, err := verspec.SplitPackageFilename(f.Name())
			if err != nil {
				log.Warning(log.Pypi, "skipping unrecognized archive %s", f.Name())
				continue
			}
			archives[verspec.PackageID(name, version)] = filepath.Join(dir, f.Name())
		}
	}

	installedNames, err := ioutil.ReadDir(idx.layout.PypiInstalled())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	for _, nameDir := range installedNames {
		if !nameDir.IsDir() {
			continue
		}
		name := nameDir.Name()
		versionDirs, err := ioutil.ReadDir(filepath.Join(idx.layout.PypiInstalled(), name))
		if err != nil {
			return err
		}
		for _, versionDir := range versionDirs {
			if !versionDir.IsDir() {
				continue
			}
			id := verspec.PackageID(name, versionDir.Name())
			archive, ok := archives[id]
			if !ok {
				log.Warning(log.Pypi, "install tree %s has no cached archive", id)
				continue
			}
			install := idx.layout.PypiInstallDir(name, versionDir.Name())
			if err = idx.updateIndex(id, archive, install, true); err != nil {
				return err
			}
		}
	}

	log.Info(log.Pypi, "rebuilt index with %d packages", len(idx.idToPaths))
	return nil
}

// IDs returns every complete package id, sorted, for diagnostics.
func (idx *Index) IDs() []string {
	ids := make([]string, 0, len(idx.idToPaths))
	for id := range idx.idToPaths {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
