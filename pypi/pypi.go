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

package pypi

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/depsland/depsland/helpers"
	"github.com/depsland/depsland/log"
	"github.com/depsland/depsland/manifest"
	"github.com/depsland/depsland/oss"
	"github.com/depsland/depsland/paths"
	"github.com/depsland/depsland/verspec"
)

// DownloadOne fetches the archive for one pinned package into the shared
// download cache and returns its path. A CustomURL on the package overrides
// the blob store. The cache is consulted first.
func DownloadOne(layout *paths.Layout, client oss.Client, pkg *manifest.PackageInfo) (string, error) {
	dir := layout.PypiDownloadDir(pkg.Name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	if cached, ok := findCachedArchive(dir, pkg.ID); ok {
		log.Debug(log.Pypi, "archive cache hit for %s", pkg.ID)
		return cached, nil
	}

	target := filepath.Join(dir, pkg.ID+".zip")
	if pkg.CustomURL != "" {
		target = filepath.Join(dir, filepath.Base(pkg.CustomURL))
		if err := helpers.Download(target, pkg.CustomURL); err != nil {
			return "", errors.Wrapf(err, "couldn't fetch %s from its custom url", pkg.ID)
		}
		return target, nil
	}
	if err := client.Download(client.Keys().Package(pkg.ID), target); err != nil {
		return "", err
	}
	return target, nil
}

// findCachedArchive looks for an already downloaded archive of the given
// package id in the cache directory.
func findCachedArchive(dir, id string) (string, bool) {
	files, err := helpers.ListTopFiles(dir)
	if err != nil {
		return "", false
	}
	for _, f := range files {
		name, version, err := verspec.SplitPackageFilename(f)
		if err != nil {
			continue
		}
		if verspec.PackageID(name, version) == id {
			return filepath.Join(dir, f), true
		}
	}
	return "", false
}

// InstallOne unpacks a downloaded archive into the shared install tree
// installed/<name>/<version> and returns that directory. An existing tree
// is reused as is.
func InstallOne(layout *paths.Layout, pkg *manifest.PackageInfo, archive string) (string, error) {
	dir := layout.PypiInstallDir(pkg.Name, pkg.Version)
	if _, err := os.Stat(dir); err == nil {
		log.Debug(log.Pypi, "install tree exists for %s", pkg.ID)
		return dir, nil
	}
	if err := helpers.UnzipFile(archive, dir); err != nil {
		_ = os.RemoveAll(dir)
		return "", errors.Wrapf(err, "couldn't unpack %s", pkg.ID)
	}
	return dir, nil
}

// Linking materializes a library view: every given package id's install
// tree is symlinked into venvDir under its package name. Stale links from
// a previous round are replaced.
func Linking(idx *Index, ids []string, venvDir string) error {
	if err := os.MkdirAll(venvDir, 0755); err != nil {
		return err
	}
	for _, id := range ids {
		name, _, err := verspec.SplitID(id)
		if err != nil {
			return err
		}
		_, installDir, err := idx.Get(id)
		if err != nil {
			return err
		}
		link := filepath.Join(venvDir, name)
		_ = os.RemoveAll(link)
		if err = os.Symlink(installDir, link); err != nil {
			return errors.Wrapf(err, "couldn't link %s into the library view", id)
		}
	}
	log.Debug(log.Pypi, "linked %d packages into %s", len(ids), filepath.Base(venvDir))
	return nil
}

// Expand walks the dependency edges reported by depsOf and returns the
// transitive closure of the given ids, dependencies first. A cycle means
// the dependency records are corrupt.
func Expand(ids []string, depsOf func(id string) []string) ([]string, error) {
	const (
		visiting = 1
		done     = 2
	)
	state := map[string]int{}
	var order []string

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return &IndexInconsistencyError{Reason: "dependency cycle through " + id}
		}
		state[id] = visiting
		for _, dep := range depsOf(id) {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = done
		order = append(order, id)
		return nil
	}

	for _, id := range ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}
