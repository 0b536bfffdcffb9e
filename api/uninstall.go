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

package api

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/depsland/depsland/launcher"
	"github.com/depsland/depsland/log"
	"github.com/depsland/depsland/registry"
	"github.com/depsland/depsland/verspec"
)

// Uninstall removes one installed release: its app tree, its library view
// and, when the release was the head, its CLI entry. The shared package
// store is left alone since other apps may depend on the same packages.
// An empty version means the newest installed release.
func Uninstall(env *Env, appid, version string) error {
	last, err := registry.GetLastInstalledVersion(env.Layout, appid)
	if err != nil {
		return err
	}
	if version == "" {
		version = last
	}
	if version == "" {
		return errors.Errorf("app %s is not installed", appid)
	}

	if err = os.RemoveAll(env.Layout.AppVersion(appid, version)); err != nil {
		return err
	}
	if err = removeLibraryView(env, appid, version); err != nil {
		return err
	}
	if version == last {
		launcher.Remove(env.Layout, appid)
	}
	if err = dropHistoryEntry(env.Layout.InstHistory(appid), version); err != nil {
		return err
	}
	log.Info(log.Installer, "uninstalled %s %s", appid, version)
	return nil
}

// removeLibraryView drops the library view of one release. Releases whose
// dependency closure did not change share the previous view through a
// single link, so the view directory may still back newer releases: it is
// handed to the newest dependent and the remaining links are repointed
// before anything is deleted.
func removeLibraryView(env *Env, appid, version string) error {
	venvDir := env.Layout.VenvApp(appid, version)
	fi, err := os.Lstat(venvDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return os.Remove(venvDir)
	}

	dependents, err := viewDependents(env, appid, version)
	if err != nil {
		return err
	}
	if len(dependents) == 0 {
		return os.RemoveAll(venvDir)
	}

	heir := dependents[0]
	heirDir := env.Layout.VenvApp(appid, heir)
	if err = os.Remove(heirDir); err != nil {
		return err
	}
	if err = os.Rename(venvDir, heirDir); err != nil {
		return err
	}
	log.Debug(log.Installer, "library view of %s %s handed over to %s", appid, version, heir)
	for _, v := range dependents[1:] {
		link := env.Layout.VenvApp(appid, v)
		if err = os.Remove(link); err != nil {
			return err
		}
		if err = os.Symlink(heirDir, link); err != nil {
			return err
		}
	}
	return nil
}

// viewDependents lists the installed versions whose library view resolves
// into the view of the given version, newest first.
func viewDependents(env *Env, appid, version string) ([]string, error) {
	venvDir := env.Layout.VenvApp(appid, version)
	resolved, err := filepath.EvalSymlinks(venvDir)
	if err != nil {
		return nil, err
	}
	entries, err := ioutil.ReadDir(filepath.Join(env.Layout.Venv(), appid))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var dependents []string
	for _, e := range entries {
		if e.Name() == version || e.Mode()&os.ModeSymlink == 0 {
			continue
		}
		target, err := filepath.EvalSymlinks(env.Layout.VenvApp(appid, e.Name()))
		if err != nil {
			continue
		}
		if target == resolved {
			dependents = append(dependents, e.Name())
		}
	}
	verspec.SortVersions(dependents, true)
	return dependents, nil
}

// dropHistoryEntry removes one version line from a history file.
func dropHistoryEntry(file, version string) error {
	versions, err := registry.ReadHistory(file)
	if err != nil {
		return err
	}
	var kept []string
	for _, v := range versions {
		if v != version {
			kept = append(kept, v)
		}
	}
	if len(kept) == len(versions) {
		return nil
	}
	if len(kept) == 0 {
		err = os.Remove(file)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return ioutil.WriteFile(file, []byte(strings.Join(kept, "\n")+"\n"), 0644)
}
