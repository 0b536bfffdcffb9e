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
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/depsland/depsland/helpers"
	"github.com/depsland/depsland/launcher"
	"github.com/depsland/depsland/log"
	"github.com/depsland/depsland/manifest"
	"github.com/depsland/depsland/oss"
	"github.com/depsland/depsland/pypi"
	"github.com/depsland/depsland/registry"
	"github.com/depsland/depsland/verspec"
)

// InstallByAppID fetches the published manifest of an app from the blob
// store and installs that release.
func InstallByAppID(env *Env, appid string, force bool) error {
	client, err := env.OssClient(appid)
	if err != nil {
		return err
	}
	return installFromStore(env, client, appid, force)
}

// InstallLocal installs from a self-contained distribution directory that
// carries its own blob store under ".oss". Used for offline delivery.
func InstallLocal(env *Env, distDir string, force bool) error {
	root := filepath.Join(distDir, ".oss")
	appids, err := helpers.ListTopDirs(filepath.Join(root, "apps"))
	if err != nil {
		return errors.Wrapf(err, "%s is not a depsland distribution", distDir)
	}
	if len(appids) != 1 {
		return errors.Errorf("distribution %s must hold exactly one app, found %d", distDir, len(appids))
	}
	client, err := oss.NewLocal(root, appids[0], false)
	if err != nil {
		return err
	}
	return installFromStore(env, client, appids[0], force)
}

func installFromStore(env *Env, client oss.Client, appid string, force bool) error {
	tempDir, err := env.Layout.MakeTempDir()
	if err != nil {
		return err
	}
	defer func() {
		_ = os.RemoveAll(tempDir)
	}()

	releaseFile := filepath.Join(tempDir, "manifest.pkl")
	if err = client.Download(client.Keys().Manifest(), releaseFile); err != nil {
		return err
	}
	m, err := manifest.Load(releaseFile)
	if err != nil {
		return err
	}
	if m.AppID != appid {
		return &AppIDMismatchError{Expected: appid, Got: m.AppID}
	}
	return install(env, client, m, tempDir, force)
}

// install materializes one release. The installation history is written
// last, so a failure at any earlier point leaves the previous release as
// the head and the partial target tree as garbage to overwrite on retry.
func install(env *Env, client oss.Client, m *manifest.Manifest, tempDir string, force bool) error {
	last, err := registry.GetLastInstalledVersion(env.Layout, m.AppID)
	if err != nil {
		return err
	}
	if last == m.Version && !force {
		log.Info(log.Installer, "%s %s is already installed and up to date", m.AppID, m.Version)
		return nil
	}
	if last != "" && !force {
		if ok, err := verspec.Compare(m.Version, ">", last); err != nil {
			return err
		} else if !ok {
			return &VersionNotIncreasingError{Current: last, Proposed: m.Version}
		}
	}

	targetDir := env.Layout.AppVersion(m.AppID, m.Version)

	// On a reinstall the target tree IS the last-installed tree, so there
	// is no previous release to reuse: diff against an empty release and
	// rebuild everything from the store.
	reinstall := last == m.Version && force

	old := manifest.Init(m.AppID, m.Name)
	if last != "" && !reinstall {
		old, err = manifest.Load(filepath.Join(env.Layout.AppVersion(m.AppID, last), "manifest.pkl"))
		if err != nil {
			return errors.Wrapf(err, "couldn't load the installed release %s", last)
		}
	}

	if _, err = os.Stat(targetDir); err == nil {
		if !force {
			return &TargetExistsError{Dir: targetDir}
		}
		if err = os.RemoveAll(targetDir); err != nil {
			return err
		}
	}

	diff := manifest.Diff(m, old)
	log.Info(log.Installer, "installing %s %s -> %s", m.AppID, old.Version, m.Version)

	if err = os.MkdirAll(targetDir, 0755); err != nil {
		return err
	}
	oldDir := ""
	if last != "" && !reinstall {
		oldDir = env.Layout.AppVersion(m.AppID, last)
	}
	if err = installAssets(env, client, diff.Assets, oldDir, targetDir, tempDir); err != nil {
		return err
	}

	idx, ids, depsChanged, err := installPackages(env, client, m, diff.Dependencies)
	if err != nil {
		return err
	}
	if err = linkLibraryView(env, idx, m, ids, last, depsChanged); err != nil {
		return err
	}

	if err = launcher.Emit(env.Layout, m); err != nil {
		return err
	}
	if err = manifest.Dump(m, filepath.Join(targetDir, "manifest.pkl")); err != nil {
		return err
	}
	if err = registry.Prepend(env.Layout.InstHistory(m.AppID), m.Version); err != nil {
		return err
	}
	log.Info(log.Installer, "installed %s %s", m.AppID, m.Version)
	return nil
}

func installAssets(env *Env, client oss.Client, changes []manifest.AssetChange, oldDir, targetDir, tempDir string) error {
	for _, c := range changes {
		switch c.Action {
		case manifest.Delete:
			// absent from the new tree, nothing to materialize

		case manifest.Ignore:
			if oldDir != "" {
				oldPath := filepath.Join(oldDir, filepath.FromSlash(c.Key))
				if _, err := os.Stat(oldPath); err == nil {
					if err = copyFromPrevious(oldPath, targetDir, c); err != nil {
						return err
					}
					continue
				}
			}
			// The previous tree lost this asset, fetch it like an append.
			log.Warning(log.Installer, "asset %s missing from the previous install, refetching", c.Key)
			fallthrough

		case manifest.Append, manifest.Update:
			if err := materializeAsset(client, c.Key, c.New, targetDir, tempDir); err != nil {
				return err
			}
		}
	}
	return nil
}

func copyFromPrevious(oldPath, targetDir string, c manifest.AssetChange) error {
	target := filepath.Join(targetDir, filepath.FromSlash(c.Key))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	if c.New.Type == manifest.TypeDir {
		return helpers.CopyTree(target, oldPath)
	}
	// The target tree is freshly created, so an existing file means two
	// assets collided on the same relative path.
	return helpers.CopyFileNoOverwrite(target, oldPath)
}

// materializeAsset downloads one asset blob and unpacks it at its relative
// path in the target tree. Root-scheme directories have no blob and are
// just created.
func materializeAsset(client oss.Client, relpath string, info *manifest.AssetInfo, targetDir, tempDir string) error {
	target := filepath.Join(targetDir, filepath.FromSlash(relpath))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	if info.Type == manifest.TypeDir && info.Scheme == manifest.SchemeRoot {
		return os.MkdirAll(target, 0755)
	}

	key := client.Keys().Asset(info.UID)
	if info.Type == manifest.TypeFile {
		blob := filepath.Join(tempDir, info.UID+".fzip")
		if err := client.Download(key, blob); err != nil {
			return err
		}
		return helpers.CopyFile(target, blob)
	}

	blob := filepath.Join(tempDir, info.UID+".zip")
	if err := client.Download(key, blob); err != nil {
		return err
	}
	return helpers.UnzipFile(blob, target)
}

// pkgResult carries one finished download+unpack back to the driver, which
// owns all index mutation.
type pkgResult struct {
	pkg        *manifest.PackageInfo
	archive    string
	installDir string
	err        error
}

// installPackages brings every package of the manifest's dependency
// closure into the shared store, using a bounded worker pool for the
// download and unpack work. It returns the loaded index, the full closure
// ids and whether the closure differs from the previous release.
func installPackages(env *Env, client oss.Client, m *manifest.Manifest, changes []manifest.PackageChange) (*pypi.Index, []string, bool, error) {
	depsChanged := false
	for _, c := range changes {
		if c.Action != manifest.Ignore {
			depsChanged = true
			break
		}
	}

	byID := make(map[string]*manifest.PackageInfo, len(m.Dependencies))
	roots := make([]string, 0, len(m.Dependencies))
	for _, pkg := range m.Dependencies {
		byID[pkg.ID] = pkg
		roots = append(roots, pkg.ID)
	}

	idx, err := pypi.Load(env.Layout)
	if err != nil {
		return nil, nil, false, err
	}
	ids, err := pypi.Expand(roots, func(id string) []string {
		if pkg, ok := byID[id]; ok {
			return pkg.Dependencies
		}
		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}

	var tasks []*manifest.PackageInfo
	for _, id := range ids {
		if idx.HasID(id) {
			continue
		}
		pkg, ok := byID[id]
		if !ok {
			return nil, nil, false, errors.Errorf("dependency closure names %s but the manifest carries no record for it", id)
		}
		tasks = append(tasks, pkg)
	}
	if len(tasks) == 0 {
		return idx, ids, depsChanged, nil
	}

	numWorkers := env.Config.Install.MaxWorkers
	if len(tasks) < numWorkers {
		numWorkers = len(tasks)
	}
	log.Info(log.Installer, "fetching %d packages with %d workers", len(tasks), numWorkers)

	taskCh := make(chan *manifest.PackageInfo)
	resCh := make(chan pkgResult, len(tasks))
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for pkg := range taskCh {
			archive, err := pypi.DownloadOne(env.Layout, client, pkg)
			if err != nil {
				resCh <- pkgResult{pkg: pkg, err: err}
				continue
			}
			installDir, err := pypi.InstallOne(env.Layout, pkg, archive)
			resCh <- pkgResult{pkg: pkg, archive: archive, installDir: installDir, err: err}
		}
	}
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go worker()
	}
	go func() {
		for _, t := range tasks {
			taskCh <- t
		}
		close(taskCh)
		wg.Wait()
		close(resCh)
	}()

	// Index records are applied on this goroutine only.
	var firstErr error
	for r := range resCh {
		if r.err != nil {
			if firstErr == nil {
				firstErr = errors.Wrapf(r.err, "couldn't fetch %s", r.pkg.ID)
			}
			continue
		}
		if firstErr != nil {
			continue
		}
		if err := idx.AddToIndex(r.archive, pypi.KindDownload); err != nil {
			firstErr = err
			continue
		}
		if err := idx.AddToIndex(r.installDir, pypi.KindInstall); err != nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, nil, false, firstErr
	}
	if err = idx.Save(); err != nil {
		return nil, nil, false, err
	}
	return idx, ids, depsChanged, nil
}

// linkLibraryView builds the per-version library view. When the dependency
// closure is unchanged the previous view is reused via a single link
// instead of relinking every package.
func linkLibraryView(env *Env, idx *pypi.Index, m *manifest.Manifest, ids []string, last string, depsChanged bool) error {
	venvDir := env.Layout.VenvApp(m.AppID, m.Version)
	if !depsChanged && last != "" {
		prev := env.Layout.VenvApp(m.AppID, last)
		if _, err := os.Stat(prev); err == nil {
			if err = os.MkdirAll(filepath.Dir(venvDir), 0755); err != nil {
				return err
			}
			_ = os.RemoveAll(venvDir)
			log.Debug(log.Installer, "dependencies unchanged, reusing the %s library view", last)
			return os.Symlink(prev, venvDir)
		}
	}
	// A leftover fast link here must not redirect the relink into the
	// previous release's view.
	if fi, err := os.Lstat(venvDir); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		if err = os.Remove(venvDir); err != nil {
			return err
		}
	}
	return pypi.Linking(idx, ids, venvDir)
}
