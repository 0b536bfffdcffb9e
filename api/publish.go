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

	"github.com/pkg/errors"

	"github.com/depsland/depsland/helpers"
	"github.com/depsland/depsland/log"
	"github.com/depsland/depsland/manifest"
	"github.com/depsland/depsland/oss"
	"github.com/depsland/depsland/registry"
	"github.com/depsland/depsland/verspec"
)

// Publish diffs the authored manifest against the last published release
// and pushes the minimum change set to the blob store. The manifest blob is
// uploaded last so that installers never observe a release whose payloads
// are still in flight; on update the new payload goes up before the old one
// is deleted for the same reason.
func Publish(env *Env, manifestFile string) error {
	m, err := manifest.Load(manifestFile)
	if err != nil {
		return err
	}

	old, err := lastPublished(env, m)
	if err != nil {
		return err
	}
	if ok, err := verspec.Compare(m.Version, ">", old.Version); err != nil {
		return err
	} else if !ok {
		return &VersionNotIncreasingError{Current: old.Version, Proposed: m.Version}
	}

	client, err := env.OssClient(m.AppID)
	if err != nil {
		return err
	}

	tempDir, err := env.Layout.MakeTempDir()
	if err != nil {
		return err
	}
	defer func() {
		_ = os.RemoveAll(tempDir)
	}()

	diff := manifest.Diff(m, old)
	log.Info(log.Publisher, "publishing %s %s -> %s (%d asset changes, %d dependency changes)",
		m.AppID, old.Version, m.Version, len(diff.Assets), len(diff.Dependencies))

	if err = publishAssets(env, client, m, diff.Assets, tempDir); err != nil {
		return err
	}
	if err = publishPackages(env, client, diff.Dependencies, tempDir); err != nil {
		return err
	}

	// Manifest last: it is the commit point of the release.
	releaseFile := filepath.Join(tempDir, "manifest.pkl")
	if err = manifest.Dump(m, releaseFile); err != nil {
		return err
	}
	if err = client.Upload(releaseFile, client.Keys().Manifest()); err != nil {
		return err
	}

	local := filepath.Join(env.Layout.AppVersion(m.AppID, m.Version), "manifest.pkl")
	if err = manifest.Dump(m, local); err != nil {
		return err
	}
	if err = registry.Prepend(env.Layout.DistHistory(m.AppID), m.Version); err != nil {
		return err
	}
	log.Info(log.Publisher, "published %s %s", m.AppID, m.Version)
	return nil
}

// lastPublished loads the manifest of the newest published release, or a
// synthetic empty release when the app has never been published.
func lastPublished(env *Env, m *manifest.Manifest) (*manifest.Manifest, error) {
	last, err := registry.GetLastPublishedVersion(env.Layout, m.AppID)
	if err != nil {
		return nil, err
	}
	if last == "" {
		return manifest.Init(m.AppID, m.Name), nil
	}
	old, err := manifest.Load(filepath.Join(env.Layout.AppVersion(m.AppID, last), "manifest.pkl"))
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't load the last published release %s", last)
	}
	if old.AppID != m.AppID {
		return nil, &AppIDMismatchError{Expected: old.AppID, Got: m.AppID}
	}
	return old, nil
}

func publishAssets(env *Env, client oss.Client, m *manifest.Manifest, changes []manifest.AssetChange, tempDir string) error {
	for _, c := range changes {
		switch c.Action {
		case manifest.Ignore:
			log.Debug(log.Publisher, "asset %s unchanged", c.Key)

		case manifest.Delete:
			if c.Old.Scheme != manifest.SchemeRoot {
				if err := client.Delete(client.Keys().Asset(c.Old.UID)); err != nil {
					return err
				}
			}
			log.Info(log.Publisher, "deleted asset %s", c.Key)

		case manifest.Append, manifest.Update:
			if c.New.Scheme != manifest.SchemeRoot {
				staged, err := stageAsset(m, c.Key, c.New, tempDir)
				if err != nil {
					return err
				}
				if err = client.Upload(staged, client.Keys().Asset(c.New.UID)); err != nil {
					return err
				}
			}
			if c.Action == manifest.Update && c.Old.Scheme != manifest.SchemeRoot {
				if err := client.Delete(client.Keys().Asset(c.Old.UID)); err != nil {
					return err
				}
			}
			log.Info(log.Publisher, "%sed asset %s", c.Action, c.Key)
		}
	}
	return nil
}

// stageAsset packages one asset into the staging directory and returns the
// archive path. Files travel as raw ".fzip" blobs, directories as zip
// archives whose entries are relative to the asset root.
func stageAsset(m *manifest.Manifest, relpath string, info *manifest.AssetInfo, tempDir string) (string, error) {
	src := filepath.Join(m.StartDirectory, filepath.FromSlash(relpath))

	if info.Type == manifest.TypeFile {
		out := filepath.Join(tempDir, info.UID+".fzip")
		return out, helpers.CompressFile(src, out)
	}

	out := filepath.Join(tempDir, info.UID+".zip")
	if info.Scheme == manifest.SchemeAll {
		return out, helpers.CompressDir(src, out)
	}

	stage := filepath.Join(tempDir, "stage-"+info.UID)
	if err := buildPartialTree(stage, src, info.Scheme); err != nil {
		return "", errors.Wrapf(err, "couldn't stage asset %s", relpath)
	}
	return out, helpers.CompressDir(stage, out)
}

// buildPartialTree materializes the scheme-selected subset of src at stage.
func buildPartialTree(stage, src string, scheme manifest.Scheme) error {
	if err := os.MkdirAll(stage, 0755); err != nil {
		return err
	}

	copyTopFiles := func() error {
		files, err := helpers.ListTopFiles(src)
		if err != nil {
			return err
		}
		for _, f := range files {
			if err = helpers.CopyFile(filepath.Join(stage, f), filepath.Join(src, f)); err != nil {
				return err
			}
		}
		return nil
	}
	makeTopDirs := func() error {
		dirs, err := helpers.ListTopDirs(src)
		if err != nil {
			return err
		}
		for _, d := range dirs {
			if err = os.MkdirAll(filepath.Join(stage, d), 0755); err != nil {
				return err
			}
		}
		return nil
	}

	switch scheme {
	case manifest.SchemeAllDirs:
		return helpers.CloneTree(stage, src)
	case manifest.SchemeTop:
		if err := copyTopFiles(); err != nil {
			return err
		}
		return makeTopDirs()
	case manifest.SchemeTopFiles:
		return copyTopFiles()
	case manifest.SchemeTopDirs:
		return makeTopDirs()
	}
	return errors.Errorf("scheme %q takes no partial tree", scheme)
}

func publishPackages(env *Env, client oss.Client, changes []manifest.PackageChange, tempDir string) error {
	for _, c := range changes {
		switch c.Action {
		case manifest.Ignore:
			log.Debug(log.Publisher, "dependency %s unchanged", c.Key)

		case manifest.Delete:
			if err := client.Delete(client.Keys().Package(c.Old.ID)); err != nil {
				return err
			}
			log.Info(log.Publisher, "deleted dependency %s", c.Old.ID)

		case manifest.Append, manifest.Update:
			archive, err := stagePackage(env, c.New, tempDir)
			if err != nil {
				return err
			}
			if err = client.Upload(archive, client.Keys().Package(c.New.ID)); err != nil {
				return err
			}
			if c.Action == manifest.Update {
				if err = client.Delete(client.Keys().Package(c.Old.ID)); err != nil {
					return err
				}
			}
			log.Info(log.Publisher, "%sed dependency %s", c.Action, c.New.ID)
		}
	}
	return nil
}

// stagePackage zips the locally installed tree of a pinned package. The
// publisher machine must have the dependency in its shared store already.
func stagePackage(env *Env, pkg *manifest.PackageInfo, tempDir string) (string, error) {
	installDir := env.Layout.PypiInstallDir(pkg.Name, pkg.Version)
	if _, err := os.Stat(installDir); err != nil {
		return "", errors.Wrapf(err, "dependency %s is not installed locally; install it before publishing", pkg.ID)
	}
	out := filepath.Join(tempDir, pkg.ID+".zip")
	return out, helpers.CompressDir(installDir, out)
}
