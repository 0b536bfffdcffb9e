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
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/depsland/depsland/config"
	"github.com/depsland/depsland/pypi"
	"github.com/depsland/depsland/registry"
)

func mustMkdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
}

func mustWriteFile(t *testing.T, file, content string) {
	t.Helper()
	mustMkdir(t, filepath.Dir(file))
	if err := ioutil.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func mustReadFile(t *testing.T, file string) string {
	t.Helper()
	data, err := ioutil.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func newTestEnv(t *testing.T) *Env {
	t.Helper()
	var cfg config.DepslandConfig
	cfg.LoadDefaultsForPath(t.TempDir())
	env, err := NewEnv(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	return env
}

// writeProject lays out the app source tree and authored manifest for one
// release version.
func writeProject(t *testing.T, dir, version, mainContent string) string {
	t.Helper()
	mustWriteFile(t, filepath.Join(dir, "main.py"), mainContent)
	mustWriteFile(t, filepath.Join(dir, "src", "util.py"), "pass\n")
	mustMkdir(t, filepath.Join(dir, "cache"))

	manifestFile := filepath.Join(dir, "manifest.json")
	mustWriteFile(t, manifestFile, fmt.Sprintf(`{
  "appid": "hello_world",
  "name": "Hello World",
  "version": %q,
  "assets": {
    "main.py": "all",
    "src": "all",
    "cache": "root"
  },
  "dependencies": {
    "lk-logger": "==4.0.7"
  },
  "launcher": {
    "command": "python main.py",
    "enable_cli": true
  }
}`, version))
	return manifestFile
}

// seedDependency plants the installed tree of a pinned package in the
// publisher's shared store, as a real publisher machine would have.
func seedDependency(t *testing.T, env *Env, name, version string) {
	t.Helper()
	install := env.Layout.PypiInstallDir(name, version)
	mustWriteFile(t, filepath.Join(install, name, "__init__.py"), "# "+name+"\n")
}

// distFrom exposes the publisher's blob store as a distribution directory
// with the ".oss" convention.
func distFrom(t *testing.T, publisher *Env) string {
	t.Helper()
	dist := t.TempDir()
	if err := os.Symlink(publisher.Layout.Oss(), filepath.Join(dist, ".oss")); err != nil {
		t.Fatal(err)
	}
	return dist
}

func TestPublishInstallEndToEnd(t *testing.T) {
	publisher := newTestEnv(t)
	installer := newTestEnv(t)
	project := t.TempDir()

	seedDependency(t, publisher, "lk_logger", "4.0.7")
	manifestFile := writeProject(t, project, "1.0.0", "print('v1')\n")

	if err := Publish(publisher, manifestFile); err != nil {
		t.Fatal(err)
	}
	published, err := registry.GetLastPublishedVersion(publisher.Layout, "hello_world")
	if err != nil {
		t.Fatal(err)
	}
	if published != "1.0.0" {
		t.Fatalf("published head = %q, want 1.0.0", published)
	}

	if err = InstallLocal(installer, distFrom(t, publisher), false); err != nil {
		t.Fatal(err)
	}

	appDir := installer.Layout.AppVersion("hello_world", "1.0.0")
	if got := mustReadFile(t, filepath.Join(appDir, "main.py")); got != "print('v1')\n" {
		t.Errorf("main.py = %q", got)
	}
	if got := mustReadFile(t, filepath.Join(appDir, "src", "util.py")); got != "pass\n" {
		t.Errorf("src/util.py = %q", got)
	}
	fi, err := os.Stat(filepath.Join(appDir, "cache"))
	if err != nil || !fi.IsDir() {
		t.Error("root-scheme asset must be created as an empty directory")
	}

	idx, err := pypi.Load(installer.Layout)
	if err != nil {
		t.Fatal(err)
	}
	if !idx.HasID("lk_logger-4.0.7") {
		t.Error("dependency missing from the installer's package index")
	}
	link := filepath.Join(installer.Layout.VenvApp("hello_world", "1.0.0"), "lk_logger")
	if _, err = os.Readlink(link); err != nil {
		t.Errorf("library view link missing: %v", err)
	}

	installed, err := registry.GetLastInstalledVersion(installer.Layout, "hello_world")
	if err != nil {
		t.Fatal(err)
	}
	if installed != "1.0.0" {
		t.Errorf("installed head = %q, want 1.0.0", installed)
	}
	if _, err = os.Stat(filepath.Join(appDir, "hello_world.sh")); err != nil {
		t.Errorf("launcher script missing: %v", err)
	}
}

func TestIncrementalUpgrade(t *testing.T) {
	publisher := newTestEnv(t)
	installer := newTestEnv(t)
	project := t.TempDir()

	seedDependency(t, publisher, "lk_logger", "4.0.7")
	if err := Publish(publisher, writeProject(t, project, "1.0.0", "print('v1')\n")); err != nil {
		t.Fatal(err)
	}
	dist := distFrom(t, publisher)
	if err := InstallLocal(installer, dist, false); err != nil {
		t.Fatal(err)
	}

	// only main.py changes for the second release
	if err := Publish(publisher, writeProject(t, project, "1.1.0", "print('v2')\n")); err != nil {
		t.Fatal(err)
	}
	if err := InstallLocal(installer, dist, false); err != nil {
		t.Fatal(err)
	}

	appDir := installer.Layout.AppVersion("hello_world", "1.1.0")
	if got := mustReadFile(t, filepath.Join(appDir, "main.py")); got != "print('v2')\n" {
		t.Errorf("main.py = %q after upgrade", got)
	}
	// the unchanged asset is carried over from the previous release
	if got := mustReadFile(t, filepath.Join(appDir, "src", "util.py")); got != "pass\n" {
		t.Errorf("src/util.py = %q after upgrade", got)
	}

	// unchanged dependency closure reuses the previous library view
	venv := installer.Layout.VenvApp("hello_world", "1.1.0")
	if target, err := os.Readlink(venv); err != nil {
		t.Errorf("upgrade must reuse the previous library view: %v", err)
	} else if target != installer.Layout.VenvApp("hello_world", "1.0.0") {
		t.Errorf("library view links to %s", target)
	}

	installed, err := registry.GetLastInstalledVersion(installer.Layout, "hello_world")
	if err != nil {
		t.Fatal(err)
	}
	if installed != "1.1.0" {
		t.Errorf("installed head = %q, want 1.1.0", installed)
	}
}

func TestUpgradeRefetchesCorruptedCarryOver(t *testing.T) {
	publisher := newTestEnv(t)
	installer := newTestEnv(t)
	project := t.TempDir()

	seedDependency(t, publisher, "lk_logger", "4.0.7")
	if err := Publish(publisher, writeProject(t, project, "1.0.0", "print('v1')\n")); err != nil {
		t.Fatal(err)
	}
	dist := distFrom(t, publisher)
	if err := InstallLocal(installer, dist, false); err != nil {
		t.Fatal(err)
	}

	// corrupt the installed tree: the unchanged asset disappears locally
	if err := os.RemoveAll(filepath.Join(installer.Layout.AppVersion("hello_world", "1.0.0"), "src")); err != nil {
		t.Fatal(err)
	}

	if err := Publish(publisher, writeProject(t, project, "1.1.0", "print('v2')\n")); err != nil {
		t.Fatal(err)
	}
	if err := InstallLocal(installer, dist, false); err != nil {
		t.Fatal(err)
	}

	// the missing carry-over is fetched from the store instead of failing
	got := mustReadFile(t, filepath.Join(
		installer.Layout.AppVersion("hello_world", "1.1.0"), "src", "util.py"))
	if got != "pass\n" {
		t.Errorf("src/util.py = %q after refetch", got)
	}
}

func TestPublishRejectsNonIncreasingVersion(t *testing.T) {
	publisher := newTestEnv(t)
	project := t.TempDir()
	seedDependency(t, publisher, "lk_logger", "4.0.7")

	if err := Publish(publisher, writeProject(t, project, "1.0.0", "print('v1')\n")); err != nil {
		t.Fatal(err)
	}

	err := Publish(publisher, writeProject(t, project, "1.0.0", "print('again')\n"))
	if _, ok := err.(*VersionNotIncreasingError); !ok {
		t.Errorf("republish of same version: want *VersionNotIncreasingError, got %T: %v", err, err)
	}

	err = Publish(publisher, writeProject(t, project, "0.9.0", "print('old')\n"))
	if _, ok := err.(*VersionNotIncreasingError); !ok {
		t.Errorf("downgrade publish: want *VersionNotIncreasingError, got %T: %v", err, err)
	}
}

func TestInstallIsIdempotent(t *testing.T) {
	publisher := newTestEnv(t)
	installer := newTestEnv(t)
	project := t.TempDir()
	seedDependency(t, publisher, "lk_logger", "4.0.7")

	if err := Publish(publisher, writeProject(t, project, "1.0.0", "print('v1')\n")); err != nil {
		t.Fatal(err)
	}
	dist := distFrom(t, publisher)
	if err := InstallLocal(installer, dist, false); err != nil {
		t.Fatal(err)
	}
	// a second install of the same release is a no-op, not an error
	if err := InstallLocal(installer, dist, false); err != nil {
		t.Fatal(err)
	}

	versions, err := registry.ReadHistory(installer.Layout.InstHistory("hello_world"))
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 1 {
		t.Errorf("history = %v, want a single entry", versions)
	}
}

func TestForceReinstall(t *testing.T) {
	publisher := newTestEnv(t)
	installer := newTestEnv(t)
	project := t.TempDir()
	seedDependency(t, publisher, "lk_logger", "4.0.7")

	if err := Publish(publisher, writeProject(t, project, "1.0.0", "print('v1')\n")); err != nil {
		t.Fatal(err)
	}
	dist := distFrom(t, publisher)
	if err := InstallLocal(installer, dist, false); err != nil {
		t.Fatal(err)
	}

	// damage the installed tree, then force a reinstall of the same release
	appDir := installer.Layout.AppVersion("hello_world", "1.0.0")
	if err := os.Remove(filepath.Join(appDir, "main.py")); err != nil {
		t.Fatal(err)
	}
	if err := InstallLocal(installer, dist, true); err != nil {
		t.Fatal(err)
	}

	if got := mustReadFile(t, filepath.Join(appDir, "main.py")); got != "print('v1')\n" {
		t.Errorf("main.py = %q after reinstall", got)
	}
	if got := mustReadFile(t, filepath.Join(appDir, "src", "util.py")); got != "pass\n" {
		t.Errorf("src/util.py = %q after reinstall", got)
	}
	if _, err := os.Stat(filepath.Join(installer.Layout.VenvApp("hello_world", "1.0.0"), "lk_logger")); err != nil {
		t.Errorf("library view broken after reinstall: %v", err)
	}

	versions, err := registry.ReadHistory(installer.Layout.InstHistory("hello_world"))
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 1 {
		t.Errorf("history = %v after reinstall, want a single entry", versions)
	}
}

func TestUninstallOldVersionKeepsSharedLibraryView(t *testing.T) {
	publisher := newTestEnv(t)
	installer := newTestEnv(t)
	project := t.TempDir()
	seedDependency(t, publisher, "lk_logger", "4.0.7")

	if err := Publish(publisher, writeProject(t, project, "1.0.0", "print('v1')\n")); err != nil {
		t.Fatal(err)
	}
	dist := distFrom(t, publisher)
	if err := InstallLocal(installer, dist, false); err != nil {
		t.Fatal(err)
	}
	if err := Publish(publisher, writeProject(t, project, "1.1.0", "print('v2')\n")); err != nil {
		t.Fatal(err)
	}
	if err := InstallLocal(installer, dist, false); err != nil {
		t.Fatal(err)
	}

	// 1.1.0 shares 1.0.0's library view through a single link
	if _, err := os.Readlink(installer.Layout.VenvApp("hello_world", "1.1.0")); err != nil {
		t.Fatal(err)
	}

	if err := Uninstall(installer, "hello_world", "1.0.0"); err != nil {
		t.Fatal(err)
	}

	// the surviving release keeps a working library view
	if _, err := os.Stat(filepath.Join(installer.Layout.VenvApp("hello_world", "1.1.0"), "lk_logger")); err != nil {
		t.Errorf("library view of 1.1.0 broken after uninstalling 1.0.0: %v", err)
	}
	if _, err := os.Stat(installer.Layout.VenvApp("hello_world", "1.0.0")); !os.IsNotExist(err) {
		t.Error("library view of 1.0.0 survived its uninstall")
	}

	head, err := registry.GetLastInstalledVersion(installer.Layout, "hello_world")
	if err != nil {
		t.Fatal(err)
	}
	if head != "1.1.0" {
		t.Errorf("installed head = %q after uninstalling the old release", head)
	}
}

func TestPublishInstallPartialSchemes(t *testing.T) {
	publisher := newTestEnv(t)
	installer := newTestEnv(t)
	project := t.TempDir()

	// the same source tree shape under each scheme
	schemes := []string{"all_dirs", "top", "top_files", "top_dirs"}
	for i, scheme := range schemes {
		dir := filepath.Join(project, scheme)
		mustWriteFile(t, filepath.Join(dir, "a.txt"), "a\n")
		mustWriteFile(t, filepath.Join(dir, "sub", "b.txt"), "b\n")
		mustWriteFile(t, filepath.Join(dir, "sub", "deep", "c.txt"), "c\n")
		// distinct mtimes keep the directory uids distinct
		when := time.Now().Add(-time.Duration(i+1) * time.Hour)
		if err := os.Chtimes(dir, when, when); err != nil {
			t.Fatal(err)
		}
	}

	manifestFile := filepath.Join(project, "manifest.json")
	mustWriteFile(t, manifestFile, `{
  "appid": "scheme_demo",
  "name": "Scheme Demo",
  "version": "1.0.0",
  "assets": {
    "all_dirs": "all_dirs",
    "top": "top",
    "top_files": "top_files",
    "top_dirs": "top_dirs"
  },
  "dependencies": {}
}`)

	if err := Publish(publisher, manifestFile); err != nil {
		t.Fatal(err)
	}
	if err := InstallLocal(installer, distFrom(t, publisher), false); err != nil {
		t.Fatal(err)
	}

	appDir := installer.Layout.AppVersion("scheme_demo", "1.0.0")
	checks := []struct {
		path  string
		dir   bool
		exist bool
	}{
		{"all_dirs/sub/deep", true, true},
		{"all_dirs/a.txt", false, false},
		{"all_dirs/sub/b.txt", false, false},
		{"top/a.txt", false, true},
		{"top/sub", true, true},
		{"top/sub/b.txt", false, false},
		{"top/sub/deep", true, false},
		{"top_files/a.txt", false, true},
		{"top_files/sub", true, false},
		{"top_dirs/sub", true, true},
		{"top_dirs/a.txt", false, false},
		{"top_dirs/sub/deep", true, false},
	}
	for _, c := range checks {
		fi, err := os.Stat(filepath.Join(appDir, filepath.FromSlash(c.path)))
		if !c.exist {
			if err == nil {
				t.Errorf("%s must not be materialized", c.path)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s missing: %v", c.path, err)
		} else if fi.IsDir() != c.dir {
			t.Errorf("%s: IsDir = %v, want %v", c.path, fi.IsDir(), c.dir)
		}
	}

	// a content check on the one file every file-carrying scheme ships
	if got := mustReadFile(t, filepath.Join(appDir, "top", "a.txt")); got != "a\n" {
		t.Errorf("top/a.txt = %q", got)
	}
}

func TestUninstall(t *testing.T) {
	publisher := newTestEnv(t)
	installer := newTestEnv(t)
	project := t.TempDir()
	seedDependency(t, publisher, "lk_logger", "4.0.7")

	if err := Publish(publisher, writeProject(t, project, "1.0.0", "print('v1')\n")); err != nil {
		t.Fatal(err)
	}
	if err := InstallLocal(installer, distFrom(t, publisher), false); err != nil {
		t.Fatal(err)
	}

	if err := Uninstall(installer, "hello_world", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(installer.Layout.AppVersion("hello_world", "1.0.0")); !os.IsNotExist(err) {
		t.Error("app tree survived uninstall")
	}
	if _, err := os.Stat(installer.Layout.VenvApp("hello_world", "1.0.0")); !os.IsNotExist(err) {
		t.Error("library view survived uninstall")
	}
	// the shared package store is deliberately untouched
	if _, err := os.Stat(installer.Layout.PypiInstallDir("lk_logger", "4.0.7")); err != nil {
		t.Error("shared package store must survive uninstall")
	}

	head, err := registry.GetLastInstalledVersion(installer.Layout, "hello_world")
	if err != nil {
		t.Fatal(err)
	}
	if head != "" {
		t.Errorf("install history head = %q after uninstall, want empty", head)
	}

	if err = Uninstall(installer, "hello_world", ""); err == nil {
		t.Error("uninstalling an app that is not installed must fail")
	}
}
