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

package manifest

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
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

// newTestProject lays out a small app source tree with an authored
// manifest.json and returns the manifest path.
func newTestProject(t *testing.T, dir string) string {
	t.Helper()
	mustWriteFile(t, filepath.Join(dir, "main.py"), "print('hi')\n")
	mustWriteFile(t, filepath.Join(dir, "src", "util.py"), "pass\n")
	mustMkdir(t, filepath.Join(dir, "cache"))

	manifestFile := filepath.Join(dir, "manifest.json")
	mustWriteFile(t, manifestFile, `{
  "appid": "hello_world",
  "name": "Hello World",
  "version": "1.0.0",
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
}`)
	return manifestFile
}

func TestLoadAuthoringForm(t *testing.T) {
	dir := t.TempDir()
	m, err := Load(newTestProject(t, dir))
	if err != nil {
		t.Fatal(err)
	}

	if m.AppID != "hello_world" || m.Version != "1.0.0" {
		t.Errorf("unexpected identity %s %s", m.AppID, m.Version)
	}
	if m.StartDirectory != dir {
		t.Errorf("start directory is %s, want %s", m.StartDirectory, dir)
	}

	file := m.Assets["main.py"]
	if file == nil || file.Type != TypeFile {
		t.Fatalf("main.py not scanned as a file asset: %+v", file)
	}
	if file.Hash == "" || file.UID != file.Hash {
		t.Errorf("file uid must be its hash, got uid=%q hash=%q", file.UID, file.Hash)
	}
	if want := HashBytes([]byte("print('hi')\n")); file.UID != want {
		t.Errorf("file uid = %q, want the content digest %q", file.UID, want)
	}

	src := m.Assets["src"]
	if src == nil || src.Type != TypeDir || src.Scheme != SchemeAll {
		t.Fatalf("src not scanned as a dir asset: %+v", src)
	}
	if src.UID == "" || src.Hash != "" {
		t.Errorf("dir uid must be the mtime string with no hash, got uid=%q hash=%q", src.UID, src.Hash)
	}

	dep := m.Dependencies["lk_logger"]
	if dep == nil {
		t.Fatal("dependency name was not normalized to lk_logger")
	}
	if dep.ID != "lk_logger-4.0.7" || dep.Version != "4.0.7" {
		t.Errorf("unexpected dependency record %+v", dep)
	}
}

func TestLoadRejectsLooseDependency(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "manifest.json")
	mustWriteFile(t, file, `{
  "appid": "hello_world",
  "name": "Hello World",
  "version": "1.0.0",
  "assets": {},
  "dependencies": {"numpy": ">=1.20"}
}`)

	_, err := Load(file)
	if err == nil {
		t.Fatal("loose dependency specifier must be rejected")
	}
	if _, ok := err.(*SchemaError); !ok {
		t.Errorf("want *SchemaError, got %T: %v", err, err)
	}
}

func TestLoadRejectsBadAssetPath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "manifest.json")
	mustWriteFile(t, file, `{
  "appid": "hello_world",
  "name": "Hello World",
  "version": "1.0.0",
  "assets": {"../escape": "all"},
  "dependencies": {}
}`)

	if _, err := Load(file); err == nil {
		t.Fatal("asset path escaping the start directory must be rejected")
	}
}

func TestValidateAppID(t *testing.T) {
	for _, appid := range []string{"Hello", "9lives", "has-dash", ""} {
		m := Init(appid, "x")
		if err := m.Validate(); err == nil {
			t.Errorf("appid %q must be rejected", appid)
		}
	}
	if err := Init("hello_world2", "x").Validate(); err != nil {
		t.Errorf("valid appid rejected: %v", err)
	}
}

func TestDumpLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, err := Load(newTestProject(t, dir))
	if err != nil {
		t.Fatal(err)
	}

	release := filepath.Join(dir, "out", "manifest.pkl")
	if err = Dump(m, release); err != nil {
		t.Fatal(err)
	}
	got, err := Load(release)
	if err != nil {
		t.Fatal(err)
	}

	if got.AppID != m.AppID || got.Name != m.Name || got.Version != m.Version {
		t.Errorf("identity changed in round trip: %+v", got)
	}
	if got.StartDirectory != filepath.Dir(release) {
		t.Errorf("start directory must be rewritten on load, got %s", got.StartDirectory)
	}
	if len(got.Assets) != len(m.Assets) || len(got.Dependencies) != len(m.Dependencies) {
		t.Fatalf("asset or dependency counts changed: %d/%d assets, %d/%d deps",
			len(got.Assets), len(m.Assets), len(got.Dependencies), len(m.Dependencies))
	}
	for key, want := range m.Assets {
		if !got.Assets[key].Same(want) {
			t.Errorf("asset %s changed in round trip", key)
		}
	}
	if !got.Launcher.EnableCLI || got.Launcher.Command != "python main.py" {
		t.Errorf("launcher section changed in round trip: %+v", got.Launcher)
	}
}
