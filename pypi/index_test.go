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
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/depsland/depsland/paths"
)

func newTestLayout(t *testing.T) *paths.Layout {
	t.Helper()
	layout := paths.NewLayout(t.TempDir())
	if err := layout.EnsureDirs(); err != nil {
		t.Fatal(err)
	}
	return layout
}

func mustLoad(t *testing.T, layout *paths.Layout) *Index {
	t.Helper()
	idx, err := Load(layout)
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

// mustRegister runs the two-step add protocol for one package.
func mustRegister(t *testing.T, idx *Index, layout *paths.Layout, name, version string) {
	t.Helper()
	archive := filepath.Join(layout.PypiDownloadDir(name), name+"-"+version+".tar.gz")
	if err := idx.AddToIndex(archive, KindDownload); err != nil {
		t.Fatal(err)
	}
	if err := idx.AddToIndex(layout.PypiInstallDir(name, version), KindInstall); err != nil {
		t.Fatal(err)
	}
}

func TestAddToIndexPairsRecords(t *testing.T) {
	layout := newTestLayout(t)
	idx := mustLoad(t, layout)

	mustRegister(t, idx, layout, "lk_logger", "4.0.7")

	if !idx.HasID("lk_logger-4.0.7") || !idx.HasName("lk-logger") {
		t.Fatal("registered package not visible through HasID/HasName")
	}
	dl, ins, err := idx.Get("lk_logger-4.0.7")
	if err != nil {
		t.Fatal(err)
	}
	if dl != filepath.Join(layout.PypiDownloadDir("lk_logger"), "lk_logger-4.0.7.tar.gz") {
		t.Errorf("unexpected download path %s", dl)
	}
	if ins != layout.PypiInstallDir("lk_logger", "4.0.7") {
		t.Errorf("unexpected install path %s", ins)
	}
}

func TestAddToIndexStashMiss(t *testing.T) {
	layout := newTestLayout(t)
	idx := mustLoad(t, layout)

	err := idx.AddToIndex(layout.PypiInstallDir("numpy", "1.26.0"), KindInstall)
	if err == nil {
		t.Fatal("install record without a download record must fail")
	}
	if _, ok := err.(*IndexInconsistencyError); !ok {
		t.Errorf("want *IndexInconsistencyError, got %T: %v", err, err)
	}
}

func TestUpdateIndexRejectsForeignPaths(t *testing.T) {
	layout := newTestLayout(t)
	idx := mustLoad(t, layout)

	err := idx.UpdateIndex("numpy-1.26.0",
		"/elsewhere/numpy-1.26.0.tar.gz",
		layout.PypiInstallDir("numpy", "1.26.0"), false)
	if err == nil {
		t.Fatal("paths outside the pypi tree must be rejected")
	}
	if _, ok := err.(*IndexInconsistencyError); !ok {
		t.Errorf("want *IndexInconsistencyError, got %T: %v", err, err)
	}
}

func TestSaveSortsVersionsNewestFirst(t *testing.T) {
	layout := newTestLayout(t)
	idx := mustLoad(t, layout)

	for _, v := range []string{"1.2.0", "2.0.0", "1.10.0"} {
		mustRegister(t, idx, layout, "numpy", v)
	}
	if err := idx.Save(); err != nil {
		t.Fatal(err)
	}

	reloaded := mustLoad(t, layout)
	want := []string{"2.0.0", "1.10.0", "1.2.0"}
	if got := reloaded.Versions("numpy"); !reflect.DeepEqual(got, want) {
		t.Errorf("versions = %v, want %v", got, want)
	}
}

func TestSaveDropsIncompleteStash(t *testing.T) {
	layout := newTestLayout(t)
	idx := mustLoad(t, layout)

	archive := filepath.Join(layout.PypiDownloadDir("numpy"), "numpy-1.26.0.tar.gz")
	if err := idx.AddToIndex(archive, KindDownload); err != nil {
		t.Fatal(err)
	}
	if err := idx.Save(); err != nil {
		t.Fatal(err)
	}

	reloaded := mustLoad(t, layout)
	if reloaded.HasID("numpy-1.26.0") {
		t.Error("half-registered package must not be persisted")
	}
}

func TestSaveSurvivesReload(t *testing.T) {
	layout := newTestLayout(t)
	idx := mustLoad(t, layout)
	mustRegister(t, idx, layout, "lk_utils", "2.5.0")
	if err := idx.Save(); err != nil {
		t.Fatal(err)
	}

	// no temp leftovers next to the data files
	entries, err := ioutil.ReadDir(layout.PypiIndex())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("index dir holds %d files, want the two data files", len(entries))
	}

	reloaded := mustLoad(t, layout)
	if !reloaded.HasID("lk_utils-2.5.0") {
		t.Error("saved record lost on reload")
	}
}

func TestRebuildFromStore(t *testing.T) {
	layout := newTestLayout(t)

	archive := filepath.Join(layout.PypiDownloadDir("lk_logger"), "lk-logger-4.0.7.tar.gz")
	if err := os.MkdirAll(filepath.Dir(archive), 0755); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(archive, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(layout.PypiInstallDir("lk_logger", "4.0.7"), 0755); err != nil {
		t.Fatal(err)
	}
	// an orphan install tree with no archive must be skipped
	if err := os.MkdirAll(layout.PypiInstallDir("orphan", "1.0.0"), 0755); err != nil {
		t.Fatal(err)
	}

	idx := mustLoad(t, layout)
	if err := idx.Rebuild(); err != nil {
		t.Fatal(err)
	}

	if !idx.HasID("lk_logger-4.0.7") {
		t.Error("rebuild missed a complete package")
	}
	if idx.HasID("orphan-1.0.0") {
		t.Error("rebuild indexed an orphan install tree")
	}
}
