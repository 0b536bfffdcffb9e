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

package registry

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/depsland/depsland/paths"
)

func TestHistoryRoundTrip(t *testing.T) {
	file := filepath.Join(t.TempDir(), "app", ".inst_history")

	head, err := Head(file)
	if err != nil {
		t.Fatal(err)
	}
	if head != "" {
		t.Errorf("missing history must read as empty, got %q", head)
	}

	for _, v := range []string{"1.0.0", "1.1.0", "2.0.0"} {
		if err = Prepend(file, v); err != nil {
			t.Fatal(err)
		}
	}

	versions, err := ReadHistory(file)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"2.0.0", "1.1.0", "1.0.0"}
	if !reflect.DeepEqual(versions, want) {
		t.Errorf("history = %v, want %v", versions, want)
	}

	head, err = Head(file)
	if err != nil {
		t.Fatal(err)
	}
	if head != "2.0.0" {
		t.Errorf("head = %q, want 2.0.0", head)
	}
}

func TestPrependDedupesHead(t *testing.T) {
	file := filepath.Join(t.TempDir(), ".dist_history")
	for i := 0; i < 3; i++ {
		if err := Prepend(file, "1.0.0"); err != nil {
			t.Fatal(err)
		}
	}
	versions, err := ReadHistory(file)
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 1 {
		t.Errorf("re-recording the head must not pad the file: %v", versions)
	}
}

func TestLastVersionsViaLayout(t *testing.T) {
	layout := paths.NewLayout(t.TempDir())
	if err := Prepend(layout.InstHistory("demo"), "1.2.0"); err != nil {
		t.Fatal(err)
	}
	if err := Prepend(layout.DistHistory("demo"), "1.3.0"); err != nil {
		t.Fatal(err)
	}

	installed, err := GetLastInstalledVersion(layout, "demo")
	if err != nil {
		t.Fatal(err)
	}
	if installed != "1.2.0" {
		t.Errorf("last installed = %q, want 1.2.0", installed)
	}
	published, err := GetLastPublishedVersion(layout, "demo")
	if err != nil {
		t.Fatal(err)
	}
	if published != "1.3.0" {
		t.Errorf("last published = %q, want 1.3.0", published)
	}
}
