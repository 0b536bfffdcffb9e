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

import "sort"

// Action classifies one entry of a manifest diff.
type Action string

const (
	Append Action = "append"
	Update Action = "update"
	Delete Action = "delete"
	Ignore Action = "ignore"
)

// AssetChange is one asset-level entry of a diff. Old is nil for appends,
// New is nil for deletes.
type AssetChange struct {
	Action Action
	Key    string
	Old    *AssetInfo
	New    *AssetInfo
}

// PackageChange is one dependency-level entry of a diff, keyed by
// normalized package name. An Update covers "same name, different version".
type PackageChange struct {
	Action Action
	Key    string
	Old    *PackageInfo
	New    *PackageInfo
}

// DiffResult holds the full change set between two releases. Every asset
// and dependency of new ∪ old appears exactly once, sorted by key so that
// publish logs are reproducible.
type DiffResult struct {
	Assets       []AssetChange
	Dependencies []PackageChange
}

// Diff computes the minimum change set to go from old to new.
func Diff(new, old *Manifest) *DiffResult {
	return &DiffResult{
		Assets:       diffAssets(new.Assets, old.Assets),
		Dependencies: diffDependencies(new.Dependencies, old.Dependencies),
	}
}

func diffAssets(new, old map[string]*AssetInfo) []AssetChange {
	var changes []AssetChange
	for _, key := range unionKeys(assetKeys(new), assetKeys(old)) {
		oldInfo, inOld := old[key]
		newInfo, inNew := new[key]
		switch {
		case !inNew:
			changes = append(changes, AssetChange{Delete, key, oldInfo, nil})
		case !inOld:
			changes = append(changes, AssetChange{Append, key, nil, newInfo})
		case newInfo.Same(oldInfo):
			changes = append(changes, AssetChange{Ignore, key, oldInfo, newInfo})
		default:
			changes = append(changes, AssetChange{Update, key, oldInfo, newInfo})
		}
	}
	return changes
}

func diffDependencies(new, old map[string]*PackageInfo) []PackageChange {
	var changes []PackageChange
	for _, key := range unionKeys(packageKeys(new), packageKeys(old)) {
		oldInfo, inOld := old[key]
		newInfo, inNew := new[key]
		switch {
		case !inNew:
			changes = append(changes, PackageChange{Delete, key, oldInfo, nil})
		case !inOld:
			changes = append(changes, PackageChange{Append, key, nil, newInfo})
		case newInfo.ID == oldInfo.ID:
			changes = append(changes, PackageChange{Ignore, key, oldInfo, newInfo})
		default:
			changes = append(changes, PackageChange{Update, key, oldInfo, newInfo})
		}
	}
	return changes
}

func assetKeys(m map[string]*AssetInfo) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func packageKeys(m map[string]*PackageInfo) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func unionKeys(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var union []string
	for _, k := range append(a, b...) {
		if !seen[k] {
			seen[k] = true
			union = append(union, k)
		}
	}
	sort.Strings(union)
	return union
}
