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

// Package manifest holds the typed in-memory model of one app release,
// the two wire forms (manifest.json for authoring, manifest.pkl for
// distribution) and the differ that computes the minimum change set
// between two releases.
package manifest

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/depsland/depsland/verspec"
)

// PackageInfo is one pinned third-party dependency of a release.
type PackageInfo struct {
	ID           string   `json:"id" msgpack:"id"`
	Name         string   `json:"name" msgpack:"name"`
	Version      string   `json:"version" msgpack:"version"`
	Dependencies []string `json:"dependencies" msgpack:"dependencies"`
	// CustomURL optionally overrides where the archive is fetched from
	// (the manifest "appendix").
	CustomURL string `json:"custom_url,omitempty" msgpack:"custom_url"`
}

// LauncherInfo is consumed by the launcher emitter; the core treats it as
// opaque configuration.
type LauncherInfo struct {
	Command        string `json:"command" msgpack:"command"`
	Icon           string `json:"icon" msgpack:"icon"`
	ShowConsole    bool   `json:"show_console" msgpack:"show_console"`
	EnableCLI      bool   `json:"enable_cli" msgpack:"enable_cli"`
	AddToDesktop   bool   `json:"add_to_desktop" msgpack:"add_to_desktop"`
	AddToStartMenu bool   `json:"add_to_start_menu" msgpack:"add_to_start_menu"`
}

// Manifest is the immutable snapshot of one release of one app.
type Manifest struct {
	AppID   string `json:"appid" msgpack:"appid"`
	Name    string `json:"name" msgpack:"name"`
	Version string `json:"version" msgpack:"version"`

	// StartDirectory is the absolute path this manifest is rooted at. It
	// is rewritten on every load and never persisted.
	StartDirectory string `json:"-" msgpack:"-"`

	Assets       map[string]*AssetInfo   `json:"assets" msgpack:"assets"`
	Dependencies map[string]*PackageInfo `json:"dependencies" msgpack:"dependencies"`
	Launcher     LauncherInfo            `json:"launcher" msgpack:"launcher"`
}

// SchemaError reports a missing or malformed manifest field.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return "invalid manifest: " + e.Field + ": " + e.Reason
}

var appidPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Init returns the synthetic empty manifest used as the "previous release"
// of a first publish or first install.
func Init(appid, name string) *Manifest {
	return &Manifest{
		AppID:        appid,
		Name:         name,
		Version:      "0.0.0",
		Assets:       map[string]*AssetInfo{},
		Dependencies: map[string]*PackageInfo{},
	}
}

// manifestJSON is the human-authored form: asset values are scheme tokens
// and dependency values are version specifiers.
type manifestJSON struct {
	AppID        string            `json:"appid"`
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Assets       map[string]string `json:"assets"`
	Dependencies map[string]string `json:"dependencies"`
	Launcher     LauncherInfo      `json:"launcher"`
}

// Load reads either wire form, rewrites StartDirectory to the absolute
// parent of the file, enriches missing asset fields by scanning the
// filesystem (authoring form only) and validates all invariants.
func Load(file string) (*Manifest, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, err
	}

	var m *Manifest
	if strings.HasSuffix(abs, ".json") {
		m, err = loadAuthoring(abs)
	} else {
		m, err = loadRelease(abs)
	}
	if err != nil {
		return nil, err
	}

	m.StartDirectory = filepath.Dir(abs)
	if m.Assets == nil {
		m.Assets = map[string]*AssetInfo{}
	}
	if m.Dependencies == nil {
		m.Dependencies = map[string]*PackageInfo{}
	}
	if err = m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func loadAuthoring(file string) (*Manifest, error) {
	data, err := ioutil.ReadFile(file)
	if err != nil {
		return nil, err
	}

	var raw manifestJSON
	if err = json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "couldn't parse %s", file)
	}

	root := filepath.Dir(file)
	m := &Manifest{
		AppID:        raw.AppID,
		Name:         raw.Name,
		Version:      raw.Version,
		Assets:       map[string]*AssetInfo{},
		Dependencies: map[string]*PackageInfo{},
		Launcher:     raw.Launcher,
	}

	for relpath, schemeToken := range raw.Assets {
		scheme, err := ParseScheme(schemeToken)
		if err != nil {
			return nil, &SchemaError{Field: "assets." + relpath, Reason: err.Error()}
		}
		if err = checkRelPath(relpath); err != nil {
			return nil, &SchemaError{Field: "assets." + relpath, Reason: err.Error()}
		}
		info, err := scanAsset(filepath.Join(root, filepath.FromSlash(relpath)), scheme)
		if err != nil {
			return nil, errors.Wrapf(err, "couldn't scan asset %s", relpath)
		}
		m.Assets[relpath] = info
	}

	for name, rawSpec := range raw.Dependencies {
		pkg, err := pinnedPackage(name, rawSpec)
		if err != nil {
			return nil, err
		}
		m.Dependencies[pkg.Name] = pkg
	}

	return m, nil
}

// pinnedPackage requires an exact pin: resolving loose specifiers to pins
// is the job of the external dependency resolver, not the core.
func pinnedPackage(name, rawSpec string) (*PackageInfo, error) {
	specs, err := verspec.ParseSpecs(name, rawSpec)
	if err != nil {
		return nil, &SchemaError{Field: "dependencies." + name, Reason: err.Error()}
	}
	if len(specs) != 1 || specs[0].Comparator != "==" || specs[0].Version == "" {
		return nil, &SchemaError{
			Field:  "dependencies." + name,
			Reason: "version must be pinned exactly (got " + rawSpec + ")",
		}
	}
	normalized := specs[0].Name
	version := specs[0].Version
	return &PackageInfo{
		ID:      verspec.PackageID(normalized, version),
		Name:    normalized,
		Version: version,
	}, nil
}

func loadRelease(file string) (*Manifest, error) {
	data, err := ioutil.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err = msgpack.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "couldn't decode %s", file)
	}
	return &m, nil
}

// Dump writes the release form (manifest.pkl).
func Dump(m *Manifest, file string) error {
	if err := m.Validate(); err != nil {
		return err
	}
	data, err := msgpack.Marshal(m)
	if err != nil {
		return errors.Wrapf(err, "couldn't encode manifest for %s", m.AppID)
	}
	if err = os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return err
	}
	return ioutil.WriteFile(file, data, 0644)
}

func checkRelPath(relpath string) error {
	if relpath == "" {
		return errors.New("empty asset path")
	}
	if filepath.IsAbs(relpath) || strings.HasPrefix(relpath, "/") {
		return errors.New("asset path must be relative")
	}
	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(relpath)))
	if clean != relpath || strings.HasPrefix(clean, "..") {
		return errors.Errorf("asset path %q does not resolve under the start directory", relpath)
	}
	return nil
}

// Validate guarantees all manifest invariants hold.
func (m *Manifest) Validate() error {
	if !appidPattern.MatchString(m.AppID) {
		return &SchemaError{Field: "appid", Reason: "must be lowercase, underscore separated"}
	}
	if m.Name == "" {
		return &SchemaError{Field: "name", Reason: "missing"}
	}
	if _, err := verspec.Parse(m.Version); err != nil {
		return &SchemaError{Field: "version", Reason: err.Error()}
	}

	for relpath, info := range m.Assets {
		if err := checkRelPath(relpath); err != nil {
			return &SchemaError{Field: "assets." + relpath, Reason: err.Error()}
		}
		if info == nil || !info.Type.valid() || !info.Scheme.valid() {
			return &SchemaError{Field: "assets." + relpath, Reason: "malformed asset entry"}
		}
		if info.UID == "" {
			return &SchemaError{Field: "assets." + relpath, Reason: "missing uid"}
		}
		if info.Type == TypeFile && info.Hash == "" {
			return &SchemaError{Field: "assets." + relpath, Reason: "file asset without hash"}
		}
	}

	for name, pkg := range m.Dependencies {
		if pkg == nil || pkg.Version == "" {
			return &SchemaError{Field: "dependencies." + name, Reason: "missing pinned version"}
		}
		if pkg.Name != verspec.NormalizeName(pkg.Name) {
			return &SchemaError{Field: "dependencies." + name, Reason: "package name not normalized"}
		}
		if pkg.ID != verspec.PackageID(pkg.Name, pkg.Version) {
			return &SchemaError{Field: "dependencies." + name, Reason: "id does not match name and version"}
		}
	}
	return nil
}
