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

// Package verspec implements the name and version algebra used across the
// publish/install pipeline: package name normalization, PEP-440 style
// version specifiers, semantic version comparison and best-match selection.
package verspec

import (
	"regexp"
	"sort"
	"strings"

	"github.com/coreos/go-semver/semver"
	"github.com/pkg/errors"
)

// Spec is a single (comparator, version) constraint for a package.
// An empty Version with an empty Comparator matches any version.
type Spec struct {
	Name       string
	Version    string
	Comparator string // ">", ">=", "==", "<=", "<", "!=", ""
}

func (s Spec) String() string {
	return s.Name + s.Comparator + s.Version
}

// NormalizeName maps a raw distribution name to its canonical form,
// e.g. 'lk-logger' -> 'lk_logger', 'PySide6' -> 'pyside6'.
func NormalizeName(raw string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_")
}

var (
	compAndVerPattern = regexp.MustCompile(`^([<>=!~]*)(.+)$`)
	asteriskPattern   = regexp.MustCompile(`^((?:\d+\.)+)\*$`)
	minorFormPattern  = regexp.MustCompile(`(\d)([a-zA-Z]+)(\d+)`)
)

// ParseSpecs expands a raw version specifier into its constraint list.
//
//	"4.5.3"      -> [==4.5.3]
//	">=4.5,<5.0" -> [>=4.5, <5.0]
//	"==4.3.*"    -> [>=4.3.0, <4.4.0]
//	"~=1.4.5"    -> [>=1.4.5, <1.5.0]
//	"latest"     -> [<any>]
func ParseSpecs(name, raw string) ([]Spec, error) {
	name = NormalizeName(name)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []Spec{{Name: name}}, nil
	}

	var specs []Spec
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		m := compAndVerPattern.FindStringSubmatch(part)
		if m == nil {
			return nil, errors.Errorf("invalid version specifier %q for %s", part, name)
		}
		comp, ver := m[1], m[2]
		if comp == "" {
			comp = "=="
		}

		switch {
		case ver == "latest" || ver == "any" || ver == "*":
			if comp != "==" {
				return nil, errors.Errorf("invalid version specifier %q for %s", part, name)
			}
			specs = append(specs, Spec{Name: name})

		case strings.Contains(ver, "*"):
			lo, hi, err := expandAsterisk(ver)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid version specifier %q for %s", part, name)
			}
			if comp != "==" && comp != ">=" {
				return nil, errors.Errorf("comparator %q cannot take an asterisk version", comp)
			}
			specs = append(specs,
				Spec{Name: name, Version: lo, Comparator: ">="},
				Spec{Name: name, Version: hi, Comparator: "<"})

		case comp == "~=":
			lo, hi, err := expandCompatible(ver)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid version specifier %q for %s", part, name)
			}
			specs = append(specs,
				Spec{Name: name, Version: lo, Comparator: ">="},
				Spec{Name: name, Version: hi, Comparator: "<"})

		default:
			if !validComparator(comp) {
				return nil, errors.Errorf("unknown comparator %q in %q", comp, part)
			}
			specs = append(specs, Spec{Name: name, Version: ver, Comparator: comp})
		}
	}
	return specs, nil
}

func validComparator(comp string) bool {
	switch comp {
	case ">", ">=", "==", "<=", "<", "!=", "":
		return true
	}
	return false
}

// expandAsterisk turns "4.*" into (">=4.0.0", "<5.0.0") and "4.3.*" into
// (">=4.3.0", "<4.4.0"). The asterisk may only sit in the minor or patch
// position.
func expandAsterisk(ver string) (lo string, hi string, err error) {
	m := asteriskPattern.FindStringSubmatch(ver)
	if m == nil {
		return "", "", errors.Errorf("asterisk must be in minor or patch position: %q", ver)
	}
	bottom, err := Parse(strings.TrimSuffix(ver, "*") + "0")
	if err != nil {
		return "", "", err
	}
	bumped := *bottom
	if strings.Count(m[1], ".") == 1 {
		bumped.BumpMajor()
	} else {
		bumped.BumpMinor()
	}
	return bottom.String(), bumped.String(), nil
}

// expandCompatible implements the "~=" compatible-release clause.
func expandCompatible(ver string) (lo string, hi string, err error) {
	if strings.Count(ver, ".") < 1 {
		return "", "", errors.Errorf("compatible release clause needs at least two components: %q", ver)
	}
	bottom, err := Parse(ver)
	if err != nil {
		return "", "", err
	}
	bumped := *bottom
	if strings.Count(ver, ".") == 1 {
		bumped.BumpMajor()
	} else {
		bumped.BumpMinor()
	}
	return ver, bumped.String(), nil
}

// minorFixVersionForm rewrites pre-release tags glued to the release
// segment into semver form, e.g. '0.1.0b3' -> '0.1.0-b.3'.
func minorFixVersionForm(raw string) string {
	if minorFormPattern.MatchString(raw) {
		raw = minorFormPattern.ReplaceAllString(raw, "$1-$2.$3")
	}
	return raw
}

// Parse reads a version string, tolerating short forms ('6.0') and glued
// pre-release tags ('0.1.0b3').
func Parse(ver string) (*semver.Version, error) {
	fixed := minorFixVersionForm(strings.TrimSpace(ver))

	// Pad the release segment to three components so that short forms
	// like '6.0' coming from archive filenames parse.
	release := fixed
	rest := ""
	if i := strings.IndexAny(fixed, "-+"); i >= 0 {
		release, rest = fixed[:i], fixed[i:]
	}
	for strings.Count(release, ".") < 2 {
		release += ".0"
	}

	v, err := semver.NewVersion(release + rest)
	if err != nil {
		return nil, errors.Wrapf(err, "unsupported version form %q", ver)
	}
	return v, nil
}

// Compare reports whether "v0 <comparator> v1" holds.
func Compare(v0, comparator, v1 string) (bool, error) {
	a, err := Parse(v0)
	if err != nil {
		return false, err
	}
	b, err := Parse(v1)
	if err != nil {
		return false, err
	}

	var r int
	switch {
	case a.LessThan(*b):
		r = -1
	case b.LessThan(*a):
		r = 1
	}

	switch comparator {
	case ">":
		return r > 0, nil
	case ">=":
		return r >= 0, nil
	case "==", "":
		return r == 0, nil
	case "<=":
		return r <= 0, nil
	case "<":
		return r < 0, nil
	case "!=":
		return r != 0, nil
	}
	return false, errors.Errorf("unknown comparator %q", comparator)
}

// Satisfies reports whether the candidate version meets the constraint.
// An empty spec matches everything.
func (s Spec) Satisfies(candidate string) (bool, error) {
	if s.Version == "" && s.Comparator == "" {
		return true, nil
	}
	return Compare(candidate, s.Comparator, s.Version)
}

// SortVersions orders versions in place, newest first when desc is set.
// The tokens "", "*" and "latest" sort as positive infinity.
func SortVersions(versions []string, desc bool) {
	keys := make(map[string]*semver.Version, len(versions))
	infinite := func(v string) bool {
		return v == "" || v == "*" || v == "latest"
	}
	for _, v := range versions {
		if infinite(v) {
			continue
		}
		if parsed, err := Parse(v); err == nil {
			keys[v] = parsed
		}
	}
	less := func(i, j int) bool {
		vi, vj := versions[i], versions[j]
		ki, kj := keys[vi], keys[vj]
		switch {
		case infinite(vi):
			return infinite(vj) && vi < vj
		case infinite(vj):
			return true
		case ki == nil || kj == nil:
			// unparseable versions sink to the oldest end
			if (ki == nil) != (kj == nil) {
				return kj != nil
			}
			return vi < vj
		default:
			return ki.LessThan(*kj)
		}
	}
	if desc {
		sort.SliceStable(versions, func(i, j int) bool { return less(j, i) })
	} else {
		sort.SliceStable(versions, less)
	}
}

// FindProperVersion intersects the candidates with every spec and returns
// the newest survivor. Candidates must be sorted newest first. It returns
// false when the intersection is empty.
func FindProperVersion(specs []Spec, candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	survivors := candidates
	for _, spec := range specs {
		var kept []string
		for _, c := range survivors {
			ok, err := spec.Satisfies(c)
			if err != nil {
				continue
			}
			if ok {
				kept = append(kept, c)
			}
		}
		if len(kept) == 0 {
			return "", false
		}
		survivors = kept
	}
	return survivors[0], true
}
