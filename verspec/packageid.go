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

package verspec

import (
	"strings"

	"github.com/pkg/errors"
)

// PackageID builds the canonical "{name}-{version}" identifier.
func PackageID(name, version string) string {
	return NormalizeName(name) + "-" + version
}

// SplitID splits a package id back into its name and version. Normalized
// names carry no hyphens, so the first hyphen is the separator.
func SplitID(id string) (name, version string, err error) {
	i := strings.Index(id, "-")
	if i <= 0 || i == len(id)-1 {
		return "", "", errors.Errorf("malformed package id %q", id)
	}
	return id[:i], id[i+1:], nil
}

// SplitPackageFilename extracts the normalized name and version from a
// downloaded archive filename.
//
//	'PyYAML-6.0-cp310-cp310-macosx_10_9_x86_64.whl' -> ('pyyaml', '6.0')
//	'lk-logger-4.0.7.tar.gz'                        -> ('lk_logger', '4.0.7')
//	'aliyun-python-sdk-2.2.0.zip'                   -> ('aliyun_python_sdk', '2.2.0')
func SplitPackageFilename(filename string) (name, version string, err error) {
	stem := filename
	ext := ""
	for _, e := range []string{".whl", ".tar.gz", ".zip"} {
		if strings.HasSuffix(stem, e) {
			stem = strings.TrimSuffix(stem, e)
			ext = e
			break
		}
	}
	if ext == "" {
		return "", "", errors.Errorf("unrecognized package archive %q", filename)
	}

	if ext == ".whl" {
		// wheel: name-version-<build/python/abi/platform tags>
		parts := strings.SplitN(stem, "-", 3)
		if len(parts) < 2 {
			return "", "", errors.Errorf("malformed wheel filename %q", filename)
		}
		name, version = parts[0], parts[1]
	} else {
		// sdist: name-version
		i := strings.LastIndex(stem, "-")
		if i <= 0 || i == len(stem)-1 {
			return "", "", errors.Errorf("malformed sdist filename %q", filename)
		}
		name, version = stem[:i], stem[i+1:]
	}
	return NormalizeName(name), version, nil
}
