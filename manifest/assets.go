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
	"fmt"
	"os"
	"strconv"
)

// AssetType distinguishes file and directory assets.
type AssetType string

const (
	TypeFile AssetType = "file"
	TypeDir  AssetType = "dir"
)

func (t AssetType) valid() bool {
	return t == TypeFile || t == TypeDir
}

// Scheme describes which parts of a directory asset are packaged and
// restored. Files always travel whole; the scheme only matters for dirs.
type Scheme string

const (
	// SchemeRoot marks a pure mount point: the directory is created on
	// install but its contents are never packaged (output/cache dirs).
	SchemeRoot Scheme = "root"
	// SchemeAll packages the entire tree recursively.
	SchemeAll Scheme = "all"
	// SchemeAllDirs packages only the directory skeleton.
	SchemeAllDirs Scheme = "all_dirs"
	// SchemeTop packages immediate files plus one-level subdir skeletons.
	SchemeTop Scheme = "top"
	// SchemeTopFiles packages only immediate files.
	SchemeTopFiles Scheme = "top_files"
	// SchemeTopDirs packages only immediate subdir names.
	SchemeTopDirs Scheme = "top_dirs"
)

func (s Scheme) valid() bool {
	switch s {
	case SchemeRoot, SchemeAll, SchemeAllDirs, SchemeTop, SchemeTopFiles, SchemeTopDirs:
		return true
	}
	return false
}

// ParseScheme validates a scheme token from the authoring form.
func ParseScheme(raw string) (Scheme, error) {
	s := Scheme(raw)
	if !s.valid() {
		return "", fmt.Errorf("invalid asset scheme: %q", raw)
	}
	return s, nil
}

// AssetInfo is one entry of the manifest's asset mapping.
//
// UID is the content identifier used as the blob key suffix: the file hash
// for files, the mtime rendered as a decimal string for directories.
// Directory assets are therefore re-packaged whenever any mtime changes;
// this trades precision for cheap scanning and is part of the contract.
type AssetInfo struct {
	Type        AssetType `json:"type" msgpack:"type"`
	Scheme      Scheme    `json:"scheme" msgpack:"scheme"`
	UpdatedTime int64     `json:"updated_time" msgpack:"updated_time"`
	Hash        string    `json:"hash" msgpack:"hash"`
	UID         string    `json:"uid" msgpack:"uid"`
}

// Same reports whether two asset entries describe identical content. The
// differ treats assets with equal (type, scheme, uid) as unchanged.
func (a *AssetInfo) Same(b *AssetInfo) bool {
	return a.Type == b.Type && a.Scheme == b.Scheme && a.UID == b.UID
}

// scanAsset builds a fully populated AssetInfo by statting absPath.
func scanAsset(absPath string, scheme Scheme) (*AssetInfo, error) {
	fi, err := os.Stat(absPath)
	if err != nil {
		return nil, err
	}

	info := &AssetInfo{
		Scheme:      scheme,
		UpdatedTime: fi.ModTime().Unix(),
	}
	if fi.IsDir() {
		info.Type = TypeDir
		info.UID = strconv.FormatInt(info.UpdatedTime, 10)
	} else {
		info.Type = TypeFile
		if info.Hash, err = HashFile(absPath); err != nil {
			return nil, err
		}
		info.UID = info.Hash
	}
	return info, nil
}
