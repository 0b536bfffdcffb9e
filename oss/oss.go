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

// Package oss abstracts the blob store behind the publish/install
// pipeline: a flat key→bytes namespace with upload, download and delete.
// Three implementations exist: a remote HTTP object store, a local
// directory mirroring the remote layout, and a fake store for tests.
package oss

import "fmt"

// Client is the blob store adapter. Keys are slash separated and flat;
// implementations must not interpret them beyond path mapping. No retry
// logic lives at this layer.
type Client interface {
	// Type identifies the implementation: "remote", "local" or "fake".
	Type() string
	// Keys returns the key layout bound to this client's app.
	Keys() Keys
	Upload(localFile, key string) error
	Download(key, localFile string) error
	Delete(key string) error
}

// Keys builds the blob key space for one app:
//
//	apps/<appid>/manifest.pkl
//	apps/<appid>/assets/<uid>
//	apps/<appid>/pypi/<package_id>
type Keys struct {
	AppID string
}

func (k Keys) Manifest() string {
	return fmt.Sprintf("apps/%s/manifest.pkl", k.AppID)
}

func (k Keys) Asset(uid string) string {
	return fmt.Sprintf("apps/%s/assets/%s", k.AppID, uid)
}

func (k Keys) Package(packageID string) string {
	return fmt.Sprintf("apps/%s/pypi/%s", k.AppID, packageID)
}

// BlobNotFoundError reports a download of a key that does not exist.
type BlobNotFoundError struct {
	Key string
}

func (e *BlobNotFoundError) Error() string {
	return fmt.Sprintf("blob not found: %s", e.Key)
}
