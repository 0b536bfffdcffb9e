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

package oss

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/depsland/depsland/helpers"
	"github.com/depsland/depsland/log"
)

// Local is a blob store backed by a directory that mimics the remote key
// layout. With symlinks enabled, upload and download link instead of copy.
type Local struct {
	root     string
	keys     Keys
	symlinks bool
	typ      string
}

// NewLocal creates a local store for appid rooted at root.
func NewLocal(root, appid string, symlinks bool) (*Local, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}
	return &Local{root: root, keys: Keys{AppID: appid}, symlinks: symlinks, typ: "local"}, nil
}

// NewFake creates a test-double store under root. It behaves exactly like
// the local store but is kept apart so tests never collide with real data.
func NewFake(root, appid string, symlinks bool) (*Local, error) {
	l, err := NewLocal(root, appid, symlinks)
	if err != nil {
		return nil, err
	}
	l.typ = "fake"
	return l, nil
}

func (l *Local) Type() string { return l.typ }
func (l *Local) Keys() Keys   { return l.keys }

// Root exposes the backing directory, used when a distribution carries a
// colocated ".oss" store.
func (l *Local) Root() string { return l.root }

func (l *Local) blobPath(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

func (l *Local) Upload(localFile, key string) error {
	dst := l.blobPath(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if err := l.transfer(localFile, dst); err != nil {
		return errors.Wrapf(err, "couldn't upload %s to %s", localFile, key)
	}
	log.Debug(log.Oss, "upload done (%s)", filepath.Base(localFile))
	return nil
}

func (l *Local) Download(key, localFile string) error {
	src := l.blobPath(key)
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return &BlobNotFoundError{Key: key}
	}
	if err := os.MkdirAll(filepath.Dir(localFile), 0755); err != nil {
		return err
	}
	if err := l.transfer(src, localFile); err != nil {
		return errors.Wrapf(err, "couldn't download %s to %s", key, localFile)
	}
	log.Debug(log.Oss, "download done (%s)", filepath.Base(localFile))
	return nil
}

func (l *Local) Delete(key string) error {
	if err := os.Remove(l.blobPath(key)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "couldn't delete %s", key)
	}
	log.Debug(log.Oss, "delete done (%s)", key)
	return nil
}

func (l *Local) transfer(src, dst string) error {
	if l.symlinks {
		if real, err := filepath.EvalSymlinks(dst); err == nil {
			if realSrc, serr := filepath.EvalSymlinks(src); serr == nil && real == realSrc {
				return nil
			}
		}
		_ = os.Remove(dst)
		abs, err := filepath.Abs(src)
		if err != nil {
			return err
		}
		return os.Symlink(abs, dst)
	}
	return helpers.CopyFile(dst, src)
}
