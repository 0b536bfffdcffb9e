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

package helpers

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// CompressDir archives the tree rooted at dirI into the zip file fileO.
// Entry names are relative to dirI, so extracting into a target directory
// reproduces the tree without an extra top-level folder.
func CompressDir(dirI string, fileO string) (err error) {
	out, err := os.Create(fileO)
	if err != nil {
		return err
	}
	defer func() {
		cerr := out.Close()
		if err == nil {
			err = cerr
		}
	}()

	zw := zip.NewWriter(out)
	err = filepath.Walk(dirI, func(path string, fi os.FileInfo, werr error) error {
		if werr != nil {
			return werr
		}
		rel, rerr := filepath.Rel(dirI, path)
		if rerr != nil {
			return rerr
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if fi.IsDir() {
			_, herr := zw.Create(rel + "/")
			return herr
		}
		w, herr := zw.Create(rel)
		if herr != nil {
			return herr
		}
		in, oerr := os.Open(path)
		if oerr != nil {
			return oerr
		}
		_, cerr := io.Copy(w, in)
		_ = in.Close()
		return cerr
	})
	if err != nil {
		_ = zw.Close()
		return errors.Wrapf(err, "couldn't compress directory %s", dirI)
	}
	return zw.Close()
}

// CompressFile archives a single file. A ".fzip" destination is written as
// raw bytes since a single file does not benefit from zip framing; any other
// destination gets a one-entry zip archive.
func CompressFile(fileI string, fileO string) error {
	if strings.HasSuffix(fileO, ".fzip") {
		return CopyFile(fileO, fileI)
	}

	out, err := os.Create(fileO)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(out)
	w, err := zw.Create(filepath.Base(fileI))
	if err == nil {
		var in *os.File
		if in, err = os.Open(fileI); err == nil {
			_, err = io.Copy(w, in)
			_ = in.Close()
		}
	}
	if err != nil {
		_ = zw.Close()
		_ = out.Close()
		return errors.Wrapf(err, "couldn't compress file %s", fileI)
	}
	if err = zw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// UnzipFile extracts the zip archive fileI into the directory dirO,
// creating it if needed. Existing files are overwritten.
func UnzipFile(fileI string, dirO string) error {
	zr, err := zip.OpenReader(fileI)
	if err != nil {
		return errors.Wrapf(err, "couldn't open archive %s", fileI)
	}
	defer func() {
		_ = zr.Close()
	}()

	if err = os.MkdirAll(dirO, 0755); err != nil {
		return err
	}

	for _, f := range zr.File {
		name := filepath.FromSlash(f.Name)
		if strings.Contains(name, "..") {
			return errors.Errorf("archive %s has an unsafe entry %q", fileI, f.Name)
		}
		out := filepath.Join(dirO, name)

		if f.FileInfo().IsDir() {
			if err = os.MkdirAll(out, 0755); err != nil {
				return err
			}
			continue
		}

		if err = os.MkdirAll(filepath.Dir(out), 0755); err != nil {
			return err
		}
		rc, oerr := f.Open()
		if oerr != nil {
			return errors.Wrapf(oerr, "couldn't read entry %s of %s", f.Name, fileI)
		}
		of, oerr := os.OpenFile(out, os.O_CREATE|os.O_RDWR|os.O_TRUNC, f.Mode().Perm()|0200)
		if oerr != nil {
			_ = rc.Close()
			return errors.Wrapf(oerr, "couldn't unpack entry %s", out)
		}
		_, cerr := io.Copy(of, rc)
		_ = rc.Close()
		_ = of.Close()
		if cerr != nil {
			return errors.Wrapf(cerr, "couldn't unpack entry %s", out)
		}
	}
	return nil
}
