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
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// PrintError is a utility function to emit an error to the console
func PrintError(e error) {
	fmt.Fprintf(os.Stderr, "***Error: %v\n", e)
}

// ReadFileAndSplit tokenizes the given file and converts it into a slice split
// by the newline character.
func ReadFileAndSplit(filename string) ([]string, error) {
	builder, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	data := string(builder)
	lines := strings.Split(data, "\n")

	return lines, nil
}

// CopyFile copies a file, overwriting the destination if it exists.
func CopyFile(dest string, src string) error {
	return copyFileWithFlags(dest, src, os.O_RDWR|os.O_CREATE|os.O_TRUNC)
}

// CopyFileNoOverwrite copies a file only if the destination file does not exist.
func CopyFileNoOverwrite(dest string, src string) error {
	return copyFileWithFlags(dest, src, os.O_RDWR|os.O_CREATE|os.O_EXCL)
}

// copyFileWithFlags General purpose copy file function
func copyFileWithFlags(dest string, src string, flags int) error {
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = source.Close()
	}()

	destination, err := os.OpenFile(dest, flags, 0666)
	if err != nil {
		return err
	}
	defer func() {
		_ = destination.Close()
	}()

	_, err = io.Copy(destination, source)
	if err != nil {
		return err
	}

	err = destination.Sync()
	if err != nil {
		return err
	}

	return nil
}

// CopyTree copies the directory rooted at src to dest recursively,
// overwriting files that already exist. Symlinks are copied as links.
func CopyTree(dest string, src string) error {
	return filepath.Walk(src, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		out := filepath.Join(dest, rel)
		switch {
		case fi.IsDir():
			return os.MkdirAll(out, fi.Mode().Perm())
		case fi.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			_ = os.Remove(out)
			return os.Symlink(link, out)
		default:
			return CopyFile(out, path)
		}
	})
}

// CloneTree replicates only the directory skeleton of src under dest. No
// regular files are copied.
func CloneTree(dest string, src string) error {
	return filepath.Walk(src, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		return os.MkdirAll(filepath.Join(dest, rel), fi.Mode().Perm())
	})
}

// ListTopFiles returns the names of the immediate regular files of dir.
func ListTopFiles(dir string) ([]string, error) {
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// ListTopDirs returns the names of the immediate subdirectories of dir.
func ListTopDirs(dir string) ([]string, error) {
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Download will attempt to download a from URL to the given filename
func Download(filename string, url string) (err error) {
	infile, err := http.Get(url)
	if err != nil {
		return err
	}
	defer func() {
		_ = infile.Body.Close()
	}()

	if infile.StatusCode != http.StatusOK {
		return fmt.Errorf("Get %s replied: %d (%s)", url, infile.StatusCode, http.StatusText(infile.StatusCode))
	}

	out, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	_, copyerr := io.Copy(out, infile.Body)
	if copyerr != nil {
		if err := os.RemoveAll(filename); err != nil {
			return errors.New(copyerr.Error() + err.Error())
		}
		return copyerr
	}

	return nil
}
