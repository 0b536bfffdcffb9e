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
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/depsland/depsland/config"
	"github.com/depsland/depsland/log"
)

// Remote talks to an HTTP object store. Keys map straight onto URL paths
// under the bucket: <endpoint>/<bucket>/<key>.
type Remote struct {
	endpoint string
	bucket   string
	access   string
	secret   string
	keys     Keys
	client   *http.Client
}

// NewRemote builds a remote client for appid from the credential file
// settings.
func NewRemote(creds *config.OssCredentials, appid string) (*Remote, error) {
	if creds == nil || creds.Endpoint == "" {
		return nil, errors.New("remote oss requires an endpoint in the credentials file")
	}
	return &Remote{
		endpoint: strings.TrimRight(creds.Endpoint, "/"),
		bucket:   creds.Bucket,
		access:   creds.AccessKey,
		secret:   creds.SecretKey,
		keys:     Keys{AppID: appid},
		client:   &http.Client{},
	}, nil
}

func (r *Remote) Type() string { return "remote" }
func (r *Remote) Keys() Keys   { return r.keys }

func (r *Remote) url(key string) string {
	if r.bucket == "" {
		return fmt.Sprintf("%s/%s", r.endpoint, key)
	}
	return fmt.Sprintf("%s/%s/%s", r.endpoint, r.bucket, key)
}

func (r *Remote) do(req *http.Request) (*http.Response, error) {
	if r.access != "" {
		req.SetBasicAuth(r.access, r.secret)
	}
	return r.client.Do(req)
}

func (r *Remote) Upload(localFile, key string) error {
	f, err := os.Open(localFile)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	fi, err := f.Stat()
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPut, r.url(key), f)
	if err != nil {
		return err
	}
	req.ContentLength = fi.Size()
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := r.do(req)
	if err != nil {
		return errors.Wrapf(err, "couldn't upload %s to %s", localFile, key)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("Put %s replied: %d (%s)", key, resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	log.Debug(log.Oss, "upload done (%s)", filepath.Base(localFile))
	return nil
}

func (r *Remote) Download(key, localFile string) error {
	req, err := http.NewRequest(http.MethodGet, r.url(key), nil)
	if err != nil {
		return err
	}
	resp, err := r.do(req)
	if err != nil {
		return errors.Wrapf(err, "couldn't download %s", key)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return &BlobNotFoundError{Key: key}
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("Get %s replied: %d (%s)", key, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if err = os.MkdirAll(filepath.Dir(localFile), 0755); err != nil {
		return err
	}
	out, err := os.Create(localFile)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	if _, err = io.Copy(out, resp.Body); err != nil {
		_ = os.Remove(localFile)
		return errors.Wrapf(err, "couldn't write %s", localFile)
	}
	log.Debug(log.Oss, "download done (%s)", filepath.Base(localFile))
	return nil
}

func (r *Remote) Delete(key string) error {
	req, err := http.NewRequest(http.MethodDelete, r.url(key), nil)
	if err != nil {
		return err
	}
	resp, err := r.do(req)
	if err != nil {
		return errors.Wrapf(err, "couldn't delete %s", key)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent &&
		resp.StatusCode != http.StatusNotFound {
		return errors.Errorf("Delete %s replied: %d (%s)", key, resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	log.Debug(log.Oss, "delete done (%s)", key)
	return nil
}
