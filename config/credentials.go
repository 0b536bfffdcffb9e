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

package config

import (
	"github.com/go-ini/ini"
	"github.com/pkg/errors"
)

// OssCredentials holds the remote blob store endpoint settings, read from
// an INI file so that secrets stay out of depsland.toml.
//
//	[Oss]
//	endpoint=https://oss.example.com
//	bucket=depsland
//	access_key=...
//	secret_key=...
type OssCredentials struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
}

// LoadOssCredentials reads the credentials INI file.
func LoadOssCredentials(filename string) (*OssCredentials, error) {
	cfg, err := ini.Load(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't read oss credentials from %s", filename)
	}

	section := cfg.Section("Oss")
	creds := &OssCredentials{
		Endpoint:  section.Key("endpoint").String(),
		Bucket:    section.Key("bucket").String(),
		AccessKey: section.Key("access_key").String(),
		SecretKey: section.Key("secret_key").String(),
	}
	if creds.Endpoint == "" {
		return nil, errors.Errorf("oss credentials file %s is missing the endpoint key", filename)
	}
	return creds, nil
}
