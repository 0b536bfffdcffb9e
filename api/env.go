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

// Package api implements the end-to-end operations of depsland: publishing
// a release to the blob store and installing, upgrading or removing one on
// a target machine.
package api

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/depsland/depsland/config"
	"github.com/depsland/depsland/oss"
	"github.com/depsland/depsland/paths"
)

// Env bundles the loaded configuration with the project root layout that
// every operation works against.
type Env struct {
	Config *config.DepslandConfig
	Layout *paths.Layout
}

// NewEnv builds an Env from a loaded configuration and creates the project
// skeleton.
func NewEnv(cfg *config.DepslandConfig) (*Env, error) {
	layout := paths.NewLayout(cfg.Project.Root)
	if err := layout.EnsureDirs(); err != nil {
		return nil, err
	}
	return &Env{Config: cfg, Layout: layout}, nil
}

// OssClient constructs the blob store client selected by the configuration,
// bound to one app.
func (e *Env) OssClient(appid string) (oss.Client, error) {
	switch e.Config.Oss.Server {
	case "remote":
		creds, err := config.LoadOssCredentials(e.Config.Oss.Credentials)
		if err != nil {
			return nil, err
		}
		return oss.NewRemote(creds, appid)
	case "local":
		return oss.NewLocal(e.Layout.Oss(), appid, e.Config.Oss.Symlinks)
	case "fake":
		return oss.NewFake(e.Layout.OssTest(), appid, e.Config.Oss.Symlinks)
	}
	return nil, errors.Errorf("unknown oss server type %q", e.Config.Oss.Server)
}

// AppIDMismatchError reports a manifest whose appid contradicts the release
// history it is being applied against.
type AppIDMismatchError struct {
	Expected string
	Got      string
}

func (e *AppIDMismatchError) Error() string {
	return fmt.Sprintf("appid mismatch: history belongs to %q, manifest says %q", e.Expected, e.Got)
}

// VersionNotIncreasingError reports a publish or install whose version does
// not move forward.
type VersionNotIncreasingError struct {
	Current  string
	Proposed string
}

func (e *VersionNotIncreasingError) Error() string {
	return fmt.Sprintf("version %s does not increase over the current %s", e.Proposed, e.Current)
}

// TargetExistsError reports an install target directory that already holds
// content not owned by the current head version.
type TargetExistsError struct {
	Dir string
}

func (e *TargetExistsError) Error() string {
	return fmt.Sprintf("install target %s already exists; remove it or reinstall with force", e.Dir)
}
