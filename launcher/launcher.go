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

// Package launcher turns the launcher section of a manifest into runnable
// entry scripts: one inside the installed app tree, plus an optional copy
// in apps/.bin when the app exposes a CLI.
package launcher

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"

	"github.com/depsland/depsland/log"
	"github.com/depsland/depsland/manifest"
	"github.com/depsland/depsland/paths"
)

// scriptSuffix is the platform flavor of the emitted scripts.
func scriptSuffix() string {
	if runtime.GOOS == "windows" {
		return ".bat"
	}
	return ".sh"
}

// Emit writes the launcher scripts for one installed release. Desktop and
// start menu shortcuts are recorded in the manifest but not handled here;
// they need platform shell integration that the core does not carry.
func Emit(layout *paths.Layout, m *manifest.Manifest) error {
	if m.Launcher.Command == "" {
		return nil
	}

	appDir := layout.AppVersion(m.AppID, m.Version)
	venvDir := layout.VenvApp(m.AppID, m.Version)
	script := filepath.Join(appDir, m.AppID+scriptSuffix())

	if err := ioutil.WriteFile(script, renderScript(appDir, venvDir, &m.Launcher), 0755); err != nil {
		return err
	}
	log.Info(log.Launcher, "wrote launcher script %s", script)

	if m.Launcher.EnableCLI {
		entry := layout.BinEntry(m.AppID, scriptSuffix())
		if err := os.MkdirAll(filepath.Dir(entry), 0755); err != nil {
			return err
		}
		_ = os.Remove(entry)
		if err := os.Symlink(script, entry); err != nil {
			return err
		}
		log.Info(log.Launcher, "exposed CLI entry %s", entry)
	}

	if m.Launcher.AddToDesktop {
		log.Warning(log.Launcher, "desktop shortcuts are not supported on this platform, skipping")
	}
	if m.Launcher.AddToStartMenu {
		log.Warning(log.Launcher, "start menu shortcuts are not supported on this platform, skipping")
	}
	return nil
}

// Remove deletes the CLI entry of an app, if any. Used by uninstall.
func Remove(layout *paths.Layout, appid string) {
	for _, suffix := range []string{".sh", ".bat"} {
		_ = os.Remove(layout.BinEntry(appid, suffix))
	}
}

func renderScript(appDir, venvDir string, info *manifest.LauncherInfo) []byte {
	if runtime.GOOS == "windows" {
		return []byte(fmt.Sprintf("@echo off\r\n"+
			"cd /d \"%s\"\r\n"+
			"set PYTHONPATH=%s;%%PYTHONPATH%%\r\n"+
			"%s %%*\r\n", appDir, venvDir, info.Command))
	}
	return []byte(fmt.Sprintf("#!/bin/sh\n"+
		"cd \"%s\" || exit 1\n"+
		"export PYTHONPATH=\"%s${PYTHONPATH:+:$PYTHONPATH}\"\n"+
		"exec %s \"$@\"\n", appDir, venvDir, info.Command))
}
