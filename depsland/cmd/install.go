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

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/depsland/depsland/api"
)

type installCmdFlags struct {
	force bool
	local string
}

var installFlags installCmdFlags

var installCmd = &cobra.Command{
	Use:   "install <appid>",
	Short: "Install or upgrade an app from the blob store",
	Long: `Install fetches the published manifest of an app, diffs it against
the locally installed release and materializes only what changed. With
--local it installs from a self-contained distribution directory instead.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		env := newEnv()
		if installFlags.local != "" {
			if err := api.InstallLocal(env, installFlags.local, installFlags.force); err != nil {
				fail(err)
			}
			return
		}
		if len(args) != 1 {
			failf("install needs an appid unless --local is given")
		}
		if err := api.InstallByAppID(env, args[0], installFlags.force); err != nil {
			fail(err)
		}
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <appid> [version]",
	Short: "Remove an installed app release",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		env := newEnv()
		version := ""
		if len(args) == 2 {
			version = args[1]
		}
		if err := api.Uninstall(env, args[0], version); err != nil {
			fail(err)
		}
	},
}

func init() {
	RootCmd.AddCommand(installCmd)
	RootCmd.AddCommand(uninstallCmd)

	installCmd.Flags().BoolVar(&installFlags.force, "force", false, "Reinstall even when the release is already installed")
	installCmd.Flags().StringVar(&installFlags.local, "local", "", "Install from a distribution directory carrying its own .oss store")
}
