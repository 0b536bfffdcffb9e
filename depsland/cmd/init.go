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
	"github.com/depsland/depsland/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a depsland project root in the current directory",
	Long: `Init writes a default depsland.toml and creates the project
directory skeleton. Existing configuration is left untouched.`,
	Run: func(cmd *cobra.Command, args []string) {
		var cfg config.DepslandConfig
		if err := cfg.CreateDefaultConfig(); err != nil {
			fail(err)
		}
		if err := cfg.LoadConfig(configFile); err != nil {
			fail(err)
		}
		if _, err := api.NewEnv(&cfg); err != nil {
			fail(err)
		}
	},
}

func init() {
	RootCmd.AddCommand(initCmd)
}
