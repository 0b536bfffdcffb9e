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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/depsland/depsland/pypi"
)

var rebuildIndexCmd = &cobra.Command{
	Use:   "rebuild-pypi-index",
	Short: "Re-derive the package index from the downloads and installed trees",
	Long: `Rebuild discards the index data files and scans the shared package
store to regenerate them. Use it after manual edits to the store or when
the index files are corrupt.`,
	Run: func(cmd *cobra.Command, args []string) {
		env := newEnv()
		idx, err := pypi.Load(env.Layout)
		if err != nil {
			fail(err)
		}
		if err = idx.Rebuild(); err != nil {
			fail(err)
		}
		if err = idx.Save(); err != nil {
			fail(err)
		}
	},
}

var listIndexCmd = &cobra.Command{
	Use:   "list-pypi-index",
	Short: "Print every package id the index knows about",
	Run: func(cmd *cobra.Command, args []string) {
		env := newEnv()
		idx, err := pypi.Load(env.Layout)
		if err != nil {
			fail(err)
		}
		for _, id := range idx.IDs() {
			fmt.Println(id)
		}
	},
}

func init() {
	RootCmd.AddCommand(rebuildIndexCmd)
	RootCmd.AddCommand(listIndexCmd)
}
