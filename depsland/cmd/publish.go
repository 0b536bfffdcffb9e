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

var publishCmd = &cobra.Command{
	Use:   "publish <manifest.json>",
	Short: "Publish a release described by a manifest file",
	Long: `Publish diffs the manifest against the last published release and
uploads only the changed assets and dependencies to the blob store.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		env := newEnv()
		if err := api.Publish(env, args[0]); err != nil {
			fail(err)
		}
	},
}

func init() {
	RootCmd.AddCommand(publishCmd)
}
