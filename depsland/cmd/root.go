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
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/depsland/depsland/api"
	"github.com/depsland/depsland/config"
	"github.com/depsland/depsland/helpers"
	"github.com/depsland/depsland/log"
)

// Version of Depsland. Also used by the Makefile for releases.
const Version = "0.3.0"

var configFile string

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:  "depsland",
	Long: `Depsland distributes desktop apps with shared, incrementally updated dependencies.`,
	Run: func(cmd *cobra.Command, args []string) {
		if rootCmdFlags.version {
			fmt.Printf("Depsland %s\n", Version)
			os.Exit(0)
		}
		cmd.Print(cmd.UsageString())
	},
}

var rootCmdFlags = struct {
	version  bool
	logLevel int
	logFile  string
}{}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
	log.CloseLogHandler()
}

// newEnv loads the configuration and opens the project layout. Every
// subcommand goes through here.
func newEnv() *api.Env {
	if rootCmdFlags.logFile != "" {
		if _, err := log.SetOutputFilename(rootCmdFlags.logFile); err != nil {
			fail(err)
		}
	}
	log.SetLogLevel(rootCmdFlags.logLevel)

	var cfg config.DepslandConfig
	if err := cfg.LoadConfig(configFile); err != nil {
		fail(err)
	}
	env, err := api.NewEnv(&cfg)
	if err != nil {
		fail(err)
	}
	return env
}

func init() {
	RootCmd.Flags().BoolVar(&rootCmdFlags.version, "version", false, "Print version information and quit")
	RootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Supply a specific depsland.toml to use")
	RootCmd.PersistentFlags().IntVar(&rootCmdFlags.logLevel, "log-level", 4, "Set the log level between 1-5")
	RootCmd.PersistentFlags().StringVar(&rootCmdFlags.logFile, "log-file", "", "Write the log to a file instead of stdout")
}

func fail(err error) {
	helpers.PrintError(err)
	os.Exit(1)
}

func failf(format string, a ...interface{}) {
	fail(errors.Errorf(format, a...))
}
