// Copyright 2020 Google LLC
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
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/tablog/depresolve/common/logging"
	"github.com/tablog/depresolve/config"
)

var (
	cfgFile string
	v       = config.New()
)

var rootCmd = &cobra.Command{
	Use:   "depresolve",
	Short: "Resolves third-party build dependencies",
	Long: `depresolve makes third-party dependencies available to a build. Each
dependency is taken from a vendored copy in the workspace, a package installed
on the host, or a source tree fetched from its upstream repository, in that
order, and published as a fixed set of role-named handles.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", `Config file (default is depresolve.yaml in the workspace root).`)
	pf.String(config.KeyWorkspaceDir, ".", `The workspace root, holding DEPS.star.`)
	pf.String(config.KeyVendorDir, "",
		`The directory, relative to the workspace root, where vendored dependencies
are looked up as <vendor_dir>/<name> (default "third_party").`)
	pf.StringSlice(config.KeyRegistries, nil,
		`Host package registries to look installed packages up in, such as
file:///usr/local. Earlier registries have higher priority.`)
	pf.String(config.KeyCacheDir, "", `Where fetched sources are cached (default "~/.cache/depresolve").`)
	pf.String(config.KeyBuildDir, config.DefaultBuildDir, `Where subtree builds put their outputs.`)
	pf.String(config.KeyTargetPlatform, "", `The platform being built for, as os/arch (default: the host).`)
	pf.StringSlice(config.KeyHostToolDirs, nil,
		`Directories searched for host tools when cross-compiling (default: $PATH).`)
	pf.String(config.KeyHistoryDB, "", `SQLite database recording every strategy attempt. Empty disables it.`)
	pf.String(config.KeyLockFile, "", `Where the lockfile is written (default "depresolve.lock").`)
	pf.BoolP(config.KeyVerbose, "v", false, `Log every strategy attempt.`)
	pf.Bool(config.KeyLogJSON, false, `Log JSON lines instead of text.`)
	cobra.CheckErr(v.BindPFlags(pf))
}

func loadSettings() (*config.Settings, *slog.Logger, error) {
	s, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.Init(logging.Options{Verbose: s.Verbose, JSON: s.LogJSON})
	return s, logger, nil
}

func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}
