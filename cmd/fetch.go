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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/tablog/depresolve/catalog"
	"github.com/tablog/depresolve/config"
	"github.com/tablog/depresolve/fetch"
	"github.com/tablog/depresolve/lockfile"
	"github.com/tablog/depresolve/resolve"
)

func init() {
	var fetchAll bool
	fetchCmd := &cobra.Command{
		Use:   "fetch <name> [<name2> ...]",
		Short: "Fetches the source tree of the given dependencies",
		Long: `Fetches the given dependencies' source trees onto local disk without resolving
them, e.g. to warm the source cache before going offline. Dependencies recorded
in the lockfile are fetched from where the lockfile says; others from their
upstream repository.

If only 1 dependency was requested, the path to its source tree is simply
written out; otherwise, the output will be multiple lines, each in the format
of "<name> <path>" (without quotes).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, logger, err := loadSettings()
			if err != nil {
				return err
			}
			return runFetch(cmd.Context(), s, logger, fetchAll, args, cmd.OutOrStdout())
		},
	}

	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().BoolVar(&fetchAll, "all", false, `Fetch every dependency declared in DEPS.star.`)
}

func runFetch(ctx context.Context, s *config.Settings, logger *slog.Logger, fetchAll bool, names []string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ws, err := readWorkspace(s)
	if err != nil {
		return err
	}
	if fetchAll {
		if ws == nil {
			return fmt.Errorf("--all needs a %v", resolve.WorkspaceFile)
		}
		names = nil
		for _, d := range ws.Deps {
			names = append(names, d.Name)
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("nothing to fetch")
	}
	decls, err := declarations(ws, names)
	if err != nil {
		return err
	}

	lf, err := lockfile.Read(s.LockFile)
	if errors.Is(err, os.ErrNotExist) {
		lf = lockfile.NewWorkspace()
	} else if err != nil {
		return err
	}

	env := s.Env(logger)
	remote := &resolve.RemoteFetchStrategy{Env: env}
	fetchEnv := &fetch.Env{CacheDir: s.CacheDir, WsDir: s.WorkspaceDir, Logger: logger}
	cat := catalog.Default()
	for _, d := range decls {
		var path string
		if dep, ok := lf.Deps[d.Name]; ok && !dep.Source.IsZero() {
			path, err = lf.Fetch(ctx, d.Name, fetchEnv)
		} else {
			var spec resolve.DependencySpec
			spec, err = resolve.NewDependencySpec(cat.Lookup(d.Name), d.Overrides)
			if err == nil {
				path, err = remote.Fetch(ctx, spec)
			}
		}
		if err != nil {
			return fmt.Errorf("error fetching %v: %w", d.Name, err)
		}
		if len(decls) > 1 {
			fmt.Fprintf(out, "%v %v\n", d.Name, path)
		} else {
			fmt.Fprintln(out, path)
		}
	}
	return nil
}
