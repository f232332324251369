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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tablog/depresolve/catalog"
	"github.com/tablog/depresolve/common"
	"github.com/tablog/depresolve/config"
	"github.com/tablog/depresolve/history"
	"github.com/tablog/depresolve/lockfile"
	"github.com/tablog/depresolve/resolve"
)

func init() {
	var asJSON bool

	resolveCmd := &cobra.Command{
		Use:   "resolve [<name>[@<version>] ...]",
		Short: "Resolves dependencies and writes the lockfile",
		Long: `Resolves the named dependencies, or every dependency() declared in DEPS.star
when none are named, and prints the handle published for each role. The
result is also written to the lockfile for later build steps. The first
dependency that can't be resolved ends the run, and no lockfile is written.

Output is aligned text on a terminal and JSON otherwise.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, logger, err := loadSettings()
			if err != nil {
				return err
			}
			return runResolve(cmd.Context(), s, logger, args, cmd.OutOrStdout(), asJSON || !stdoutIsTerminal())
		},
	}

	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().BoolVar(&asJSON, "json", false, `Print JSON even on a terminal.`)
}

// declarations merges the command-line names with DEPS.star. Named dependencies keep their DEPS.star overrides
// unless the name carries a version.
func declarations(ws *resolve.Workspace, args []string) ([]resolve.Declaration, error) {
	if len(args) == 0 {
		if ws == nil {
			return nil, fmt.Errorf("no dependencies named and no %v found", resolve.WorkspaceFile)
		}
		return ws.Deps, nil
	}
	declared := make(map[string]resolve.Overrides)
	if ws != nil {
		for _, d := range ws.Deps {
			declared[d.Name] = d.Overrides
		}
	}
	var decls []resolve.Declaration
	for _, arg := range args {
		key, err := common.ParseDepKey(arg)
		if err != nil {
			return nil, err
		}
		overrides := declared[key.Name]
		if key.Version != "" {
			overrides = resolve.Overrides{Version: key.Version}
		}
		decls = append(decls, resolve.Declaration{Name: key.Name, Overrides: overrides})
	}
	return decls, nil
}

func readWorkspace(s *config.Settings) (*resolve.Workspace, error) {
	ws, err := resolve.ReadWorkspace(s.WorkspaceDir)
	if errors.Is(err, os.ErrNotExist) {
		ws = nil
	} else if err != nil {
		return nil, err
	}
	s.ApplyWorkspace(ws)
	return ws, nil
}

func runResolve(ctx context.Context, s *config.Settings, logger *slog.Logger, args []string, out io.Writer, asJSON bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ws, err := readWorkspace(s)
	if err != nil {
		return err
	}
	decls, err := declarations(ws, args)
	if err != nil {
		return err
	}

	env := s.Env(logger)
	r := resolve.New(catalog.Default(), env)
	if s.HistoryDB != "" {
		store, err := history.Open(s.HistoryDB)
		if err != nil {
			return err
		}
		defer store.Close()
		r.Recorder = store
	}

	state := resolve.NewState()
	if err := r.ResolveAll(ctx, state, decls); err != nil {
		return err
	}

	lf := lockfile.FromState(state, env)
	if err := lf.Write(s.LockFile); err != nil {
		return fmt.Errorf("error writing lockfile: %w", err)
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(lf); err != nil {
			return err
		}
	} else {
		printArtifacts(out, lf)
	}
	return nil
}

func printArtifacts(out io.Writer, lf *lockfile.Workspace) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, name := range lf.Names() {
		dep := lf.Deps[name]
		fmt.Fprintf(w, "%v\t%v\t%v\n", name, dep.Version, dep.Strategy)
		for _, role := range resolve.Artifacts(dep.Artifacts).Roles() {
			fmt.Fprintf(w, "  %v\t%v\t\n", role, dep.Artifacts[role])
		}
	}
	w.Flush()
}
