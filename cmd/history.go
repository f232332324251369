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
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tablog/depresolve/config"
	"github.com/tablog/depresolve/history"
)

func init() {
	var (
		limit  int
		asJSON bool
	)
	historyCmd := &cobra.Command{
		Use:   "history [<name>]",
		Short: "Lists recent strategy attempts",
		Long: `Lists the most recent strategy attempts recorded in the history database,
newest first, optionally for a single dependency.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := loadSettings()
			if err != nil {
				return err
			}
			dep := ""
			if len(args) == 1 {
				dep = args[0]
			}
			return runHistory(s, dep, limit, cmd.OutOrStdout(), asJSON || !stdoutIsTerminal())
		},
	}

	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&limit, "limit", 20, `How many attempts to show.`)
	historyCmd.Flags().BoolVar(&asJSON, "json", false, `Print JSON even on a terminal.`)
}

func runHistory(s *config.Settings, dep string, limit int, out io.Writer, asJSON bool) error {
	if s.HistoryDB == "" {
		return fmt.Errorf("no history database configured; set --%v", config.KeyHistoryDB)
	}
	if limit <= 0 {
		return fmt.Errorf("--limit must be positive")
	}
	store, err := history.Open(s.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()
	rows, err := store.List(dep, limit)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, r := range rows {
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\t%v\n", r.Time.Local().Format(time.DateTime), r.Dep, r.Strategy, r.Outcome,
			r.Duration, r.Reason)
	}
	return w.Flush()
}
