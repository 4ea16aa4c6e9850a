// Copyright 2025 The Trieroot Authors
// This file is part of Trieroot.
//
// Trieroot is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Trieroot is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Trieroot. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ledgerwatch/erigon-lib/common"
	"github.com/ledgerwatch/erigon-lib/kv"
	"github.com/ledgerwatch/log/v3"

	"github.com/flatstate/trieroot/memdb"
	"github.com/flatstate/trieroot/trie"
)

var (
	datadir   string
	verbosity int
	workers   int
)

var rootCmd = &cobra.Command{
	Use:   "trieroot",
	Short: "state root calculator over a flat hashed-state database",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Root().SetHandler(log.LvlFilterHandler(log.Lvl(verbosity), log.StderrHandler))
	},
}

var cmdRoot = &cobra.Command{
	Use:   "root",
	Short: "compute the state root from the hashed state, reusing cached trie records",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db kv.RwDB, logger log.Logger) error {
			calc := trie.NewParallelStateRoot("root", db, trie.NewHashedPostState())
			if workers > 0 {
				calc = calc.WithWorkers(workers)
			}
			root, err := calc.Compute(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(root.Hex())
			return nil
		})
	},
}

var cmdRegenerate = &cobra.Command{
	Use:   "regenerate",
	Short: "drop the cached trie tables and rebuild them from the hashed state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db kv.RwDB, logger log.Logger) error {
			tx, err := db.BeginRw(cmd.Context())
			if err != nil {
				return err
			}
			defer tx.Rollback()
			root, err := trie.RegenerateTrie("regenerate", tx, filepath.Join(datadir, "tmp"), logger, cmd.Context().Done())
			if err != nil {
				return err
			}
			if err := tx.Commit(); err != nil {
				return err
			}
			fmt.Println(root.Hex())
			return nil
		})
	},
}

func withDB(f func(db kv.RwDB, logger log.Logger) error) error {
	logger := log.Root()
	db, err := memdb.Open(filepath.Join(datadir, "chaindata"), logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	return f(db, logger)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&datadir, "datadir", "", "directory holding the database")
	rootCmd.PersistentFlags().IntVar(&verbosity, "verbosity", int(log.LvlInfo), "log verbosity (0=crit .. 5=trace)")
	cmdRoot.Flags().IntVar(&workers, "workers", 0, "storage root workers (0 = number of CPUs)")
	must(rootCmd.MarkPersistentFlagRequired("datadir"))
	rootCmd.AddCommand(cmdRoot, cmdRegenerate)
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	ctx, cancel := common.RootContext()
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
