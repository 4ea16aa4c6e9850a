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

// Package memdb opens mdbx environments carrying the trieroot tables,
// in-memory ones for tests and persistent ones for the CLI.
package memdb

import (
	"context"
	"testing"

	"github.com/c2h5oh/datasize"

	"github.com/ledgerwatch/erigon-lib/kv"
	"github.com/ledgerwatch/erigon-lib/kv/mdbx"
	"github.com/ledgerwatch/log/v3"

	"github.com/flatstate/trieroot/dbutils"
)

func New(tmpDir string) kv.RwDB {
	return mdbx.NewMDBX(log.New()).InMem(tmpDir).
		WithTableCfg(func(kv.TableCfg) kv.TableCfg { return dbutils.TablesCfg }).
		GrowthStep(16 * datasize.MB).MapSize(1 * datasize.GB).
		MustOpen()
}

// Open opens (creating if absent) a persistent database at path.
func Open(path string, logger log.Logger) (kv.RwDB, error) {
	return mdbx.NewMDBX(logger).Path(path).
		WithTableCfg(func(kv.TableCfg) kv.TableCfg { return dbutils.TablesCfg }).
		GrowthStep(16 * datasize.MB).
		Open()
}

func NewTestDB(tb testing.TB) kv.RwDB {
	tb.Helper()
	db := New(tb.TempDir())
	tb.Cleanup(db.Close)
	return db
}

func BeginRw(tb testing.TB, db kv.RwDB) kv.RwTx {
	tb.Helper()
	tx, err := db.BeginRw(context.Background()) //nolint:gocritic
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(tx.Rollback)
	return tx
}

func NewTestTx(tb testing.TB) (kv.RwDB, kv.RwTx) {
	tb.Helper()
	db := New(tb.TempDir())
	tb.Cleanup(db.Close)
	tx, err := db.BeginRw(context.Background()) //nolint:gocritic
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(tx.Rollback)
	return db, tx
}
