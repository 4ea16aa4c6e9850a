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

package trie

import (
	"github.com/VictoriaMetrics/metrics"
)

var (
	// storage roots produced by the parallel fan-out phase
	parallelStorageRoots = metrics.GetOrCreateCounter(`trieroot_storage_roots{source="parallel"}`)
	// storage roots computed inline by the account walk (missed leaves)
	missedStorageRoots = metrics.GetOrCreateCounter(`trieroot_storage_roots{source="inline"}`)

	rootCalcDuration = metrics.GetOrCreateSummary(`trieroot_calc_seconds`)
)
