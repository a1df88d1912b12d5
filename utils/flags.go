// Copyright 2025 Sonic Labs
// This file is part of Weft Testing Infrastructure for WASM Ledgers
//
// Weft is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Weft is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Weft. If not, see <http://www.gnu.org/licenses/>.

package utils

import "github.com/urfave/cli/v2"

var (
	// RandomSeedFlag seeds the operation generator; the same seed always
	// reproduces the same operation sequences.
	RandomSeedFlag = cli.Int64Flag{
		Name:  "random-seed",
		Usage: "set random seed for the operation generator",
		Value: 1,
	}
	CasesFlag = cli.IntFlag{
		Name:  "cases",
		Usage: "number of generated test cases",
		Value: 100,
	}
	MaxOperationsFlag = cli.IntFlag{
		Name:  "max-ops",
		Usage: "maximum number of operations per generated sequence",
		Value: 100,
	}
	ShrinkBudgetFlag = cli.IntFlag{
		Name:  "shrink-budget",
		Usage: "maximum number of candidate replays during shrinking",
		Value: 1000,
	}
	InvalidFractionFlag = cli.Float64Flag{
		Name:  "invalid-fraction",
		Usage: "fraction of deliberately invalid operations in generated sequences",
		Value: 0.1,
	}
	AccountNumberFlag = cli.IntFlag{
		Name:  "account-number",
		Usage: "number of genesis accounts",
		Value: 10,
	}
	BalanceRangeFlag = cli.Int64Flag{
		Name:  "balance-range",
		Usage: "balance range for genesis accounts and generated amounts",
		Value: 100000,
	}
	GasLimitFlag = cli.Uint64Flag{
		Name:  "gas-limit",
		Usage: "gas ceiling for a single WASM execution",
		Value: 1_000_000,
	}
	WorkersFlag = cli.IntFlag{
		Name:  "workers",
		Usage: "number of test cases executed in parallel",
		Value: 1,
	}
	ContinueOnFailureFlag = cli.BoolFlag{
		Name:  "continue-on-failure",
		Usage: "continue generating cases after a failure has been found",
	}
	OutputFlag = cli.PathFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "output path for failure artifacts",
	}
	DbImplFlag = cli.StringFlag{
		Name:  "db-impl",
		Usage: `backing store for ledger storage ("memory", "leveldb")`,
		Value: "memory",
	}
	DbTmpFlag = cli.PathFlag{
		Name:  "db-tmp",
		Usage: "sets the temporary directory where to place store files; uses system default if empty",
	}
	NodeBinaryFlag = cli.PathFlag{
		Name:  "node-binary",
		Usage: "path to the consensus node binary for end-to-end scenarios",
	}
	NodeTimeoutFlag = cli.DurationFlag{
		Name:  "node-timeout",
		Usage: "deadline for a node to report readiness",
	}
)
