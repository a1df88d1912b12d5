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

package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/0xsoniclabs/weft/logger"
	"github.com/0xsoniclabs/weft/utils"
)

// FuzzApp data structure
var FuzzApp = cli.App{
	Name:      "Weft Ledger Fuzz Manager",
	Copyright: "(c) 2025 Sonic Labs",
	Commands: []*cli.Command{
		&RunFuzzCmd,
		&RunReplayCmd,
		&RunScenarioCmd,
	},
	Description: `
The weft-fuzz command generates randomized operation sequences, executes them
against the ledger module under test, and shrinks every failure to a minimal
reproducer.`,
}

var RunFuzzCmd = cli.Command{
	Action: RunFuzz,
	Name:   "fuzz",
	Usage:  "Generates operation sequences and checks model and module agreement",
	Flags: []cli.Flag{
		// Generator
		&utils.RandomSeedFlag,
		&utils.CasesFlag,
		&utils.MaxOperationsFlag,
		&utils.InvalidFractionFlag,
		&utils.AccountNumberFlag,
		&utils.BalanceRangeFlag,

		// Execution
		&utils.GasLimitFlag,
		&utils.DbImplFlag,
		&utils.DbTmpFlag,

		// Shrinking
		&utils.ShrinkBudgetFlag,
		&utils.OutputFlag,

		// Utils
		&utils.WorkersFlag,
		&utils.ContinueOnFailureFlag,
		&logger.LogLevelFlag,
	},
	Description: `
The weft-fuzz fuzz command runs the configured number of generated test cases.
Each failing case is reduced and written to the output directory as a replay
artifact.`,
}

var RunReplayCmd = cli.Command{
	Action:    RunReplay,
	Name:      "replay",
	Usage:     "Re-runs a previously recorded failure artifact",
	ArgsUsage: "<artifact>",
	Flags: []cli.Flag{
		&utils.GasLimitFlag,
		&utils.DbImplFlag,
		&utils.DbTmpFlag,
		&logger.LogLevelFlag,
	},
	Description: `
The weft-fuzz replay command requires one argument: <artifact>

<artifact> is a failure sequence previously written by the fuzz command.`,
}

var RunScenarioCmd = cli.Command{
	Action: RunE2E,
	Name:   "scenario",
	Usage:  "Runs a generated scenario against a live node over its HTTP API",
	Flags: []cli.Flag{
		// Generator
		&utils.RandomSeedFlag,
		&utils.MaxOperationsFlag,
		&utils.InvalidFractionFlag,
		&utils.AccountNumberFlag,
		&utils.BalanceRangeFlag,

		// Node
		&utils.NodeBinaryFlag,
		&utils.NodeTimeoutFlag,
		&utils.DbTmpFlag,

		&logger.LogLevelFlag,
	},
	Description: `
The weft-fuzz scenario command starts the node binary, submits a generated
operation sequence over its HTTP API, and compares every verdict and the
final balances with the reference model.`,
}

// main implements the weft-fuzz cli.
func main() {
	if err := FuzzApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
