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

	"github.com/0xsoniclabs/weft/ledger"
	"github.com/0xsoniclabs/weft/logger"
	"github.com/0xsoniclabs/weft/orchestrator"
	"github.com/0xsoniclabs/weft/store"
	"github.com/0xsoniclabs/weft/utils"
	"github.com/0xsoniclabs/weft/wasmhost"
)

var (
	portFlag = cli.IntFlag{
		Name:  "port",
		Usage: "HTTP port to serve the node API on; 0 picks a free port",
	}
	dirFlag = cli.PathFlag{
		Name:  "dir",
		Usage: "data directory for ledger storage",
	}
	accountsFlag = cli.IntFlag{
		Name:  "accounts",
		Usage: "number of genesis accounts",
		Value: 10,
	}
	channelsFlag = cli.IntFlag{
		Name:  "channels",
		Usage: "number of pre-opened IBC channels",
		Value: 2,
	}
	genesisSeedFlag = cli.Int64Flag{
		Name:  "genesis-seed",
		Usage: "rng seed for genesis balances",
		Value: 1,
	}
	wasmFlag = cli.PathFlag{
		Name:  "wasm",
		Usage: "execute transactions through the given WASM module instead of the native one",
	}
)

// NodeApp data structure
var NodeApp = cli.App{
	Name:      "Weft Reference Node",
	Copyright: "(c) 2025 Sonic Labs",
	Action:    RunNode,
	Flags: []cli.Flag{
		&portFlag,
		&dirFlag,
		&accountsFlag,
		&utils.BalanceRangeFlag,
		&channelsFlag,
		&genesisSeedFlag,
		&utils.GasLimitFlag,
		&utils.DbImplFlag,
		&wasmFlag,
		&logger.LogLevelFlag,
	},
	Description: `
The weft-node command seeds a ledger store from genesis parameters and serves
the node HTTP API used by end-to-end scenarios.`,
}

// RunNode seeds the store and serves the node API until the process is
// terminated.
func RunNode(ctx *cli.Context) error {
	log := logger.NewLogger(ctx.String(logger.LogLevelFlag.Name), "Node")
	dir := ctx.Path(dirFlag.Name)
	if dir == "" {
		var err error
		dir, err = os.MkdirTemp("", "weft-node-*")
		if err != nil {
			return err
		}
	}
	db, err := store.Open(ctx.String(utils.DbImplFlag.Name), dir)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	genesis := ledger.NewGenesisState(ledger.GenesisConfig{
		Accounts:     ctx.Int(accountsFlag.Name),
		BalanceRange: ctx.Int64(utils.BalanceRangeFlag.Name),
		Channels:     ctx.Int(channelsFlag.Name),
		Seed:         ctx.Int64(genesisSeedFlag.Name),
	})
	if err := ledger.WriteState(db, genesis); err != nil {
		return err
	}

	gasLimit := ctx.Uint64(utils.GasLimitFlag.Name)
	var module wasmhost.Module
	if path := ctx.Path(wasmFlag.Name); path != "" {
		code, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		module, err = wasmhost.NewRuntime(ctx.Context, code, db, gasLimit, log)
		if err != nil {
			return err
		}
	} else {
		module = wasmhost.NewLedgerModule(db, gasLimit)
	}
	defer func() {
		_ = module.Close()
	}()

	log.Infof("serving node API: %d accounts, %d channels",
		len(genesis.SortedAccounts()), len(genesis.SortedChannels()))
	return orchestrator.NewServer(db, module, log).Serve(ctx.Int(portFlag.Name))
}

// main implements the weft-node cli.
func main() {
	if err := NodeApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
