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
	"net"

	"github.com/urfave/cli/v2"

	"github.com/0xsoniclabs/weft/generator"
	"github.com/0xsoniclabs/weft/ledger"
	"github.com/0xsoniclabs/weft/logger"
	"github.com/0xsoniclabs/weft/orchestrator"
	"github.com/0xsoniclabs/weft/utils"
)

// RunE2E runs a generated scenario against a freshly started node process.
func RunE2E(ctx *cli.Context) error {
	cfg, err := utils.NewConfig(ctx, utils.NoArgs)
	if err != nil {
		return err
	}
	if cfg.NodeBinary == "" {
		return fmt.Errorf("the scenario command requires --%s", utils.NodeBinaryFlag.Name)
	}
	log := logger.NewLogger(cfg.LogLevel, "E2E")

	genesisCfg := ledger.GenesisConfig{
		Accounts:     cfg.AccountNumber,
		BalanceRange: cfg.BalanceRange,
		Channels:     2,
		Seed:         cfg.RandomSeed,
	}
	genesis := ledger.NewGenesisState(genesisCfg)
	weights := generator.DefaultWeights()
	weights.InvalidFraction = cfg.InvalidFraction
	ops, _ := generator.New(cfg.RandomSeed, weights).Sequence(genesis, cfg.MaxOperations)

	port, err := freePort()
	if err != nil {
		return err
	}
	node, err := orchestrator.StartNode(ctx.Context, orchestrator.NodeConfig{
		Binary: cfg.NodeBinary,
		Args: []string{
			fmt.Sprintf("--accounts=%d", genesisCfg.Accounts),
			fmt.Sprintf("--balance-range=%d", genesisCfg.BalanceRange),
			fmt.Sprintf("--channels=%d", genesisCfg.Channels),
			fmt.Sprintf("--genesis-seed=%d", genesisCfg.Seed),
		},
		Port:         port,
		ReadyTimeout: cfg.NodeTimeout,
		TmpDir:       cfg.DbTmp,
		Log:          log,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := node.Stop(); err != nil {
			log.Warningf("cannot stop node: %v", err)
		}
	}()

	result, err := orchestrator.RunScenario(ctx.Context, node, genesis, ops, log)
	if err != nil {
		return err
	}
	log.Noticef("scenario passed: %d accepted, %d rejected, %d out of gas",
		result.Accepted, result.Rejected, result.OutOfGas)
	return nil
}

func freePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	port := listener.Addr().(*net.TCPAddr).Port
	return port, listener.Close()
}
