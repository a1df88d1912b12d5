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
	"context"

	"github.com/urfave/cli/v2"

	"github.com/0xsoniclabs/weft/delta"
	"github.com/0xsoniclabs/weft/harness"
	"github.com/0xsoniclabs/weft/logger"
	"github.com/0xsoniclabs/weft/utils"
)

// RunFuzz runs a campaign of generated test cases against the ledger module.
func RunFuzz(ctx *cli.Context) error {
	cfg, err := utils.NewConfig(ctx, utils.NoArgs)
	if err != nil {
		return err
	}
	log := logger.NewLogger(cfg.LogLevel, "Fuzz")

	results, err := harness.New(cfg, nil, log).Run(ctx.Context)
	if err != nil {
		return err
	}
	accepted, rejected, outOfGas := 0, 0, 0
	for _, result := range results {
		if result == nil || result.Result == nil {
			continue
		}
		accepted += result.Result.Accepted
		rejected += result.Result.Rejected
		outOfGas += result.Result.OutOfGas
	}
	log.Noticef("campaign passed: %d cases, %d accepted, %d rejected, %d out of gas",
		len(results), accepted, rejected, outOfGas)
	return nil
}

// RunReplay re-executes a recorded failure artifact.
func RunReplay(ctx *cli.Context) error {
	cfg, err := utils.NewConfig(ctx, utils.OneFileArg)
	if err != nil {
		return err
	}
	log := logger.NewLogger(cfg.LogLevel, "Replay")

	artifact, err := delta.LoadSequence(cfg.ArgPath)
	if err != nil {
		return err
	}
	log.Infof("replaying seed %d: %d operations", artifact.Seed, len(artifact.Ops))
	return harness.Replay(context.Background(), cfg, artifact, log)
}
