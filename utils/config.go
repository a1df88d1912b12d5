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

import (
	"fmt"
	"time"

	"github.com/0xsoniclabs/weft/logger"
	"github.com/urfave/cli/v2"
)

// ArgMode determines the positional arguments expected by a command.
type ArgMode int

const (
	NoArgs ArgMode = iota
	OneFileArg
)

// Config collects all settings of weft tools. It is assembled once from CLI
// flags and passed around read-only.
type Config struct {
	RandomSeed        int64         // seed for the operation generator
	Cases             int           // number of generated test cases
	MaxOperations     int           // maximum sequence length
	ShrinkBudget      int           // maximum candidate replays during shrinking
	InvalidFraction   float64       // fraction of deliberately invalid operations
	AccountNumber     int           // number of genesis accounts
	BalanceRange      int64         // balance range for genesis accounts and amounts
	GasLimit          uint64        // gas ceiling per WASM execution
	Workers           int           // parallel test-case workers
	ContinueOnFailure bool          // keep going after the first failure
	Output            string        // output path for failure artifacts
	DbImpl            string        // backing store implementation
	DbTmp             string        // temporary directory for store files
	NodeBinary        string        // node binary for end-to-end scenarios
	NodeTimeout       time.Duration // node readiness deadline
	LogLevel          string        // logging verbosity
	ArgPath           string        // positional file argument, if any
}

// NewConfig reads the configuration from the CLI context and validates it.
// Commands register only the flags they use; a flag the running command does
// not register falls back to its declared default instead of a zero value.
func NewConfig(ctx *cli.Context, mode ArgMode) (*Config, error) {
	cfg := &Config{
		RandomSeed:        flagValue(ctx, RandomSeedFlag.Name, RandomSeedFlag.Value),
		Cases:             flagValue(ctx, CasesFlag.Name, CasesFlag.Value),
		MaxOperations:     flagValue(ctx, MaxOperationsFlag.Name, MaxOperationsFlag.Value),
		ShrinkBudget:      flagValue(ctx, ShrinkBudgetFlag.Name, ShrinkBudgetFlag.Value),
		InvalidFraction:   flagValue(ctx, InvalidFractionFlag.Name, InvalidFractionFlag.Value),
		AccountNumber:     flagValue(ctx, AccountNumberFlag.Name, AccountNumberFlag.Value),
		BalanceRange:      flagValue(ctx, BalanceRangeFlag.Name, BalanceRangeFlag.Value),
		GasLimit:          flagValue(ctx, GasLimitFlag.Name, GasLimitFlag.Value),
		Workers:           flagValue(ctx, WorkersFlag.Name, WorkersFlag.Value),
		ContinueOnFailure: flagValue(ctx, ContinueOnFailureFlag.Name, ContinueOnFailureFlag.Value),
		Output:            flagValue(ctx, OutputFlag.Name, OutputFlag.Value),
		DbImpl:            flagValue(ctx, DbImplFlag.Name, DbImplFlag.Value),
		DbTmp:             flagValue(ctx, DbTmpFlag.Name, DbTmpFlag.Value),
		NodeBinary:        flagValue(ctx, NodeBinaryFlag.Name, NodeBinaryFlag.Value),
		NodeTimeout:       flagValue(ctx, NodeTimeoutFlag.Name, NodeTimeoutFlag.Value),
		LogLevel:          flagValue(ctx, logger.LogLevelFlag.Name, logger.LogLevelFlag.Value),
	}

	switch mode {
	case NoArgs:
		if ctx.Args().Len() != 0 {
			return nil, fmt.Errorf("command expects no positional arguments")
		}
	case OneFileArg:
		if ctx.Args().Len() != 1 {
			return nil, fmt.Errorf("command expects exactly one file argument")
		}
		cfg.ArgPath = ctx.Args().Get(0)
	default:
		return nil, fmt.Errorf("unknown argument mode %v", mode)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// flagValue reads the named flag from the CLI context. For flags the running
// command does not register, ctx.Value returns nil and the flag's declared
// default is used instead.
func flagValue[T any](ctx *cli.Context, name string, fallback T) T {
	if raw := ctx.Value(name); raw != nil {
		if v, ok := raw.(T); ok {
			return v
		}
	}
	return fallback
}

func (cfg *Config) validate() error {
	if cfg.Cases < 0 {
		return fmt.Errorf("number of cases must not be negative; got %d", cfg.Cases)
	}
	if cfg.MaxOperations <= 0 {
		return fmt.Errorf("maximum sequence length must be positive; got %d", cfg.MaxOperations)
	}
	if cfg.InvalidFraction < 0 || cfg.InvalidFraction > 1 {
		return fmt.Errorf("invalid fraction must be in [0,1]; got %v", cfg.InvalidFraction)
	}
	if cfg.AccountNumber < 2 {
		return fmt.Errorf("at least two genesis accounts are required; got %d", cfg.AccountNumber)
	}
	if cfg.BalanceRange <= 0 {
		return fmt.Errorf("balance range must be positive; got %d", cfg.BalanceRange)
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("worker count must be at least one; got %d", cfg.Workers)
	}
	switch cfg.DbImpl {
	case "memory", "leveldb":
	default:
		return fmt.Errorf("unknown db implementation %q", cfg.DbImpl)
	}
	return nil
}
