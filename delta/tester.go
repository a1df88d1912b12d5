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

package delta

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/0xsoniclabs/weft/executor"
	"github.com/0xsoniclabs/weft/ledger"
	"github.com/0xsoniclabs/weft/logger"
	"github.com/0xsoniclabs/weft/store"
	"github.com/0xsoniclabs/weft/wasmhost"
)

// TesterConfig describes how candidate sequences are replayed during
// minimization.
type TesterConfig struct {
	Genesis  *ledger.State
	DbImpl   string // "memory" or "leveldb"
	TmpDir   string // scratch space for persistent backends
	GasLimit uint64

	// NewModule builds the module under test over a freshly seeded store.
	// It must reproduce the module the failure was observed with,
	// including any fault injection. Nil defaults to the storage-backed
	// ledger module.
	NewModule func(db store.Database) (wasmhost.Module, error)

	Log logger.Logger
}

// NewExecutorTester builds a TestFunc that replays candidate sequences from
// a fresh genesis through the executor. A reproduced divergence or invariant
// violation counts as Fail, a clean run as Pass; infrastructure errors and
// cancellation yield Unresolved so they never steer the reduction.
func NewExecutorTester(cfg TesterConfig) TestFunc {
	if cfg.DbImpl == "" {
		cfg.DbImpl = "memory"
	}
	if cfg.TmpDir == "" {
		cfg.TmpDir = os.TempDir()
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = 1_000_000
	}
	newModule := cfg.NewModule
	if newModule == nil {
		newModule = func(db store.Database) (wasmhost.Module, error) {
			return wasmhost.NewLedgerModule(db, cfg.GasLimit), nil
		}
	}

	return func(ctx context.Context, ops []ledger.Operation) (Outcome, error) {
		dir, err := os.MkdirTemp(cfg.TmpDir, "weft-replay-*")
		if err != nil {
			return OutcomeUnresolved, errors.Wrap(err, "cannot create replay directory")
		}
		defer func() {
			_ = os.RemoveAll(dir)
		}()

		db, err := store.Open(cfg.DbImpl, dir)
		if err != nil {
			return OutcomeUnresolved, errors.Wrap(err, "cannot open replay store")
		}
		defer func() {
			_ = db.Close()
		}()

		if err := ledger.WriteState(db, cfg.Genesis); err != nil {
			return OutcomeUnresolved, err
		}
		module, err := newModule(db)
		if err != nil {
			return OutcomeUnresolved, err
		}
		defer func() {
			_ = module.Close()
		}()

		_, err = executor.NewExecutor(cfg.Log).Run(ctx, cfg.Genesis, ops, module)
		switch {
		case err == nil:
			return OutcomePass, nil
		case errors.Is(err, executor.ErrDivergence), errors.Is(err, executor.ErrInvariantViolated):
			return OutcomeFail, nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return OutcomeUnresolved, err
		default:
			return OutcomeUnresolved, nil
		}
	}
}
