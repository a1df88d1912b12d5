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

// Package executor drives operation sequences through two execution paths,
// the in-memory reference model and a storage-backed module, and fails on
// the first observable difference between them.
package executor

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/0xsoniclabs/weft/ledger"
	"github.com/0xsoniclabs/weft/logger"
	"github.com/0xsoniclabs/weft/wasmhost"
)

// ErrDivergence marks a mismatch between the reference model and the module
// under test. All divergence errors satisfy errors.Is against this sentinel.
var ErrDivergence = errors.New("execution diverged from the reference model")

// ErrInvariantViolated marks a broken global ledger invariant after a fully
// executed sequence.
var ErrInvariantViolated = errors.New("ledger invariant violated")

// DivergenceError pins the first operation at which the module under test
// and the reference model disagreed.
type DivergenceError struct {
	Index    int
	Op       ledger.Operation
	Expected ledger.Outcome
	Actual   ledger.Outcome
	Detail   string
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("divergence at operation %d (%v): %s; expected %s, got %s",
		e.Index, ledger.OpText[e.Op.Kind()], e.Detail, describe(e.Expected), describe(e.Actual))
}

func (e *DivergenceError) Is(target error) bool {
	return target == ErrDivergence
}

func describe(outcome ledger.Outcome) string {
	if outcome.Accepted {
		return fmt.Sprintf("accepted with %d deltas", len(outcome.Deltas))
	}
	return fmt.Sprintf("rejected (%v)", outcome.Reason)
}

// Result summarizes a fully executed sequence.
type Result struct {
	Accepted int
	Rejected int
	OutOfGas int
	Final    *ledger.State
}

// Executor runs sequences against a module and the reference model in
// lockstep.
type Executor struct {
	log logger.Logger
}

// NewExecutor creates an executor reporting through log.
func NewExecutor(log logger.Logger) *Executor {
	return &Executor{log: log}
}

// Run executes ops against module, starting from genesis on both paths. The
// module's backing storage must already hold the genesis state. It stops at
// the first divergence, returning a DivergenceError; after a clean run the
// global ledger invariants are checked against genesis.
//
// An out-of-gas refusal on the module side is not compared against the
// model: the model does not meter gas, so the operation counts as rejected
// on both paths and the model state is not advanced.
func (e *Executor) Run(ctx context.Context, genesis *ledger.State, ops []ledger.Operation, module wasmhost.Module) (*Result, error) {
	result := &Result{}
	state := genesis
	for i, op := range ops {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		input, err := ledger.EncodeOperation(op)
		if err != nil {
			return nil, err
		}
		actual, err := module.Execute(ctx, input)
		if err != nil {
			return nil, errors.Wrapf(err, "module failed at operation %d", i)
		}
		if actual.Reason == ledger.ReasonOutOfGas {
			result.OutOfGas++
			continue
		}
		next, expected := ledger.Apply(state, op)
		if err := compare(expected, actual); err != nil {
			e.log.Debugf("operation %d (%v) diverged: %v", i, ledger.OpText[op.Kind()], err)
			return nil, &DivergenceError{
				Index:    i,
				Op:       op,
				Expected: expected,
				Actual:   actual,
				Detail:   err.Error(),
			}
		}
		if expected.Accepted {
			result.Accepted++
		} else {
			result.Rejected++
		}
		state = next
	}
	if err := ledger.CheckInvariants(genesis, state); err != nil {
		return nil, errors.Mark(err, ErrInvariantViolated)
	}
	result.Final = state
	return result, nil
}

// compare checks two outcomes for observable equality: the verdict, the
// rejection reason, and for accepted operations the full delta sets in
// canonical order, distinguishing deletions from empty writes.
func compare(expected, actual ledger.Outcome) error {
	if expected.Accepted != actual.Accepted {
		return fmt.Errorf("acceptance mismatch")
	}
	if !expected.Accepted {
		if expected.Reason != actual.Reason {
			return fmt.Errorf("rejection reason mismatch: expected %v, got %v", expected.Reason, actual.Reason)
		}
		return nil
	}
	if len(expected.Deltas) != len(actual.Deltas) {
		return fmt.Errorf("delta count mismatch: expected %d, got %d", len(expected.Deltas), len(actual.Deltas))
	}
	for i := range expected.Deltas {
		want, got := expected.Deltas[i], actual.Deltas[i]
		if want.Key != got.Key {
			return fmt.Errorf("delta key mismatch at %d: expected %q, got %q", i, want.Key, got.Key)
		}
		if (want.Value == nil) != (got.Value == nil) {
			return fmt.Errorf("delta %q mismatch: deletion on one side only", want.Key)
		}
		if !bytes.Equal(want.Value, got.Value) {
			return fmt.Errorf("delta value mismatch at %q", want.Key)
		}
	}
	return nil
}
