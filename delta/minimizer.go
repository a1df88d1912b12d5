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

// Package delta shrinks failing operation sequences to minimal
// counterexamples. The minimizer combines classic delta debugging over
// operation ranges with a parameter pass that lowers transfer amounts, so a
// reported failure is as small and as readable as the test budget allows.
package delta

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/0xsoniclabs/weft/ledger"
)

// Outcome describes the observed result when executing a candidate sequence.
type Outcome int

const (
	OutcomePass Outcome = iota
	OutcomeFail
	OutcomeUnresolved
)

func (o Outcome) String() string {
	switch o {
	case OutcomePass:
		return "pass"
	case OutcomeFail:
		return "fail"
	case OutcomeUnresolved:
		return "unresolved"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// TestFunc evaluates a candidate sequence and reports the observed outcome.
// Fail means the failure of interest reproduced; Unresolved means the
// candidate failed for an unrelated reason and must not guide reduction.
type TestFunc func(ctx context.Context, ops []ledger.Operation) (Outcome, error)

// ErrInputDoesNotFail indicates the original sequence did not reproduce the
// failure.
var ErrInputDoesNotFail = fmt.Errorf("delta: original sequence does not reproduce the failure")

// MinimizerConfig customizes the minimization process.
type MinimizerConfig struct {
	MaxIterations int // test invocation budget, 0 defaults to 1000
	Logger        func(format string, args ...any)
}

// Minimizer reduces failing sequences while preserving the failure.
type Minimizer struct {
	cfg   MinimizerConfig
	tests int
}

// NewMinimizer creates a minimizer with the provided configuration.
func NewMinimizer(cfg MinimizerConfig) *Minimizer {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 1000
	}
	return &Minimizer{cfg: cfg}
}

// Minimize reduces ops while maintaining the failure outcome. The result is
// one-minimal with respect to operation removal when the budget suffices: no
// single remaining operation can be dropped without losing the failure.
// Amounts of remaining transfer-like operations are additionally lowered as
// far as the failure allows.
func (m *Minimizer) Minimize(ctx context.Context, ops []ledger.Operation, test TestFunc) ([]ledger.Operation, error) {
	if test == nil {
		return nil, fmt.Errorf("delta: test function must be provided")
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("delta: sequence is empty")
	}
	m.tests = 0

	outcome, err := m.run(ctx, ops, test)
	if err != nil {
		return nil, err
	}
	if outcome != OutcomeFail {
		return nil, ErrInputDoesNotFail
	}

	reduced, err := m.reduceRanges(ctx, ops, test)
	if err != nil {
		return nil, err
	}
	shrunk, err := m.reduceAmounts(ctx, reduced, test)
	if err != nil {
		return nil, err
	}
	m.log("minimization done: %d -> %d operations, %d test runs", len(ops), len(shrunk), m.tests)
	return shrunk, nil
}

// reduceRanges is the ddmin loop: split the sequence into n chunks and try
// dropping each chunk; on success restart with coarser granularity, on a
// full sweep without progress double n until chunks are single operations.
func (m *Minimizer) reduceRanges(ctx context.Context, ops []ledger.Operation, test TestFunc) ([]ledger.Operation, error) {
	current := ops
	n := 2
	for len(current) >= 2 {
		if n > len(current) {
			n = len(current)
		}
		reduced := false
		for start := 0; start < n; start++ {
			candidate := withoutChunk(current, n, start)
			if len(candidate) == len(current) {
				continue
			}
			outcome, err := m.run(ctx, candidate, test)
			if err != nil {
				return nil, err
			}
			if outcome == OutcomeFail {
				m.log("range reduction accepted: %d -> %d operations", len(current), len(candidate))
				current = candidate
				n = max(n-1, 2)
				reduced = true
				break
			}
			if m.exhausted() {
				m.log("iteration budget exhausted during range reduction")
				return current, nil
			}
		}
		if !reduced {
			if n >= len(current) {
				break
			}
			n = min(2*n, len(current))
		}
	}
	return current, nil
}

// reduceAmounts lowers the amount of each remaining operation towards one by
// binary search, keeping every lowering that still reproduces the failure.
func (m *Minimizer) reduceAmounts(ctx context.Context, ops []ledger.Operation, test TestFunc) ([]ledger.Operation, error) {
	current := ops
	for i := range current {
		amount, ok := amountOf(current[i])
		if !ok || amount.IsZero() {
			continue
		}
		lo := uint256.NewInt(1)
		hi := new(uint256.Int).Set(amount)
		best := new(uint256.Int).Set(amount)
		// invariant: best always reproduces the failure
		for lo.Cmp(hi) <= 0 {
			if m.exhausted() {
				m.log("iteration budget exhausted during amount reduction")
				break
			}
			mid := new(uint256.Int).Add(lo, hi)
			mid.Rsh(mid, 1)
			candidate := append([]ledger.Operation{}, current...)
			candidate[i] = withAmount(candidate[i], mid)
			outcome, err := m.run(ctx, candidate, test)
			if err != nil {
				return nil, err
			}
			if outcome == OutcomeFail {
				best.Set(mid)
				if mid.IsZero() {
					break
				}
				hi = new(uint256.Int).SubUint64(mid, 1)
			} else {
				lo = new(uint256.Int).AddUint64(mid, 1)
			}
		}
		if best.Cmp(amount) != 0 {
			m.log("amount of operation %d lowered: %v -> %v", i, amount, best)
			current = append([]ledger.Operation{}, current...)
			current[i] = withAmount(current[i], best)
		}
		if m.exhausted() {
			return current, nil
		}
	}
	return current, nil
}

func (m *Minimizer) run(ctx context.Context, ops []ledger.Operation, test TestFunc) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return OutcomeUnresolved, err
	}
	m.tests++
	return test(ctx, ops)
}

func (m *Minimizer) exhausted() bool {
	return m.tests >= m.cfg.MaxIterations
}

func (m *Minimizer) log(format string, args ...any) {
	if m.cfg.Logger != nil {
		m.cfg.Logger(format, args...)
	}
}

// withoutChunk returns ops with the start-th of n equally sized chunks
// removed. The final chunk absorbs the remainder.
func withoutChunk(ops []ledger.Operation, n, start int) []ledger.Operation {
	chunk := len(ops) / n
	if chunk == 0 {
		chunk = 1
	}
	from := start * chunk
	to := from + chunk
	if start == n-1 {
		to = len(ops)
	}
	if from >= len(ops) {
		return ops
	}
	result := make([]ledger.Operation, 0, len(ops)-(to-from))
	result = append(result, ops[:from]...)
	result = append(result, ops[to:]...)
	return result
}

func amountOf(op ledger.Operation) (*uint256.Int, bool) {
	switch op := op.(type) {
	case ledger.Transfer:
		return op.Amount, op.Amount != nil
	case ledger.InvalidTransfer:
		return op.Amount, op.Amount != nil
	case ledger.IbcPacketSend:
		return op.Amount, op.Amount != nil
	default:
		return nil, false
	}
}

func withAmount(op ledger.Operation, amount *uint256.Int) ledger.Operation {
	switch op := op.(type) {
	case ledger.Transfer:
		op.Amount = new(uint256.Int).Set(amount)
		return op
	case ledger.InvalidTransfer:
		op.Amount = new(uint256.Int).Set(amount)
		return op
	case ledger.IbcPacketSend:
		op.Amount = new(uint256.Int).Set(amount)
		return op
	default:
		return op
	}
}
