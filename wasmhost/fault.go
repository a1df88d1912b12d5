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

package wasmhost

import (
	"context"

	"github.com/0xsoniclabs/weft/ledger"
)

// FaultInjector wraps a module and flips the acceptance verdict of every
// n-th execution. It exists to exercise the divergence detection and the
// shrinker of the harness itself; a flipped verdict is indistinguishable
// from a buggy module under test.
type FaultInjector struct {
	inner Module
	every uint64
	count uint64
}

// NewFaultInjector wraps inner, flipping the verdict of every n-th Execute
// call (1-based). An every of zero disables injection.
func NewFaultInjector(inner Module, every uint64) *FaultInjector {
	return &FaultInjector{inner: inner, every: every}
}

func (f *FaultInjector) Execute(ctx context.Context, input []byte) (ledger.Outcome, error) {
	outcome, err := f.inner.Execute(ctx, input)
	if err != nil {
		return outcome, err
	}
	f.count++
	if f.every == 0 || f.count%f.every != 0 {
		return outcome, nil
	}
	if outcome.Accepted {
		return ledger.Rejected(ledger.ReasonPredicateRejected), nil
	}
	return ledger.Outcome{Accepted: true, GasUsed: outcome.GasUsed}, nil
}

func (f *FaultInjector) Close() error {
	return f.inner.Close()
}
