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

package orchestrator

import (
	"bytes"
	"context"

	"github.com/cockroachdb/errors"

	"github.com/0xsoniclabs/weft/ledger"
	"github.com/0xsoniclabs/weft/logger"
)

// ErrScenarioDiverged indicates the node disagreed with the reference model
// during an end-to-end scenario.
var ErrScenarioDiverged = errors.New("node diverged from the reference model")

// ScenarioResult summarizes an end-to-end scenario run.
type ScenarioResult struct {
	Accepted int
	Rejected int
	OutOfGas int
}

// RunScenario submits ops to a running node, comparing every verdict with
// the reference model, and verifies all model balances against the node's
// storage afterwards. The node must have been started from the same genesis
// state.
//
// Unlike the in-process executor, the node does not report write sets; the
// comparison covers verdicts, rejection reasons, inclusion, and the final
// observable state.
func RunScenario(ctx context.Context, node *Node, genesis *ledger.State, ops []ledger.Operation, log logger.Logger) (*ScenarioResult, error) {
	result := &ScenarioResult{}
	state := genesis
	for i, op := range ops {
		outcome, err := node.Submit(ctx, op)
		if err != nil {
			return nil, errors.Wrapf(err, "submission %d failed", i)
		}
		if outcome.Reason == ledger.ReasonOutOfGas {
			result.OutOfGas++
			continue
		}
		next, expected := ledger.Apply(state, op)
		if expected.Accepted != outcome.Accepted {
			return nil, errors.Wrapf(ErrScenarioDiverged,
				"operation %d (%v): expected accepted=%v, node said %v",
				i, ledger.OpText[op.Kind()], expected.Accepted, outcome.Accepted)
		}
		if !expected.Accepted && expected.Reason != outcome.Reason {
			return nil, errors.Wrapf(ErrScenarioDiverged,
				"operation %d (%v): expected rejection %v, node said %v",
				i, ledger.OpText[op.Kind()], expected.Reason, outcome.Reason)
		}
		if expected.Accepted {
			if err := node.WaitIncluded(ctx, next.Height); err != nil {
				return nil, err
			}
			result.Accepted++
		} else {
			result.Rejected++
		}
		state = next
	}

	if err := verifyBalances(ctx, node, state); err != nil {
		return nil, err
	}
	if err := ledger.CheckInvariants(genesis, state); err != nil {
		return nil, err
	}
	log.Infof("scenario done: %d accepted, %d rejected, %d out of gas",
		result.Accepted, result.Rejected, result.OutOfGas)
	return result, nil
}

// verifyBalances checks every model balance against the node's storage.
func verifyBalances(ctx context.Context, node *Node, state *ledger.State) error {
	for _, owner := range state.SortedAccounts() {
		for _, token := range ledger.Tokens {
			want := state.Balance(token, owner)
			value, found, err := node.Query(ctx, ledger.BalanceKey(token, owner))
			if err != nil {
				return err
			}
			if !found {
				if want.IsZero() {
					continue
				}
				return errors.Wrapf(ErrScenarioDiverged,
					"balance of %v in %q missing on node, model has %v", owner, token, want)
			}
			if !bytes.Equal(value, ledger.EncodeBalance(want)) {
				got, _ := ledger.DecodeBalance(value)
				return errors.Wrapf(ErrScenarioDiverged,
					"balance of %v in %q: model %v, node %v", owner, token, want, got)
			}
		}
	}
	return nil
}
