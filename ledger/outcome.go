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

package ledger

import (
	"fmt"
	"sort"
)

// Reason explains why the ledger refused an operation.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonMalformed
	ReasonUnauthorized
	ReasonUnknownAccount
	ReasonInsufficientBalance
	ReasonPredicateRejected
	ReasonUnknownChannel
	ReasonBadSequence
	ReasonOutOfGas
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "None"
	case ReasonMalformed:
		return "Malformed"
	case ReasonUnauthorized:
		return "Unauthorized"
	case ReasonUnknownAccount:
		return "UnknownAccount"
	case ReasonInsufficientBalance:
		return "InsufficientBalance"
	case ReasonPredicateRejected:
		return "PredicateRejected"
	case ReasonUnknownChannel:
		return "UnknownChannel"
	case ReasonBadSequence:
		return "BadSequence"
	case ReasonOutOfGas:
		return "OutOfGas"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(r))
	}
}

// Delta is one storage write of an accepted operation. A nil Value marks a
// deletion of the key.
type Delta struct {
	Key   string
	Value []byte
}

// Outcome is the result of applying one operation. It is produced once per
// application and never mutated. Deltas are in canonical (key-sorted) order.
type Outcome struct {
	Accepted bool
	Reason   Reason
	Deltas   []Delta
	GasUsed  uint64
}

// Rejected builds a rejection outcome with the given reason.
func Rejected(reason Reason) Outcome {
	return Outcome{Accepted: false, Reason: reason}
}

// Accept builds an acceptance outcome over the given writes, normalizing
// them to canonical order.
func Accept(deltas []Delta) Outcome {
	sortDeltas(deltas)
	return Outcome{Accepted: true, Deltas: deltas}
}

func sortDeltas(deltas []Delta) {
	sort.Slice(deltas, func(i, j int) bool { return deltas[i].Key < deltas[j].Key })
}
