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

import "github.com/holiman/uint256"

// PredicateKind identifies one of the reference validity predicates. The
// harness ships a closed set; arbitrary predicates are supplied as compiled
// WASM modules through the execution adapter.
type PredicateKind uint8

const (
	// PredicateAllowAll accepts every state transition of the account.
	PredicateAllowAll PredicateKind = iota
	// PredicateDenyAll rejects every debit of the account.
	PredicateDenyAll
	// PredicateDebitCap rejects debits that exceed the configured cap.
	PredicateDebitCap
)

// PredicateText translates predicate kinds to text.
var PredicateText = map[PredicateKind]string{
	PredicateAllowAll: "AllowAll",
	PredicateDenyAll:  "DenyAll",
	PredicateDebitCap: "DebitCap",
}

// Predicate is a validity-predicate binding of an account.
type Predicate struct {
	Kind PredicateKind
	Cap  *uint256.Int // debit cap, used by PredicateDebitCap
}

func (p Predicate) clone() Predicate {
	c := Predicate{Kind: p.Kind}
	if p.Cap != nil {
		c.Cap = new(uint256.Int).Set(p.Cap)
	}
	return c
}

// Valid reports whether the binding is structurally well-formed.
func (p Predicate) Valid() bool {
	switch p.Kind {
	case PredicateAllowAll, PredicateDenyAll:
		return true
	case PredicateDebitCap:
		return p.Cap != nil
	default:
		return false
	}
}

// AllowsDebit evaluates the predicate against a debit of the given amount.
func (p Predicate) AllowsDebit(amount *uint256.Int) bool {
	switch p.Kind {
	case PredicateAllowAll:
		return true
	case PredicateDenyAll:
		return false
	case PredicateDebitCap:
		return p.Cap != nil && amount.Cmp(p.Cap) <= 0
	default:
		return false
	}
}

// AllowsCredit evaluates the predicate against a credit. Only deny-all
// predicates refuse incoming funds; a debit cap constrains debits only.
func (p Predicate) AllowsCredit() bool {
	return p.Kind != PredicateDenyAll
}
