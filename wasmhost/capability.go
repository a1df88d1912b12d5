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

import "github.com/0xsoniclabs/weft/ledger"

// CapabilityKeys returns the storage key prefixes an operation is allowed to
// write. The set is declared up front from the operation alone, before any
// state is read; it is deliberately coarse where the touched accounts are
// only known at execution time, as for packet receivers.
func CapabilityKeys(op ledger.Operation) []string {
	switch op := op.(type) {
	case ledger.Transfer:
		return transferCapability(op)
	case ledger.InvalidTransfer:
		return transferCapability(op.Transfer)
	case ledger.UpdatePredicate:
		return []string{
			ledger.PredicateKey(op.Account),
			ledger.HeightKey,
		}
	case ledger.IbcPacketSend:
		return []string{
			ledger.BalanceKey(op.Token, op.From),
			ledger.BalanceKey(op.Token, ledger.EscrowAddress(op.Channel)),
			ledger.PacketPrefix(op.Channel),
			ledger.NextSendKey(op.Channel),
			ledger.HeightKey,
		}
	case ledger.IbcPacketRecv:
		// the receiver is read from the packet commitment, so all balances
		// of the channel's escrow and any account are in scope
		return []string{
			"balance/",
			ledger.PacketPrefix(op.Channel),
			ledger.NextRecvKey(op.Channel),
			ledger.HeightKey,
		}
	default:
		return nil
	}
}

func transferCapability(op ledger.Transfer) []string {
	return []string{
		ledger.BalanceKey(op.Token, op.Source),
		ledger.BalanceKey(op.Token, op.Target),
		ledger.HeightKey,
	}
}
