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
	"github.com/cockroachdb/errors"

	"github.com/0xsoniclabs/weft/store"
)

// WriteState writes a full ledger state into the given database using a
// single batch. It is used to seed the storage backend with the genesis
// state before a case runs.
func WriteState(db store.Database, s *State) error {
	batch := db.NewBatch()
	for addr, acc := range s.Accounts {
		for token, balance := range acc.Balances {
			batch.Put(BalanceKey(token, addr), EncodeBalance(balance))
		}
		batch.Put(PredicateKey(addr), EncodePredicate(acc.Predicate))
	}
	for id, client := range s.Clients {
		batch.Put(ClientHeightKey(id), EncodeHeight(client.Height))
	}
	for id, ch := range s.Channels {
		batch.Put(ChannelClientKey(id), []byte(ch.ClientID))
		batch.Put(NextSendKey(id), EncodeSequence(ch.NextSend))
		batch.Put(NextRecvKey(id), EncodeSequence(ch.NextRecv))
		for _, packet := range ch.InFlight {
			batch.Put(PacketKey(id, packet.Sequence), EncodePacket(packet))
		}
	}
	batch.Put(HeightKey, EncodeHeight(s.Height))
	if err := batch.Write(); err != nil {
		return errors.Wrap(err, "cannot write ledger state")
	}
	return nil
}
