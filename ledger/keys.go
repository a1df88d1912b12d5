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
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Storage keys are segmented strings, one segment per path element. The
// layout follows the ledger's storage schema:
//
//	balance/<token>/<owner>           token balance of an account
//	vp/<owner>                        validity-predicate binding
//	ibc/clients/<id>/height           IBC client record
//	ibc/channels/<id>/client          channel to client binding
//	ibc/channels/<id>/nextSequenceSend
//	ibc/channels/<id>/nextSequenceRecv
//	ibc/channels/<id>/packets/<seq>   in-flight packet commitment
//	height                            chain height counter
const keySeparator = "/"

// HeightKey is the storage key of the chain height counter.
const HeightKey = "height"

// BalanceKey returns the storage key holding the balance of owner in token.
func BalanceKey(token Token, owner common.Address) string {
	return strings.Join([]string{"balance", string(token), owner.Hex()}, keySeparator)
}

// BalancePrefix returns the storage prefix of all balances of a token.
func BalancePrefix(token Token) string {
	return "balance" + keySeparator + string(token) + keySeparator
}

// PredicateKey returns the storage key holding the validity-predicate binding
// of an account.
func PredicateKey(owner common.Address) string {
	return "vp" + keySeparator + owner.Hex()
}

// ClientHeightKey returns the storage key of an IBC client record.
func ClientHeightKey(clientID string) string {
	return strings.Join([]string{"ibc", "clients", clientID, "height"}, keySeparator)
}

// ChannelClientKey returns the storage key binding a channel to its client.
func ChannelClientKey(channelID string) string {
	return strings.Join([]string{"ibc", "channels", channelID, "client"}, keySeparator)
}

// NextSendKey returns the storage key of a channel's send-sequence counter.
func NextSendKey(channelID string) string {
	return strings.Join([]string{"ibc", "channels", channelID, "nextSequenceSend"}, keySeparator)
}

// NextRecvKey returns the storage key of a channel's receive-sequence counter.
func NextRecvKey(channelID string) string {
	return strings.Join([]string{"ibc", "channels", channelID, "nextSequenceRecv"}, keySeparator)
}

// PacketKey returns the storage key of an in-flight packet commitment. The
// sequence is zero padded so packets iterate in order.
func PacketKey(channelID string, seq uint64) string {
	return strings.Join([]string{"ibc", "channels", channelID, "packets", fmt.Sprintf("%020d", seq)}, keySeparator)
}

// PacketPrefix returns the storage prefix of a channel's in-flight packets.
func PacketPrefix(channelID string) string {
	return strings.Join([]string{"ibc", "channels", channelID, "packets"}, keySeparator) + keySeparator
}

// EncodeBalance encodes a balance value for storage.
func EncodeBalance(v *uint256.Int) []byte {
	b := v.Bytes32()
	return b[:]
}

// DecodeBalance decodes a stored balance value. A missing value decodes to
// zero.
func DecodeBalance(data []byte) (*uint256.Int, error) {
	if len(data) == 0 {
		return uint256.NewInt(0), nil
	}
	if len(data) != 32 {
		return nil, fmt.Errorf("invalid balance encoding of %d bytes", len(data))
	}
	return new(uint256.Int).SetBytes(data), nil
}

// EncodePredicate encodes a validity-predicate binding for storage.
func EncodePredicate(p Predicate) []byte {
	buf := make([]byte, 1+32)
	buf[0] = byte(p.Kind)
	if p.Cap != nil {
		cap32 := p.Cap.Bytes32()
		copy(buf[1:], cap32[:])
	}
	return buf
}

// DecodePredicate decodes a stored validity-predicate binding.
func DecodePredicate(data []byte) (Predicate, error) {
	if len(data) != 1+32 {
		return Predicate{}, fmt.Errorf("invalid predicate encoding of %d bytes", len(data))
	}
	kind := PredicateKind(data[0])
	if kind > PredicateDebitCap {
		return Predicate{}, fmt.Errorf("unknown predicate kind %d", kind)
	}
	p := Predicate{Kind: kind}
	if kind == PredicateDebitCap {
		p.Cap = new(uint256.Int).SetBytes(data[1:])
	}
	return p, nil
}

// EncodeSequence encodes an IBC sequence counter for storage.
func EncodeSequence(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}

// DecodeSequence decodes a stored IBC sequence counter.
func DecodeSequence(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("invalid sequence encoding of %d bytes", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// EncodeHeight encodes the chain height counter for storage.
func EncodeHeight(height uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, height)
	return buf
}

// DecodeHeight decodes the stored chain height counter.
func DecodeHeight(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("invalid height encoding of %d bytes", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}
