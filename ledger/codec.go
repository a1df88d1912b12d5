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

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// ErrEncoding indicates a malformed operation encoding. It is always a
// harness bug and fails fast; it is never silently skipped.
var ErrEncoding = errors.New("malformed operation encoding")

// wireOperation is the canonical RLP envelope of an operation. All variants
// share one envelope; unused fields stay at their zero value.
type wireOperation struct {
	Kind          uint8
	From          common.Address
	Source        common.Address
	Target        common.Address
	Token         string
	Amount        []byte
	PredicateKind uint8
	PredicateCap  []byte
	Channel       string
	Sequence      uint64
	Fault         uint8
}

// EncodeOperation encodes an operation into its canonical binary form, used
// both as WASM module input and as the node submission payload.
func EncodeOperation(op Operation) ([]byte, error) {
	wire := wireOperation{Kind: uint8(op.Kind()), From: op.Signer()}
	switch op := op.(type) {
	case Transfer:
		wire.Source = op.Source
		wire.Target = op.Target
		wire.Token = string(op.Token)
		wire.Amount = op.Amount.Bytes()
	case InvalidTransfer:
		wire.Source = op.Source
		wire.Target = op.Target
		wire.Token = string(op.Token)
		if op.Amount != nil {
			wire.Amount = op.Amount.Bytes()
		}
		wire.Fault = uint8(op.Fault)
	case UpdatePredicate:
		wire.Source = op.Account
		wire.PredicateKind = uint8(op.Predicate.Kind)
		if op.Predicate.Cap != nil {
			wire.PredicateCap = op.Predicate.Cap.Bytes()
		}
	case IbcPacketSend:
		wire.Target = op.Receiver
		wire.Token = string(op.Token)
		wire.Amount = op.Amount.Bytes()
		wire.Channel = op.Channel
	case IbcPacketRecv:
		wire.Channel = op.Channel
		wire.Sequence = op.Sequence
	default:
		return nil, errors.Wrapf(ErrEncoding, "unknown operation kind %d", op.Kind())
	}
	data, err := rlp.EncodeToBytes(&wire)
	if err != nil {
		return nil, errors.Wrapf(ErrEncoding, "rlp encoding failed: %v", err)
	}
	return data, nil
}

// DecodeOperation decodes an operation from its canonical binary form.
func DecodeOperation(data []byte) (Operation, error) {
	var wire wireOperation
	if err := rlp.DecodeBytes(data, &wire); err != nil {
		return nil, errors.Wrapf(ErrEncoding, "rlp decoding failed: %v", err)
	}
	switch OpKind(wire.Kind) {
	case TransferID:
		return Transfer{
			From:   wire.From,
			Source: wire.Source,
			Target: wire.Target,
			Token:  Token(wire.Token),
			Amount: new(uint256.Int).SetBytes(wire.Amount),
		}, nil
	case InvalidTransferID:
		if wire.Fault > uint8(FaultEmptyToken) {
			return nil, errors.Wrapf(ErrEncoding, "unknown fault %d", wire.Fault)
		}
		return InvalidTransfer{
			Transfer: Transfer{
				From:   wire.From,
				Source: wire.Source,
				Target: wire.Target,
				Token:  Token(wire.Token),
				Amount: new(uint256.Int).SetBytes(wire.Amount),
			},
			Fault: Fault(wire.Fault),
		}, nil
	case UpdatePredicateID:
		predicate := Predicate{Kind: PredicateKind(wire.PredicateKind)}
		if predicate.Kind == PredicateDebitCap {
			predicate.Cap = new(uint256.Int).SetBytes(wire.PredicateCap)
		}
		return UpdatePredicate{
			From:      wire.From,
			Account:   wire.Source,
			Predicate: predicate,
		}, nil
	case IbcPacketSendID:
		return IbcPacketSend{
			From:     wire.From,
			Channel:  wire.Channel,
			Token:    Token(wire.Token),
			Amount:   new(uint256.Int).SetBytes(wire.Amount),
			Receiver: wire.Target,
		}, nil
	case IbcPacketRecvID:
		return IbcPacketRecv{
			From:     wire.From,
			Channel:  wire.Channel,
			Sequence: wire.Sequence,
		}, nil
	default:
		return nil, errors.Wrapf(ErrEncoding, "unknown operation kind %d", wire.Kind)
	}
}

// wirePacket is the storage encoding of an in-flight packet.
type wirePacket struct {
	Sequence uint64
	Token    string
	Amount   []byte
	Receiver common.Address
}

// EncodePacket encodes an in-flight packet for storage under its packet key.
func EncodePacket(p Packet) []byte {
	data, err := rlp.EncodeToBytes(&wirePacket{
		Sequence: p.Sequence,
		Token:    string(p.Token),
		Amount:   p.Amount.Bytes(),
		Receiver: p.Receiver,
	})
	if err != nil {
		panic(fmt.Sprintf("packet encoding failed: %v", err))
	}
	return data
}

// DecodePacket decodes a stored in-flight packet.
func DecodePacket(data []byte) (Packet, error) {
	var wire wirePacket
	if err := rlp.DecodeBytes(data, &wire); err != nil {
		return Packet{}, errors.Wrapf(ErrEncoding, "packet decoding failed: %v", err)
	}
	return Packet{
		Sequence: wire.Sequence,
		Token:    Token(wire.Token),
		Amount:   new(uint256.Int).SetBytes(wire.Amount),
		Receiver: wire.Receiver,
	}, nil
}
