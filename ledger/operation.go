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
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// OpKind identifies an operation variant.
type OpKind uint8

// IDs of ledger operations. The set is closed; every consumer switches
// exhaustively over it.
const (
	TransferID OpKind = iota
	UpdatePredicateID
	IbcPacketSendID
	IbcPacketRecvID
	InvalidTransferID

	// Add new operations below this line

	NumOpKinds
)

// OpText translates operation kinds to text.
var OpText = map[OpKind]string{
	TransferID:        "Transfer",
	UpdatePredicateID: "UpdatePredicate",
	IbcPacketSendID:   "IbcPacketSend",
	IbcPacketRecvID:   "IbcPacketRecv",
	InvalidTransferID: "InvalidTransfer",
}

// Operation is one ledger operation of a generated sequence. Operations are
// immutable once generated; the variant set is closed.
type Operation interface {
	Kind() OpKind
	// Signer returns the account that authorized the operation.
	Signer() common.Address

	sealed()
}

// Transfer moves an amount of a token from a source to a target account.
type Transfer struct {
	From   common.Address
	Source common.Address
	Target common.Address
	Token  Token
	Amount *uint256.Int
}

func (Transfer) Kind() OpKind { return TransferID }
func (op Transfer) Signer() common.Address { return op.From }
func (Transfer) sealed() {}

// UpdatePredicate rebinds the validity predicate of an account.
type UpdatePredicate struct {
	From      common.Address
	Account   common.Address
	Predicate Predicate
}

func (UpdatePredicate) Kind() OpKind { return UpdatePredicateID }
func (op UpdatePredicate) Signer() common.Address { return op.From }
func (UpdatePredicate) sealed() {}

// IbcPacketSend escrows an amount on a channel and queues an outbound packet.
type IbcPacketSend struct {
	From     common.Address
	Channel  string
	Token    Token
	Amount   *uint256.Int
	Receiver common.Address
}

func (IbcPacketSend) Kind() OpKind { return IbcPacketSendID }
func (op IbcPacketSend) Signer() common.Address { return op.From }
func (IbcPacketSend) sealed() {}

// IbcPacketRecv delivers the next in-flight packet of a channel. The signer
// acts as the relayer.
type IbcPacketRecv struct {
	From     common.Address
	Channel  string
	Sequence uint64
}

func (IbcPacketRecv) Kind() OpKind { return IbcPacketRecvID }
func (op IbcPacketRecv) Signer() common.Address { return op.From }
func (IbcPacketRecv) sealed() {}

// Fault names the defect injected into an InvalidTransfer.
type Fault uint8

const (
	FaultExcessAmount Fault = iota // amount exceeds the source balance
	FaultWrongSigner               // signer differs from the source account
	FaultUnknownTarget             // target account does not exist
	FaultEmptyToken                // missing token denomination
)

// FaultText translates faults to text.
var FaultText = map[Fault]string{
	FaultExcessAmount:  "ExcessAmount",
	FaultWrongSigner:   "WrongSigner",
	FaultUnknownTarget: "UnknownTarget",
	FaultEmptyToken:    "EmptyToken",
}

// InvalidTransfer is a deliberately defective transfer used to exercise
// rejection paths. It validates through the same rules as Transfer; the Fault
// field records which defect was injected.
type InvalidTransfer struct {
	Transfer
	Fault Fault
}

func (InvalidTransfer) Kind() OpKind { return InvalidTransferID }
func (InvalidTransfer) sealed() {}
