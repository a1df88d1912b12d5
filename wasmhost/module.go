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

//go:generate mockgen -source module.go -destination module_mock.go -package wasmhost

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/0xsoniclabs/weft/ledger"
	"github.com/0xsoniclabs/weft/store"
)

// Module executes encoded operations against ledger storage. Execute returns
// an error only for harness-level faults such as a malformed encoding; every
// ledger-level refusal, including gas exhaustion, is reported through the
// outcome. Modules are not safe for concurrent use.
type Module interface {
	// Execute runs one encoded operation and returns its outcome. Accepted
	// operations have their writes committed before Execute returns.
	Execute(ctx context.Context, input []byte) (ledger.Outcome, error)

	// Close releases all resources held by the module.
	Close() error
}

// LedgerModule is the storage-backed execution path. It implements the
// transaction semantics directly against a store.Database, metered by the
// same gas schedule as the WASM host, and serves as the default execution
// target when no compiled WASM module is supplied.
type LedgerModule struct {
	db       store.Database
	gasLimit uint64
}

// NewLedgerModule creates a module executing against db with the given gas
// limit per operation.
func NewLedgerModule(db store.Database, gasLimit uint64) *LedgerModule {
	return &LedgerModule{db: db, gasLimit: gasLimit}
}

func (m *LedgerModule) Execute(ctx context.Context, input []byte) (ledger.Outcome, error) {
	meter := NewGasMeter(m.gasLimit)
	if err := meter.Charge(baseExecutionGas + uint64(len(input))*inputByteGas); err != nil {
		return outOfGas(meter), nil
	}
	op, err := ledger.DecodeOperation(input)
	if err != nil {
		return ledger.Outcome{}, err
	}
	view := NewStorageView(m.db, meter, CapabilityKeys(op))
	outcome, err := m.run(view, op)
	if err != nil {
		if errors.Is(err, ErrOutOfGas) {
			view.Discard()
			return outOfGas(meter), nil
		}
		return ledger.Outcome{}, err
	}
	if !outcome.Accepted {
		view.Discard()
		outcome.GasUsed = meter.Used()
		return outcome, nil
	}
	outcome = ledger.Outcome{Accepted: true, Deltas: view.Deltas(), GasUsed: meter.Used()}
	if err := view.Commit(); err != nil {
		return ledger.Outcome{}, err
	}
	return outcome, nil
}

func (m *LedgerModule) Close() error {
	return nil
}

func (m *LedgerModule) run(view *StorageView, op ledger.Operation) (ledger.Outcome, error) {
	switch op := op.(type) {
	case ledger.Transfer:
		return m.runTransfer(view, op)
	case ledger.InvalidTransfer:
		return m.runTransfer(view, op.Transfer)
	case ledger.UpdatePredicate:
		return m.runUpdatePredicate(view, op)
	case ledger.IbcPacketSend:
		return m.runPacketSend(view, op)
	case ledger.IbcPacketRecv:
		return m.runPacketRecv(view, op)
	default:
		return ledger.Rejected(ledger.ReasonMalformed), nil
	}
}

func (m *LedgerModule) runTransfer(view *StorageView, op ledger.Transfer) (ledger.Outcome, error) {
	// structural
	if op.Amount == nil || op.Amount.IsZero() || op.Token == "" || op.Source == op.Target {
		return ledger.Rejected(ledger.ReasonMalformed), nil
	}
	if op.Source == (common.Address{}) || op.Target == (common.Address{}) {
		return ledger.Rejected(ledger.ReasonMalformed), nil
	}
	// authorization
	if op.From != op.Source {
		return ledger.Rejected(ledger.ReasonUnauthorized), nil
	}
	sourcePredicate, ok, err := m.readPredicate(view, op.Source)
	if err != nil {
		return ledger.Outcome{}, err
	}
	if !ok {
		return ledger.Rejected(ledger.ReasonUnknownAccount), nil
	}
	targetPredicate, ok, err := m.readPredicate(view, op.Target)
	if err != nil {
		return ledger.Outcome{}, err
	}
	if !ok {
		return ledger.Rejected(ledger.ReasonUnknownAccount), nil
	}
	// balance sufficiency
	sourceBalance, err := m.readBalance(view, op.Token, op.Source)
	if err != nil {
		return ledger.Outcome{}, err
	}
	if sourceBalance.Cmp(op.Amount) < 0 {
		return ledger.Rejected(ledger.ReasonInsufficientBalance), nil
	}
	// validity predicates of the affected accounts
	if err := view.meter.Charge(2 * predicateGas); err != nil {
		return ledger.Outcome{}, err
	}
	if !sourcePredicate.AllowsDebit(op.Amount) || !targetPredicate.AllowsCredit() {
		return ledger.Rejected(ledger.ReasonPredicateRejected), nil
	}

	targetBalance, err := m.readBalance(view, op.Token, op.Target)
	if err != nil {
		return ledger.Outcome{}, err
	}
	if err := m.writeBalance(view, op.Token, op.Source, new(uint256.Int).Sub(sourceBalance, op.Amount)); err != nil {
		return ledger.Outcome{}, err
	}
	if err := m.writeBalance(view, op.Token, op.Target, new(uint256.Int).Add(targetBalance, op.Amount)); err != nil {
		return ledger.Outcome{}, err
	}
	if err := m.bumpHeight(view); err != nil {
		return ledger.Outcome{}, err
	}
	return ledger.Outcome{Accepted: true}, nil
}

func (m *LedgerModule) runUpdatePredicate(view *StorageView, op ledger.UpdatePredicate) (ledger.Outcome, error) {
	// structural
	if !op.Predicate.Valid() || op.Account == (common.Address{}) {
		return ledger.Rejected(ledger.ReasonMalformed), nil
	}
	// authorization: only the account itself may rebind its predicate
	if op.From != op.Account {
		return ledger.Rejected(ledger.ReasonUnauthorized), nil
	}
	if _, ok, err := m.readPredicate(view, op.Account); err != nil {
		return ledger.Outcome{}, err
	} else if !ok {
		return ledger.Rejected(ledger.ReasonUnknownAccount), nil
	}

	if err := view.Put(ledger.PredicateKey(op.Account), ledger.EncodePredicate(op.Predicate)); err != nil {
		return ledger.Outcome{}, err
	}
	if err := m.bumpHeight(view); err != nil {
		return ledger.Outcome{}, err
	}
	return ledger.Outcome{Accepted: true}, nil
}

func (m *LedgerModule) runPacketSend(view *StorageView, op ledger.IbcPacketSend) (ledger.Outcome, error) {
	// structural
	if op.Amount == nil || op.Amount.IsZero() || op.Token == "" || op.Channel == "" {
		return ledger.Rejected(ledger.ReasonMalformed), nil
	}
	if op.Receiver == (common.Address{}) {
		return ledger.Rejected(ledger.ReasonMalformed), nil
	}
	// authorization: the signer is the source of the escrowed funds
	sourcePredicate, ok, err := m.readPredicate(view, op.From)
	if err != nil {
		return ledger.Outcome{}, err
	}
	if !ok {
		return ledger.Rejected(ledger.ReasonUnknownAccount), nil
	}
	// balance sufficiency
	sourceBalance, err := m.readBalance(view, op.Token, op.From)
	if err != nil {
		return ledger.Outcome{}, err
	}
	if sourceBalance.Cmp(op.Amount) < 0 {
		return ledger.Rejected(ledger.ReasonInsufficientBalance), nil
	}
	// protocol rule: open channel with a known client, source predicate
	clientID, ok, err := view.Get(ledger.ChannelClientKey(op.Channel))
	if err != nil {
		return ledger.Outcome{}, err
	}
	if !ok {
		return ledger.Rejected(ledger.ReasonUnknownChannel), nil
	}
	if _, ok, err := view.Get(ledger.ClientHeightKey(string(clientID))); err != nil {
		return ledger.Outcome{}, err
	} else if !ok {
		return ledger.Rejected(ledger.ReasonUnknownChannel), nil
	}
	if err := view.meter.Charge(predicateGas); err != nil {
		return ledger.Outcome{}, err
	}
	if !sourcePredicate.AllowsDebit(op.Amount) {
		return ledger.Rejected(ledger.ReasonPredicateRejected), nil
	}

	seq, err := m.readSequence(view, ledger.NextSendKey(op.Channel))
	if err != nil {
		return ledger.Outcome{}, err
	}
	escrow := ledger.EscrowAddress(op.Channel)
	escrowBalance, err := m.readBalance(view, op.Token, escrow)
	if err != nil {
		return ledger.Outcome{}, err
	}
	if err := m.writeBalance(view, op.Token, op.From, new(uint256.Int).Sub(sourceBalance, op.Amount)); err != nil {
		return ledger.Outcome{}, err
	}
	if err := m.writeBalance(view, op.Token, escrow, new(uint256.Int).Add(escrowBalance, op.Amount)); err != nil {
		return ledger.Outcome{}, err
	}
	packet := ledger.Packet{
		Sequence: seq,
		Token:    op.Token,
		Amount:   new(uint256.Int).Set(op.Amount),
		Receiver: op.Receiver,
	}
	if err := view.Put(ledger.PacketKey(op.Channel, seq), ledger.EncodePacket(packet)); err != nil {
		return ledger.Outcome{}, err
	}
	if err := view.Put(ledger.NextSendKey(op.Channel), ledger.EncodeSequence(seq+1)); err != nil {
		return ledger.Outcome{}, err
	}
	if err := m.bumpHeight(view); err != nil {
		return ledger.Outcome{}, err
	}
	return ledger.Outcome{Accepted: true}, nil
}

func (m *LedgerModule) runPacketRecv(view *StorageView, op ledger.IbcPacketRecv) (ledger.Outcome, error) {
	// structural
	if op.Channel == "" || op.Sequence == 0 {
		return ledger.Rejected(ledger.ReasonMalformed), nil
	}
	// authorization: the relayer must be a known account
	if _, ok, err := m.readPredicate(view, op.From); err != nil {
		return ledger.Outcome{}, err
	} else if !ok {
		return ledger.Rejected(ledger.ReasonUnknownAccount), nil
	}
	// protocol rule: packets are delivered strictly in order
	if _, ok, err := view.Get(ledger.ChannelClientKey(op.Channel)); err != nil {
		return ledger.Outcome{}, err
	} else if !ok {
		return ledger.Rejected(ledger.ReasonUnknownChannel), nil
	}
	seq, err := m.readSequence(view, ledger.NextRecvKey(op.Channel))
	if err != nil {
		return ledger.Outcome{}, err
	}
	if op.Sequence != seq {
		return ledger.Rejected(ledger.ReasonBadSequence), nil
	}
	encoded, ok, err := view.Get(ledger.PacketKey(op.Channel, op.Sequence))
	if err != nil {
		return ledger.Outcome{}, err
	}
	if !ok {
		return ledger.Rejected(ledger.ReasonBadSequence), nil
	}
	packet, err := ledger.DecodePacket(encoded)
	if err != nil {
		return ledger.Outcome{}, err
	}
	receiverPredicate, ok, err := m.readPredicate(view, packet.Receiver)
	if err != nil {
		return ledger.Outcome{}, err
	}
	if !ok {
		return ledger.Rejected(ledger.ReasonUnknownAccount), nil
	}
	if err := view.meter.Charge(predicateGas); err != nil {
		return ledger.Outcome{}, err
	}
	if !receiverPredicate.AllowsCredit() {
		return ledger.Rejected(ledger.ReasonPredicateRejected), nil
	}

	escrow := ledger.EscrowAddress(op.Channel)
	escrowBalance, err := m.readBalance(view, packet.Token, escrow)
	if err != nil {
		return ledger.Outcome{}, err
	}
	receiverBalance, err := m.readBalance(view, packet.Token, packet.Receiver)
	if err != nil {
		return ledger.Outcome{}, err
	}
	if err := m.writeBalance(view, packet.Token, escrow, new(uint256.Int).Sub(escrowBalance, packet.Amount)); err != nil {
		return ledger.Outcome{}, err
	}
	if err := m.writeBalance(view, packet.Token, packet.Receiver, new(uint256.Int).Add(receiverBalance, packet.Amount)); err != nil {
		return ledger.Outcome{}, err
	}
	if err := view.Delete(ledger.PacketKey(op.Channel, op.Sequence)); err != nil {
		return ledger.Outcome{}, err
	}
	if err := view.Put(ledger.NextRecvKey(op.Channel), ledger.EncodeSequence(seq+1)); err != nil {
		return ledger.Outcome{}, err
	}
	if err := m.bumpHeight(view); err != nil {
		return ledger.Outcome{}, err
	}
	return ledger.Outcome{Accepted: true}, nil
}

func (m *LedgerModule) readBalance(view *StorageView, token ledger.Token, owner common.Address) (*uint256.Int, error) {
	data, _, err := view.Get(ledger.BalanceKey(token, owner))
	if err != nil {
		return nil, err
	}
	return ledger.DecodeBalance(data)
}

func (m *LedgerModule) writeBalance(view *StorageView, token ledger.Token, owner common.Address, balance *uint256.Int) error {
	return view.Put(ledger.BalanceKey(token, owner), ledger.EncodeBalance(balance))
}

func (m *LedgerModule) readPredicate(view *StorageView, owner common.Address) (ledger.Predicate, bool, error) {
	data, ok, err := view.Get(ledger.PredicateKey(owner))
	if err != nil || !ok {
		return ledger.Predicate{}, false, err
	}
	predicate, err := ledger.DecodePredicate(data)
	if err != nil {
		return ledger.Predicate{}, false, err
	}
	return predicate, true, nil
}

func (m *LedgerModule) readSequence(view *StorageView, key string) (uint64, error) {
	data, ok, err := view.Get(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 1, nil
	}
	return ledger.DecodeSequence(data)
}

func (m *LedgerModule) bumpHeight(view *StorageView) error {
	data, _, err := view.Get(ledger.HeightKey)
	if err != nil {
		return err
	}
	height := uint64(0)
	if len(data) != 0 {
		if height, err = ledger.DecodeHeight(data); err != nil {
			return err
		}
	}
	return view.Put(ledger.HeightKey, ledger.EncodeHeight(height+1))
}

func outOfGas(meter *GasMeter) ledger.Outcome {
	return ledger.Outcome{
		Accepted: false,
		Reason:   ledger.ReasonOutOfGas,
		GasUsed:  meter.Used(),
	}
}
