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

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Apply computes the effect of one operation on the given state. It is a pure
// function: the input state is never mutated, so the same operation can be
// replayed deterministically during shrinking. On rejection the input state is
// returned unchanged.
//
// Validation order is fixed: (1) structural well-formedness, (2) authorization,
// (3) balance sufficiency, (4) protocol rule (predicate evaluation, IBC packet
// ordering). The first failing check determines the rejection reason.
func Apply(s *State, op Operation) (*State, Outcome) {
	switch op := op.(type) {
	case Transfer:
		return applyTransfer(s, op)
	case InvalidTransfer:
		// validated through the same rules as a regular transfer
		return applyTransfer(s, op.Transfer)
	case UpdatePredicate:
		return applyUpdatePredicate(s, op)
	case IbcPacketSend:
		return applyPacketSend(s, op)
	case IbcPacketRecv:
		return applyPacketRecv(s, op)
	default:
		return s, Rejected(ReasonMalformed)
	}
}

func applyTransfer(s *State, op Transfer) (*State, Outcome) {
	// structural
	if op.Amount == nil || op.Amount.IsZero() || op.Token == "" || op.Source == op.Target {
		return s, Rejected(ReasonMalformed)
	}
	if op.Source == (common.Address{}) || op.Target == (common.Address{}) {
		return s, Rejected(ReasonMalformed)
	}
	// authorization
	if op.From != op.Source {
		return s, Rejected(ReasonUnauthorized)
	}
	// balance sufficiency
	source, ok := s.Accounts[op.Source]
	if !ok {
		return s, Rejected(ReasonUnknownAccount)
	}
	target, ok := s.Accounts[op.Target]
	if !ok {
		return s, Rejected(ReasonUnknownAccount)
	}
	balance, ok := source.Balances[op.Token]
	if !ok || balance.Cmp(op.Amount) < 0 {
		return s, Rejected(ReasonInsufficientBalance)
	}
	// validity predicates of the affected accounts
	if !source.Predicate.AllowsDebit(op.Amount) || !target.Predicate.AllowsCredit() {
		return s, Rejected(ReasonPredicateRejected)
	}

	next := s.Clone()
	debit(next, op.Token, op.Source, op.Amount)
	credit(next, op.Token, op.Target, op.Amount)
	next.Height++
	return next, Accept([]Delta{
		{Key: BalanceKey(op.Token, op.Source), Value: EncodeBalance(next.Balance(op.Token, op.Source))},
		{Key: BalanceKey(op.Token, op.Target), Value: EncodeBalance(next.Balance(op.Token, op.Target))},
		{Key: HeightKey, Value: EncodeHeight(next.Height)},
	})
}

func applyUpdatePredicate(s *State, op UpdatePredicate) (*State, Outcome) {
	// structural
	if !op.Predicate.Valid() || op.Account == (common.Address{}) {
		return s, Rejected(ReasonMalformed)
	}
	// authorization: only the account itself may rebind its predicate
	if op.From != op.Account {
		return s, Rejected(ReasonUnauthorized)
	}
	if _, ok := s.Accounts[op.Account]; !ok {
		return s, Rejected(ReasonUnknownAccount)
	}

	next := s.Clone()
	next.Accounts[op.Account].Predicate = op.Predicate.clone()
	next.Height++
	return next, Accept([]Delta{
		{Key: PredicateKey(op.Account), Value: EncodePredicate(op.Predicate)},
		{Key: HeightKey, Value: EncodeHeight(next.Height)},
	})
}

func applyPacketSend(s *State, op IbcPacketSend) (*State, Outcome) {
	// structural
	if op.Amount == nil || op.Amount.IsZero() || op.Token == "" || op.Channel == "" {
		return s, Rejected(ReasonMalformed)
	}
	if op.Receiver == (common.Address{}) {
		return s, Rejected(ReasonMalformed)
	}
	// authorization: the signer is the source of the escrowed funds
	source, ok := s.Accounts[op.From]
	if !ok {
		return s, Rejected(ReasonUnknownAccount)
	}
	// balance sufficiency
	balance, ok := source.Balances[op.Token]
	if !ok || balance.Cmp(op.Amount) < 0 {
		return s, Rejected(ReasonInsufficientBalance)
	}
	// protocol rule: open channel with a known client, source predicate
	channel, ok := s.Channels[op.Channel]
	if !ok {
		return s, Rejected(ReasonUnknownChannel)
	}
	if _, ok := s.Clients[channel.ClientID]; !ok {
		return s, Rejected(ReasonUnknownChannel)
	}
	if !source.Predicate.AllowsDebit(op.Amount) {
		return s, Rejected(ReasonPredicateRejected)
	}

	escrow := EscrowAddress(op.Channel)
	next := s.Clone()
	ch := next.Channels[op.Channel]
	debit(next, op.Token, op.From, op.Amount)
	credit(next, op.Token, escrow, op.Amount)
	packet := Packet{
		Sequence: ch.NextSend,
		Token:    op.Token,
		Amount:   new(uint256.Int).Set(op.Amount),
		Receiver: op.Receiver,
	}
	ch.InFlight = append(ch.InFlight, packet)
	ch.NextSend++
	next.Height++
	return next, Accept([]Delta{
		{Key: BalanceKey(op.Token, op.From), Value: EncodeBalance(next.Balance(op.Token, op.From))},
		{Key: BalanceKey(op.Token, escrow), Value: EncodeBalance(next.Balance(op.Token, escrow))},
		{Key: PacketKey(op.Channel, packet.Sequence), Value: EncodePacket(packet)},
		{Key: NextSendKey(op.Channel), Value: EncodeSequence(ch.NextSend)},
		{Key: HeightKey, Value: EncodeHeight(next.Height)},
	})
}

func applyPacketRecv(s *State, op IbcPacketRecv) (*State, Outcome) {
	// structural
	if op.Channel == "" || op.Sequence == 0 {
		return s, Rejected(ReasonMalformed)
	}
	// authorization: the relayer must be a known account
	if _, ok := s.Accounts[op.From]; !ok {
		return s, Rejected(ReasonUnknownAccount)
	}
	// protocol rule: packets are delivered strictly in order
	channel, ok := s.Channels[op.Channel]
	if !ok {
		return s, Rejected(ReasonUnknownChannel)
	}
	if op.Sequence != channel.NextRecv || len(channel.InFlight) == 0 {
		return s, Rejected(ReasonBadSequence)
	}
	packet := channel.InFlight[0]
	if packet.Sequence != op.Sequence {
		return s, Rejected(ReasonBadSequence)
	}
	receiver, ok := s.Accounts[packet.Receiver]
	if !ok {
		return s, Rejected(ReasonUnknownAccount)
	}
	if !receiver.Predicate.AllowsCredit() {
		return s, Rejected(ReasonPredicateRejected)
	}

	escrow := EscrowAddress(op.Channel)
	next := s.Clone()
	ch := next.Channels[op.Channel]
	debit(next, packet.Token, escrow, packet.Amount)
	credit(next, packet.Token, packet.Receiver, packet.Amount)
	ch.InFlight = ch.InFlight[1:]
	ch.NextRecv++
	next.Height++
	return next, Accept([]Delta{
		{Key: BalanceKey(packet.Token, escrow), Value: EncodeBalance(next.Balance(packet.Token, escrow))},
		{Key: BalanceKey(packet.Token, packet.Receiver), Value: EncodeBalance(next.Balance(packet.Token, packet.Receiver))},
		{Key: PacketKey(op.Channel, op.Sequence), Value: nil},
		{Key: NextRecvKey(op.Channel), Value: EncodeSequence(ch.NextRecv)},
		{Key: HeightKey, Value: EncodeHeight(next.Height)},
	})
}

func debit(s *State, token Token, owner common.Address, amount *uint256.Int) {
	balance := s.Accounts[owner].Balances[token]
	if balance == nil {
		balance = uint256.NewInt(0)
		s.Accounts[owner].Balances[token] = balance
	}
	balance.Sub(balance, amount)
}

func credit(s *State, token Token, owner common.Address, amount *uint256.Int) {
	balance := s.Accounts[owner].Balances[token]
	if balance == nil {
		balance = uint256.NewInt(0)
		s.Accounts[owner].Balances[token] = balance
	}
	balance.Add(balance, amount)
}

// CheckInvariants verifies the global ledger invariants after a fully executed
// sequence: per-token supply conservation against the genesis supply, no
// dangling predicate bindings, and consistent channel records.
func CheckInvariants(genesis, final *State) error {
	want := genesis.Supply()
	got := final.Supply()
	for token, wantTotal := range want {
		gotTotal, ok := got[token]
		if !ok {
			gotTotal = uint256.NewInt(0)
		}
		if wantTotal.Cmp(gotTotal) != 0 {
			return fmt.Errorf("supply of %q not conserved: genesis %v, final %v", token, wantTotal, gotTotal)
		}
	}
	for token := range got {
		if _, ok := want[token]; !ok {
			return fmt.Errorf("token %q minted out of thin air", token)
		}
	}
	for addr, acc := range final.Accounts {
		if !acc.Predicate.Valid() {
			return fmt.Errorf("account %v has a dangling predicate binding", addr)
		}
	}
	for id, ch := range final.Channels {
		if _, ok := final.Clients[ch.ClientID]; !ok {
			return fmt.Errorf("channel %q references unknown client %q", id, ch.ClientID)
		}
		if ch.NextRecv > ch.NextSend {
			return fmt.Errorf("channel %q received more packets than were sent", id)
		}
	}
	if final.Height < genesis.Height {
		return fmt.Errorf("height moved backwards: genesis %d, final %d", genesis.Height, final.Height)
	}
	return nil
}
