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

// Package generator produces random but state-conditioned operation
// sequences. Generation is fully deterministic in the seed: the same seed
// against the same genesis state yields the same sequence, which is what
// makes failures replayable and shrinkable.
package generator

import (
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/0xsoniclabs/weft/ledger"
)

// Weights is the relative mass of each operation kind in generated
// sequences, plus the fraction of deliberately invalid operations mixed in.
type Weights struct {
	Transfer        uint64
	UpdatePredicate uint64
	PacketSend      uint64
	PacketRecv      uint64
	InvalidFraction float64
}

// DefaultWeights favors transfers, with a steady trickle of predicate
// rebindings and packet traffic.
func DefaultWeights() Weights {
	return Weights{
		Transfer:        10,
		UpdatePredicate: 2,
		PacketSend:      3,
		PacketRecv:      3,
		InvalidFraction: 0.1,
	}
}

// Generator draws operations conditioned on a ledger state. Operations are
// constructed to be plausibly valid against the state they were drawn for;
// a configured fraction carries a deliberate fault instead. A Generator is
// not safe for concurrent use.
type Generator struct {
	rg      *rand.Rand
	weights Weights
}

// New creates a generator with the given seed and weights.
func New(seed int64, weights Weights) *Generator {
	return &Generator{
		rg:      rand.New(rand.NewSource(seed)),
		weights: weights,
	}
}

// Next draws one operation conditioned on state. Operation kinds that have
// no feasible instance in the state, such as a packet receive on empty
// channels, are excluded from the draw.
func (g *Generator) Next(state *ledger.State) ledger.Operation {
	accounts := userAccounts(state)
	if g.rg.Float64() < g.weights.InvalidFraction {
		return g.invalidTransfer(state, accounts)
	}

	type candidate struct {
		weight uint64
		draw   func() ledger.Operation
	}
	var candidates []candidate
	if owner, token, ok := g.fundedAccount(state, accounts); ok {
		owner, token := owner, token
		candidates = append(candidates, candidate{g.weights.Transfer, func() ledger.Operation {
			return g.transfer(state, accounts, owner, token)
		}})
		if len(state.Channels) > 0 {
			candidates = append(candidates, candidate{g.weights.PacketSend, func() ledger.Operation {
				return g.packetSend(state, accounts, owner, token)
			}})
		}
	}
	if len(accounts) > 0 {
		candidates = append(candidates, candidate{g.weights.UpdatePredicate, func() ledger.Operation {
			return g.updatePredicate(accounts)
		}})
	}
	if channel, ok := g.pendingChannel(state); ok {
		channel := channel
		candidates = append(candidates, candidate{g.weights.PacketRecv, func() ledger.Operation {
			return g.packetRecv(accounts, channel)
		}})
	}
	if len(candidates) == 0 {
		// nothing feasible, fall back to a faulty transfer to keep going
		return g.invalidTransfer(state, accounts)
	}

	total := uint64(0)
	for _, c := range candidates {
		total += c.weight
	}
	pick := uint64(g.rg.Int63n(int64(total)))
	for _, c := range candidates {
		if pick < c.weight {
			return c.draw()
		}
		pick -= c.weight
	}
	return candidates[len(candidates)-1].draw()
}

// Sequence draws n operations, threading each accepted operation through the
// state model so later draws are conditioned on the evolved state. It
// returns the operations and the final model state.
func (g *Generator) Sequence(state *ledger.State, n int) ([]ledger.Operation, *ledger.State) {
	ops := make([]ledger.Operation, 0, n)
	for i := 0; i < n; i++ {
		op := g.Next(state)
		ops = append(ops, op)
		state, _ = ledger.Apply(state, op)
	}
	return ops, state
}

func (g *Generator) transfer(state *ledger.State, accounts []common.Address, source common.Address, token ledger.Token) ledger.Operation {
	target := g.otherAccount(accounts, source)
	return ledger.Transfer{
		From:   source,
		Source: source,
		Target: target,
		Token:  token,
		Amount: g.amountUpTo(state.Balance(token, source)),
	}
}

func (g *Generator) updatePredicate(accounts []common.Address) ledger.Operation {
	account := accounts[g.rg.Intn(len(accounts))]
	predicate := ledger.Predicate{Kind: ledger.PredicateAllowAll}
	switch g.rg.Intn(3) {
	case 1:
		predicate = ledger.Predicate{Kind: ledger.PredicateDenyAll}
	case 2:
		predicate = ledger.Predicate{
			Kind: ledger.PredicateDebitCap,
			Cap:  uint256.NewInt(uint64(g.rg.Int63n(1000) + 1)),
		}
	}
	return ledger.UpdatePredicate{From: account, Account: account, Predicate: predicate}
}

func (g *Generator) packetSend(state *ledger.State, accounts []common.Address, source common.Address, token ledger.Token) ledger.Operation {
	channels := state.SortedChannels()
	channel := channels[g.rg.Intn(len(channels))]
	return ledger.IbcPacketSend{
		From:     source,
		Channel:  channel,
		Token:    token,
		Amount:   g.amountUpTo(state.Balance(token, source)),
		Receiver: accounts[g.rg.Intn(len(accounts))],
	}
}

func (g *Generator) packetRecv(accounts []common.Address, channel *ledger.Channel) ledger.Operation {
	return ledger.IbcPacketRecv{
		From:     accounts[g.rg.Intn(len(accounts))],
		Channel:  channel.ID,
		Sequence: channel.NextRecv,
	}
}

// invalidTransfer produces a transfer carrying one deliberate fault. The
// fault kind is drawn uniformly.
func (g *Generator) invalidTransfer(state *ledger.State, accounts []common.Address) ledger.Operation {
	fault := ledger.Fault(g.rg.Intn(int(ledger.FaultEmptyToken) + 1))
	source := ledger.AddressOf(int64(g.rg.Intn(1000) + 1))
	if len(accounts) > 0 {
		source = accounts[g.rg.Intn(len(accounts))]
	}
	target := g.otherAccount(accounts, source)
	token := ledger.Tokens[g.rg.Intn(len(ledger.Tokens))]
	op := ledger.InvalidTransfer{
		Transfer: ledger.Transfer{
			From:   source,
			Source: source,
			Target: target,
			Token:  token,
			Amount: uint256.NewInt(uint64(g.rg.Int63n(100) + 1)),
		},
		Fault: fault,
	}
	switch fault {
	case ledger.FaultExcessAmount:
		excess := new(uint256.Int).AddUint64(state.Balance(token, source), uint64(g.rg.Int63n(1000)+1))
		op.Amount = excess
	case ledger.FaultWrongSigner:
		op.From = g.otherAccount(accounts, source)
	case ledger.FaultUnknownTarget:
		op.Target = ledger.AddressOf(int64(g.rg.Intn(1000) + 10_000))
	case ledger.FaultEmptyToken:
		op.Token = ""
	}
	return op
}

// fundedAccount picks a random account holding a positive balance in some
// token. The scan starts at a random offset so all funded accounts are
// eventually exercised.
func (g *Generator) fundedAccount(state *ledger.State, accounts []common.Address) (common.Address, ledger.Token, bool) {
	if len(accounts) == 0 {
		return common.Address{}, "", false
	}
	offset := g.rg.Intn(len(accounts))
	tokenOffset := g.rg.Intn(len(ledger.Tokens))
	for i := range accounts {
		owner := accounts[(offset+i)%len(accounts)]
		for j := range ledger.Tokens {
			token := ledger.Tokens[(tokenOffset+j)%len(ledger.Tokens)]
			if !state.Balance(token, owner).IsZero() {
				return owner, token, true
			}
		}
	}
	return common.Address{}, "", false
}

// pendingChannel picks a random channel whose next packet is deliverable.
func (g *Generator) pendingChannel(state *ledger.State) (*ledger.Channel, bool) {
	ids := state.SortedChannels()
	if len(ids) == 0 {
		return nil, false
	}
	offset := g.rg.Intn(len(ids))
	for i := range ids {
		channel := state.Channels[ids[(offset+i)%len(ids)]]
		if len(channel.InFlight) > 0 && channel.InFlight[0].Sequence == channel.NextRecv {
			return channel, true
		}
	}
	return nil, false
}

func (g *Generator) otherAccount(accounts []common.Address, not common.Address) common.Address {
	if len(accounts) < 2 {
		return ledger.AddressOf(int64(g.rg.Intn(1000) + 1))
	}
	for {
		account := accounts[g.rg.Intn(len(accounts))]
		if account != not {
			return account
		}
	}
}

// amountUpTo draws an amount in [1, balance], capped to keep arithmetic in
// the int63 range.
func (g *Generator) amountUpTo(balance *uint256.Int) *uint256.Int {
	limit := int64(1 << 62)
	if balance.IsUint64() && int64(balance.Uint64()) < limit {
		limit = int64(balance.Uint64())
	}
	if limit < 1 {
		limit = 1
	}
	return uint256.NewInt(uint64(g.rg.Int63n(limit) + 1))
}

// userAccounts lists the non-escrow accounts of a state in deterministic
// order. Escrow accounts never sign operations.
func userAccounts(state *ledger.State) []common.Address {
	escrows := map[common.Address]bool{}
	for id := range state.Channels {
		escrows[ledger.EscrowAddress(id)] = true
	}
	var accounts []common.Address
	for _, account := range state.SortedAccounts() {
		if !escrows[account] {
			accounts = append(accounts, account)
		}
	}
	return accounts
}
