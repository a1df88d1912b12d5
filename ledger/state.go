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
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Token is a token denomination.
type Token string

// NativeToken is the chain's staking token.
const NativeToken Token = "wft"

// SecondToken is a second genesis denomination so conservation is checked per
// token rather than globally.
const SecondToken Token = "usd"

// Tokens lists all genesis denominations.
var Tokens = []Token{NativeToken, SecondToken}

// Account is the abstract model of one ledger account.
type Account struct {
	Balances  map[Token]*uint256.Int
	Predicate Predicate
}

// Client is the abstract model of an IBC client record.
type Client struct {
	ID     string
	Height uint64
}

// Packet is an in-flight IBC packet: sent on a channel but not yet delivered.
type Packet struct {
	Sequence uint64
	Token    Token
	Amount   *uint256.Int
	Receiver common.Address
}

// Channel is the abstract model of an open IBC channel. Sent amounts are held
// by the channel's escrow account until the packet is delivered.
type Channel struct {
	ID       string
	ClientID string
	NextSend uint64
	NextRecv uint64
	InFlight []Packet
}

// State is the abstract representation of chain storage. It backs in-process
// tests and serves as the reference model for property tests.
type State struct {
	Height   uint64
	Accounts map[common.Address]*Account
	Clients  map[string]*Client
	Channels map[string]*Channel
}

// NewState creates an empty ledger state.
func NewState() *State {
	return &State{
		Accounts: map[common.Address]*Account{},
		Clients:  map[string]*Client{},
		Channels: map[string]*Channel{},
	}
}

// Clone returns a deep copy of the state. Apply operates on a clone so that
// the input state is never mutated.
func (s *State) Clone() *State {
	c := &State{
		Height:   s.Height,
		Accounts: make(map[common.Address]*Account, len(s.Accounts)),
		Clients:  make(map[string]*Client, len(s.Clients)),
		Channels: make(map[string]*Channel, len(s.Channels)),
	}
	for addr, acc := range s.Accounts {
		balances := make(map[Token]*uint256.Int, len(acc.Balances))
		for token, value := range acc.Balances {
			balances[token] = new(uint256.Int).Set(value)
		}
		c.Accounts[addr] = &Account{
			Balances:  balances,
			Predicate: acc.Predicate.clone(),
		}
	}
	for id, client := range s.Clients {
		clone := *client
		c.Clients[id] = &clone
	}
	for id, ch := range s.Channels {
		clone := *ch
		clone.InFlight = make([]Packet, len(ch.InFlight))
		for i, p := range ch.InFlight {
			clone.InFlight[i] = Packet{
				Sequence: p.Sequence,
				Token:    p.Token,
				Amount:   new(uint256.Int).Set(p.Amount),
				Receiver: p.Receiver,
			}
		}
		c.Channels[id] = &clone
	}
	return c
}

// Balance returns the balance of owner in token; missing entries are zero.
func (s *State) Balance(token Token, owner common.Address) *uint256.Int {
	acc, ok := s.Accounts[owner]
	if !ok {
		return uint256.NewInt(0)
	}
	value, ok := acc.Balances[token]
	if !ok {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Set(value)
}

// Supply computes the total supply per token over all accounts.
func (s *State) Supply() map[Token]*uint256.Int {
	supply := map[Token]*uint256.Int{}
	for _, acc := range s.Accounts {
		for token, value := range acc.Balances {
			total, ok := supply[token]
			if !ok {
				total = uint256.NewInt(0)
				supply[token] = total
			}
			total.Add(total, value)
		}
	}
	return supply
}

// SortedAccounts returns all account addresses in deterministic order.
func (s *State) SortedAccounts() []common.Address {
	addrs := maps.Keys(s.Accounts)
	slices.SortFunc(addrs, func(a, b common.Address) int { return a.Cmp(b) })
	return addrs
}

// SortedChannels returns all channel identifiers in deterministic order.
func (s *State) SortedChannels() []string {
	ids := maps.Keys(s.Channels)
	slices.Sort(ids)
	return ids
}

// AddressOf converts an account index to a deterministic address.
func AddressOf(idx int64) common.Address {
	var a common.Address
	if idx < 0 {
		panic(fmt.Sprintf("invalid account index (%v)", idx))
	}
	if idx != 0 {
		arr := make([]byte, binary.MaxVarintLen64)
		binary.PutVarint(arr, -idx)
		a.SetBytes(crypto.Keccak256(arr))
	}
	return a
}

// EscrowAddress derives the escrow account of a channel.
func EscrowAddress(channelID string) common.Address {
	var a common.Address
	a.SetBytes(crypto.Keccak256([]byte("escrow/" + channelID)))
	return a
}

// GenesisConfig parameterizes a fresh ledger state.
type GenesisConfig struct {
	Accounts     int   // number of user accounts
	BalanceRange int64 // genesis balances are drawn from [1, BalanceRange)
	Channels     int   // number of pre-opened IBC channels
	Seed         int64 // rng seed for genesis balances
}

// NewGenesisState builds a deterministic genesis state: user accounts with
// randomized balances in every genesis token, allow-all predicates, and
// pre-opened IBC channels with funded escrow accounts.
func NewGenesisState(cfg GenesisConfig) *State {
	rg := rand.New(rand.NewSource(cfg.Seed))
	s := NewState()
	s.Height = 1

	for i := 0; i < cfg.Accounts; i++ {
		balances := map[Token]*uint256.Int{}
		for _, token := range Tokens {
			balances[token] = uint256.NewInt(uint64(rg.Int63n(cfg.BalanceRange) + 1))
		}
		s.Accounts[AddressOf(int64(i+1))] = &Account{
			Balances:  balances,
			Predicate: Predicate{Kind: PredicateAllowAll},
		}
	}

	for i := 0; i < cfg.Channels; i++ {
		clientID := fmt.Sprintf("07-tendermint-%d", i)
		channelID := fmt.Sprintf("channel-%d", i)
		s.Clients[clientID] = &Client{ID: clientID, Height: 1}
		s.Channels[channelID] = &Channel{
			ID:       channelID,
			ClientID: clientID,
			NextSend: 1,
			NextRecv: 1,
		}
		balances := map[Token]*uint256.Int{}
		for _, token := range Tokens {
			balances[token] = uint256.NewInt(0)
		}
		s.Accounts[EscrowAddress(channelID)] = &Account{
			Balances:  balances,
			Predicate: Predicate{Kind: PredicateAllowAll},
		}
	}
	return s
}
