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

package orchestrator

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/0xsoniclabs/weft/generator"
	"github.com/0xsoniclabs/weft/ledger"
	"github.com/0xsoniclabs/weft/logger"
	"github.com/0xsoniclabs/weft/store"
	"github.com/0xsoniclabs/weft/wasmhost"
)

var e2eGenesis = ledger.GenesisConfig{
	Accounts:     6,
	BalanceRange: 10_000,
	Channels:     2,
	Seed:         42,
}

// TestHelperNodeProcess is not a test. It is re-executed by StartNode as the
// node binary and serves the reference node until killed.
func TestHelperNodeProcess(t *testing.T) {
	if os.Getenv("WEFT_NODE_HELPER") != "1" {
		t.Skip("helper process only")
	}
	port := 0
	dir := ""
	for _, arg := range flag.Args() {
		switch {
		case strings.HasPrefix(arg, "--port="):
			port, _ = strconv.Atoi(strings.TrimPrefix(arg, "--port="))
		case strings.HasPrefix(arg, "--dir="):
			dir = strings.TrimPrefix(arg, "--dir=")
		}
	}
	db, err := store.Open("leveldb", dir)
	if err != nil {
		os.Exit(1)
	}
	if err := ledger.WriteState(db, ledger.NewGenesisState(e2eGenesis)); err != nil {
		os.Exit(1)
	}
	log := logger.NewLogger("critical", "Node")
	server := NewServer(db, wasmhost.NewLedgerModule(db, 1_000_000), log)
	if err := server.Serve(port); err != nil {
		os.Exit(1)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())
	return port
}

func startTestNode(t *testing.T) *Node {
	t.Helper()
	t.Setenv("WEFT_NODE_HELPER", "1")
	node, err := StartNode(context.Background(), NodeConfig{
		Binary:       os.Args[0],
		Args:         []string{"-test.run=TestHelperNodeProcess", "--"},
		Port:         freePort(t),
		ReadyTimeout: 20 * time.Second,
		TmpDir:       t.TempDir(),
		Log:          logger.NewLogger("critical", "Test"),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, node.Stop())
	})
	return node
}

func TestNode_StartsAndStops(t *testing.T) {
	node := startTestNode(t)
	require.Equal(t, Ready, node.State())

	height, err := node.Height(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1), height) // genesis height

	require.NoError(t, node.Stop())
	require.Equal(t, Stopped, node.State())
	// stopping twice is fine
	require.NoError(t, node.Stop())
}

func TestNode_SubmitAndQuery(t *testing.T) {
	node := startTestNode(t)
	genesis := ledger.NewGenesisState(e2eGenesis)
	a1, a2 := ledger.AddressOf(1), ledger.AddressOf(2)

	outcome, err := node.Submit(context.Background(), ledger.Transfer{
		From: a1, Source: a1, Target: a2,
		Token: ledger.NativeToken, Amount: uint256.NewInt(9),
	})
	require.NoError(t, err)
	require.True(t, outcome.Accepted)
	require.NoError(t, node.WaitIncluded(context.Background(), 2))

	value, found, err := node.Query(context.Background(), ledger.BalanceKey(ledger.NativeToken, a2))
	require.NoError(t, err)
	require.True(t, found)
	balance, err := ledger.DecodeBalance(value)
	require.NoError(t, err)
	want := new(uint256.Int).AddUint64(genesis.Balance(ledger.NativeToken, a2), 9)
	require.Equal(t, want, balance)
}

func TestNode_RejectionsCarryReasons(t *testing.T) {
	node := startTestNode(t)
	a1, a2 := ledger.AddressOf(1), ledger.AddressOf(2)

	outcome, err := node.Submit(context.Background(), ledger.Transfer{
		From: a2, Source: a1, Target: a2,
		Token: ledger.NativeToken, Amount: uint256.NewInt(1),
	})
	require.NoError(t, err)
	require.False(t, outcome.Accepted)
	require.Equal(t, ledger.ReasonUnauthorized, outcome.Reason)
}

func TestNode_MissingBinaryFailsToStart(t *testing.T) {
	_, err := StartNode(context.Background(), NodeConfig{
		Binary: "/does/not/exist",
		Port:   freePort(t),
		TmpDir: t.TempDir(),
	})
	require.Error(t, err)
}

func TestNode_UnreadyNodeTimesOut(t *testing.T) {
	// the helper env var is unset, so the process exits without serving
	_, err := StartNode(context.Background(), NodeConfig{
		Binary:       os.Args[0],
		Args:         []string{"-test.run=TestHelperNodeProcess", "--"},
		Port:         freePort(t),
		ReadyTimeout: 500 * time.Millisecond,
		TmpDir:       t.TempDir(),
		Log:          logger.NewLogger("critical", "Test"),
	})
	require.ErrorIs(t, err, ErrNodeStartTimeout)
}

func TestNode_FailedStartReapsProcess(t *testing.T) {
	t.Setenv("WEFT_NODE_HELPER", "1")
	dir := t.TempDir()
	cmd := exec.Command(os.Args[0],
		"-test.run=TestHelperNodeProcess", "--",
		fmt.Sprintf("--port=%d", freePort(t)),
		"--dir="+dir)
	require.NoError(t, cmd.Start())

	node := &Node{
		cfg:       NodeConfig{Log: logger.NewLogger("critical", "Test")},
		cmd:       cmd,
		resources: &Resources{TmpDir: dir},
		state:     Starting,
	}
	node.abortStart()

	// a reaped process has a populated exit state and is no zombie
	require.NotNil(t, cmd.ProcessState)
	require.Equal(t, Failed, node.State())
	require.True(t, node.resources.released)
}

func TestNode_StoppedNodeIsUnresponsive(t *testing.T) {
	node := startTestNode(t)
	require.NoError(t, node.Stop())

	node.cfg.Retries = 1
	_, err := node.Submit(context.Background(), ledger.IbcPacketRecv{
		From: ledger.AddressOf(1), Channel: "channel-0", Sequence: 1,
	})
	require.ErrorIs(t, err, ErrNodeUnresponsive)
}

func TestRunScenario_AgreesWithModel(t *testing.T) {
	node := startTestNode(t)
	genesis := ledger.NewGenesisState(e2eGenesis)
	ops, _ := generator.New(42, generator.DefaultWeights()).Sequence(genesis, 100)

	result, err := RunScenario(context.Background(), node, genesis, ops, logger.NewLogger("critical", "Test"))
	require.NoError(t, err)
	require.NotZero(t, result.Accepted)
	require.NotZero(t, result.Rejected)
}
