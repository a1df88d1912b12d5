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
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/0xsoniclabs/weft/ledger"
	"github.com/0xsoniclabs/weft/logger"
	"github.com/0xsoniclabs/weft/store"
	"github.com/0xsoniclabs/weft/wasmhost"
)

// Server is a single-process reference node: the storage-backed ledger
// module behind the HTTP interface the orchestrator speaks. It exists so
// end-to-end runs have a real node process to manage without depending on
// an external ledger implementation.
type Server struct {
	db     store.Database
	module wasmhost.Module
	log    logger.Logger

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// NewServer creates a node server over the given database, which must
// already hold the genesis state.
func NewServer(db store.Database, module wasmhost.Module, log logger.Logger) *Server {
	return &Server{db: db, module: module, log: log}
}

// Serve listens on the given port and blocks until Shutdown. A port of zero
// picks a free port; Addr reports the bound address.
func (s *Server) Serve(port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/tx", s.handleTx)
	mux.HandleFunc("/storage", s.handleStorage)

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return errors.Wrap(err, "cannot listen")
	}
	s.mu.Lock()
	s.listener = listener
	s.server = &http.Server{Handler: mux}
	server := s.server
	s.mu.Unlock()

	s.log.Noticef("node listening on %v", listener.Addr())
	if err := server.Serve(listener); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Addr returns the bound listen address, or empty before Serve.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Close()
}

func (s *Server) height() uint64 {
	data, ok := s.db.Get(ledger.HeightKey)
	if !ok {
		return 0
	}
	height, err := ledger.DecodeHeight(data)
	if err != nil {
		return 0
	}
	return height
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"height": s.height()})
}

func (s *Server) handleTx(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	input, err := hex.DecodeString(string(payload))
	if err != nil {
		http.Error(w, "payload is not hex", http.StatusBadRequest)
		return
	}
	// executions are serialized, the module is not concurrency safe
	s.mu.Lock()
	outcome, err := s.module.Execute(r.Context(), input)
	s.mu.Unlock()
	if err != nil {
		s.log.Errorf("execution failed: %v", err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, submission{
		Accepted: outcome.Accepted,
		Reason:   uint8(outcome.Reason),
		GasUsed:  outcome.GasUsed,
		Height:   s.height(),
	})
}

func (s *Server) handleStorage(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}
	value, found := s.db.Get(key)
	response := map[string]any{"found": found}
	if found {
		response["value"] = hex.EncodeToString(value)
	}
	writeJSON(w, response)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
