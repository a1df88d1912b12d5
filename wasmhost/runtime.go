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

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/0xsoniclabs/weft/ledger"
	"github.com/0xsoniclabs/weft/logger"
	"github.com/0xsoniclabs/weft/store"
)

// The WASM ABI of a transaction module:
//
//	_apply_tx(tx_data_ptr, tx_data_len u64) -> u64
//	    Executes an encoded operation. Returns 0 on acceptance or a nonzero
//	    rejection reason code.
//	_validate_tx(addr_ptr, addr_len, tx_ptr, tx_len,
//	             keys_ptr, keys_len, verifiers_ptr, verifiers_len u64) -> u64
//	    Optional. Validates the writes of an accepted transaction on behalf
//	    of one account. Returns 1 on acceptance.
//	_alloc(len u64) -> u64
//	    Optional. Reserves len bytes of module memory for host input. When
//	    absent, input is placed at a fixed offset.
//
// The host exposes its storage and gas interface under the "weft" module:
//
//	storage_read(key_ptr, key_len, val_ptr, val_cap u32) -> i64
//	    Reads a storage key into module memory. Returns the value length,
//	    or -1 when the key is absent.
//	storage_write(key_ptr, key_len, val_ptr, val_len u32) -> i32
//	storage_delete(key_ptr, key_len u32) -> i32
//	    Buffer a write or deletion. Return 0 on success, 1 when the key is
//	    outside the operation's capability set.
//	gas(amount u64)
//	    Charges execution gas. Traps when the limit is exhausted.
//	log_string(ptr, len u32)
//	    Emits a debug log line.
const hostModuleName = "weft"

// inputOffset is where host input lands in module memory when the module
// does not export an allocator.
const inputOffset = 4096

var errGasExhausted = errors.New("gas limit exhausted in host call")

type execEnv struct {
	view      *StorageView
	exhausted bool
}

// Runtime executes compiled WASM transaction modules via wazero. It
// implements Module and is not safe for concurrent use: one execution
// environment is active at a time.
type Runtime struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	db       store.Database
	gasLimit uint64
	log      logger.Logger
	env      *execEnv
}

// NewRuntime compiles the given WASM module code and prepares it for
// execution against db. The returned runtime must be closed.
func NewRuntime(ctx context.Context, code []byte, db store.Database, gasLimit uint64, log logger.Logger) (*Runtime, error) {
	rt := &Runtime{
		runtime:  wazero.NewRuntime(ctx),
		db:       db,
		gasLimit: gasLimit,
		log:      log,
	}
	builder := rt.runtime.NewHostModuleBuilder(hostModuleName)
	builder.NewFunctionBuilder().WithFunc(rt.storageRead).Export("storage_read")
	builder.NewFunctionBuilder().WithFunc(rt.storageWrite).Export("storage_write")
	builder.NewFunctionBuilder().WithFunc(rt.storageDelete).Export("storage_delete")
	builder.NewFunctionBuilder().WithFunc(rt.chargeGas).Export("gas")
	builder.NewFunctionBuilder().WithFunc(rt.logString).Export("log_string")
	if _, err := builder.Instantiate(ctx); err != nil {
		_ = rt.runtime.Close(ctx)
		return nil, errors.Wrap(err, "cannot instantiate host module")
	}
	compiled, err := rt.runtime.CompileModule(ctx, code)
	if err != nil {
		_ = rt.runtime.Close(ctx)
		return nil, errors.Wrap(err, "cannot compile WASM module")
	}
	rt.compiled = compiled
	return rt, nil
}

func (rt *Runtime) Execute(ctx context.Context, input []byte) (ledger.Outcome, error) {
	meter := NewGasMeter(rt.gasLimit)
	if err := meter.Charge(baseExecutionGas + uint64(len(input))*inputByteGas); err != nil {
		return outOfGas(meter), nil
	}
	op, err := ledger.DecodeOperation(input)
	if err != nil {
		return ledger.Outcome{}, err
	}

	mod, err := rt.runtime.InstantiateModule(ctx, rt.compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return ledger.Outcome{}, errors.Wrap(err, "cannot instantiate WASM module")
	}
	defer func() {
		_ = mod.Close(ctx)
	}()

	rt.env = &execEnv{view: NewStorageView(rt.db, meter, CapabilityKeys(op))}
	defer func() {
		rt.env = nil
	}()

	ptr, err := rt.placeInput(ctx, mod, input)
	if err != nil {
		return ledger.Outcome{}, err
	}
	apply := mod.ExportedFunction("_apply_tx")
	if apply == nil {
		return ledger.Outcome{}, errors.New("module does not export _apply_tx")
	}
	results, err := apply.Call(ctx, ptr, uint64(len(input)))
	if err != nil {
		if rt.env.exhausted {
			return outOfGas(meter), nil
		}
		// a trap aborts the transaction
		rt.log.Debugf("module trapped: %v", err)
		return rejected(ledger.ReasonMalformed, meter), nil
	}
	if len(results) != 1 {
		return ledger.Outcome{}, errors.New("_apply_tx returned no status code")
	}
	if code := results[0]; code != 0 {
		if code > uint64(ledger.ReasonOutOfGas) {
			return rejected(ledger.ReasonMalformed, meter), nil
		}
		return rejected(ledger.Reason(code), meter), nil
	}

	accepted, err := rt.validate(ctx, mod, op, ptr, uint64(len(input)))
	if err != nil {
		if rt.env.exhausted {
			return outOfGas(meter), nil
		}
		return ledger.Outcome{}, err
	}
	if !accepted {
		rt.env.view.Discard()
		return rejected(ledger.ReasonPredicateRejected, meter), nil
	}

	outcome := ledger.Outcome{Accepted: true, Deltas: rt.env.view.Deltas(), GasUsed: meter.Used()}
	if err := rt.env.view.Commit(); err != nil {
		return ledger.Outcome{}, err
	}
	return outcome, nil
}

func (rt *Runtime) Close() error {
	return rt.runtime.Close(context.Background())
}

// validate runs the optional _validate_tx entry point once per verifying
// account. The signer always verifies; the changed keys are passed newline
// separated.
func (rt *Runtime) validate(ctx context.Context, mod api.Module, op ledger.Operation, txPtr, txLen uint64) (bool, error) {
	fn := mod.ExportedFunction("_validate_tx")
	if fn == nil {
		return true, nil
	}
	signer := op.Signer()
	keys := make([]byte, 0, 256)
	for i, delta := range rt.env.view.Deltas() {
		if i > 0 {
			keys = append(keys, '\n')
		}
		keys = append(keys, delta.Key...)
	}

	memory := mod.Memory()
	addrPtr := uint64(inputOffset) + txLen
	if !memory.Write(uint32(addrPtr), signer[:]) {
		return false, errors.New("cannot write verifier address to module memory")
	}
	keysPtr := addrPtr + uint64(len(signer))
	if len(keys) > 0 && !memory.Write(uint32(keysPtr), keys) {
		return false, errors.New("cannot write changed keys to module memory")
	}
	results, err := fn.Call(ctx,
		addrPtr, uint64(len(signer)),
		txPtr, txLen,
		keysPtr, uint64(len(keys)),
		addrPtr, uint64(len(signer)))
	if err != nil {
		if rt.env.exhausted {
			return false, err
		}
		rt.log.Debugf("validation trapped: %v", err)
		return false, nil
	}
	return len(results) == 1 && results[0] == 1, nil
}

func (rt *Runtime) placeInput(ctx context.Context, mod api.Module, input []byte) (uint64, error) {
	offset := uint64(inputOffset)
	if alloc := mod.ExportedFunction("_alloc"); alloc != nil {
		results, err := alloc.Call(ctx, uint64(len(input)))
		if err != nil || len(results) != 1 {
			return 0, errors.Wrap(err, "module allocator failed")
		}
		offset = results[0]
	}
	if len(input) > 0 && !mod.Memory().Write(uint32(offset), input) {
		return 0, errors.New("cannot write input to module memory")
	}
	return offset, nil
}

func (rt *Runtime) storageRead(_ context.Context, mod api.Module, keyPtr, keyLen, valPtr, valCap uint32) int64 {
	key, ok := mod.Memory().Read(keyPtr, keyLen)
	if !ok {
		return -1
	}
	value, found, err := rt.env.view.Get(string(key))
	if err != nil {
		rt.trapOnGas(err)
		return -1
	}
	if !found {
		return -1
	}
	n := uint32(len(value))
	if n > valCap {
		n = valCap
	}
	mod.Memory().Write(valPtr, value[:n])
	return int64(len(value))
}

func (rt *Runtime) storageWrite(_ context.Context, mod api.Module, keyPtr, keyLen, valPtr, valLen uint32) int32 {
	key, ok := mod.Memory().Read(keyPtr, keyLen)
	if !ok {
		return 1
	}
	value, ok := mod.Memory().Read(valPtr, valLen)
	if !ok {
		return 1
	}
	if err := rt.env.view.Put(string(key), value); err != nil {
		rt.trapOnGas(err)
		return 1
	}
	return 0
}

func (rt *Runtime) storageDelete(_ context.Context, mod api.Module, keyPtr, keyLen uint32) int32 {
	key, ok := mod.Memory().Read(keyPtr, keyLen)
	if !ok {
		return 1
	}
	if err := rt.env.view.Delete(string(key)); err != nil {
		rt.trapOnGas(err)
		return 1
	}
	return 0
}

func (rt *Runtime) chargeGas(_ context.Context, amount uint64) {
	rt.trapOnGas(rt.env.view.meter.Charge(amount))
}

func (rt *Runtime) logString(_ context.Context, mod api.Module, ptr, length uint32) {
	if msg, ok := mod.Memory().Read(ptr, length); ok {
		rt.log.Debugf("module: %s", string(msg))
	}
}

// trapOnGas aborts the running WASM call when the gas limit is exhausted.
// The panic is recovered by wazero and surfaces as a call error.
func (rt *Runtime) trapOnGas(err error) {
	if errors.Is(err, ErrOutOfGas) {
		rt.env.exhausted = true
		panic(errGasExhausted)
	}
}

func rejected(reason ledger.Reason, meter *GasMeter) ledger.Outcome {
	outcome := ledger.Rejected(reason)
	outcome.GasUsed = meter.Used()
	return outcome
}
