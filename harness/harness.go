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

// Package harness drives randomized test campaigns: it generates operation
// sequences, runs them through the dual-path executor, and shrinks every
// observed failure to a minimal reproducer written out as a replay artifact.
package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/0xsoniclabs/weft/delta"
	"github.com/0xsoniclabs/weft/executor"
	"github.com/0xsoniclabs/weft/generator"
	"github.com/0xsoniclabs/weft/ledger"
	"github.com/0xsoniclabs/weft/logger"
	"github.com/0xsoniclabs/weft/store"
	"github.com/0xsoniclabs/weft/utils"
	"github.com/0xsoniclabs/weft/wasmhost"
)

// genesisChannels is the number of pre-opened IBC channels in every
// generated test case.
const genesisChannels = 2

// ErrCampaignFailed is reported when at least one test case of a campaign
// uncovered a divergence or invariant violation.
var ErrCampaignFailed = errors.New("campaign uncovered failures")

// ModuleFactory builds the module under test over a freshly seeded store.
type ModuleFactory func(db store.Database) (wasmhost.Module, error)

// CaseResult is the outcome of a single test case.
type CaseResult struct {
	Seed     int64
	Result   *executor.Result
	Err      error               // nil for a clean case
	Minimal  []ledger.Operation  // shrunk reproducer, if Err is a failure
	Artifact string              // path of the written replay artifact
}

// Failed reports whether the case uncovered a divergence or an invariant
// violation.
func (r *CaseResult) Failed() bool {
	return r.Err != nil
}

// Harness runs a campaign of generated test cases as configured.
type Harness struct {
	cfg       *utils.Config
	newModule ModuleFactory
	log       logger.Logger
}

// New creates a harness for the given configuration. A nil factory defaults
// to the storage-backed ledger module.
func New(cfg *utils.Config, newModule ModuleFactory, log logger.Logger) *Harness {
	if newModule == nil {
		newModule = func(db store.Database) (wasmhost.Module, error) {
			return wasmhost.NewLedgerModule(db, cfg.GasLimit), nil
		}
	}
	return &Harness{cfg: cfg, newModule: newModule, log: log}
}

// Run executes the configured number of test cases, spreading them over the
// configured workers. Case i uses seed RandomSeed+i, so campaigns are
// reproducible and individual cases can be re-run in isolation. It returns
// ErrCampaignFailed if any case failed, unless a case aborted the campaign
// with an infrastructure error first.
func (h *Harness) Run(ctx context.Context) ([]*CaseResult, error) {
	cases := make(chan int, h.cfg.Cases)
	for i := 0; i < h.cfg.Cases; i++ {
		cases <- i
	}
	close(cases)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	progress := utils.NewProgressTracker(h.cfg.Cases, h.log)
	results := make([]*CaseResult, h.cfg.Cases)
	var abort error
	var mu sync.Mutex
	var wg sync.WaitGroup

	for w := 0; w < h.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range cases {
				result, err := h.runCase(ctx, h.cfg.RandomSeed+int64(i))
				mu.Lock()
				results[i] = result
				if err != nil && abort == nil {
					abort = err
					cancel()
				}
				if result != nil && result.Failed() && !h.cfg.ContinueOnFailure {
					cancel()
				}
				mu.Unlock()
				progress.PrintProgress()
			}
		}()
	}
	wg.Wait()

	if abort != nil && !errors.Is(abort, context.Canceled) {
		return results, abort
	}
	failed := 0
	for _, result := range results {
		if result != nil && result.Failed() {
			failed++
		}
	}
	if failed > 0 {
		return results, errors.Wrapf(ErrCampaignFailed, "%d of %d cases", failed, h.cfg.Cases)
	}
	return results, nil
}

// runCase generates and executes one sequence. A divergence or invariant
// violation is shrunk and archived in the result; only infrastructure
// problems are returned as errors.
func (h *Harness) runCase(ctx context.Context, seed int64) (*CaseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	genesisCfg := ledger.GenesisConfig{
		Accounts:     h.cfg.AccountNumber,
		BalanceRange: h.cfg.BalanceRange,
		Channels:     genesisChannels,
		Seed:         seed,
	}
	genesis := ledger.NewGenesisState(genesisCfg)

	weights := generator.DefaultWeights()
	weights.InvalidFraction = h.cfg.InvalidFraction
	ops, _ := generator.New(seed, weights).Sequence(genesis, h.cfg.MaxOperations)

	dir, err := os.MkdirTemp(h.cfg.DbTmp, "weft-case-*")
	if err != nil {
		return nil, errors.Wrap(err, "cannot create case directory")
	}
	defer func() {
		_ = os.RemoveAll(dir)
	}()
	db, err := store.Open(h.cfg.DbImpl, dir)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open case store")
	}
	defer func() {
		_ = db.Close()
	}()
	if err := ledger.WriteState(db, genesis); err != nil {
		return nil, errors.Wrap(err, "cannot seed case store")
	}
	module, err := h.newModule(db)
	if err != nil {
		return nil, errors.Wrap(err, "cannot build module under test")
	}
	defer func() {
		_ = module.Close()
	}()

	result := &CaseResult{Seed: seed}
	result.Result, err = executor.NewExecutor(h.log).Run(ctx, genesis, ops, module)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, executor.ErrDivergence) && !errors.Is(err, executor.ErrInvariantViolated) {
		return nil, err
	}
	h.log.Errorf("case seed %d failed: %v", seed, err)
	result.Err = err

	minimal, shrinkErr := h.shrink(ctx, genesisCfg, ops)
	if shrinkErr != nil {
		h.log.Warningf("shrinking failed for seed %d, archiving full sequence: %v", seed, shrinkErr)
		minimal = ops
	}
	result.Minimal = minimal
	result.Artifact, err = h.archive(seed, genesisCfg, minimal)
	if err != nil {
		return result, err
	}
	h.log.Noticef("case seed %d: reproducer with %d of %d operations written to %s",
		seed, len(minimal), len(ops), result.Artifact)
	return result, nil
}

func (h *Harness) shrink(ctx context.Context, genesisCfg ledger.GenesisConfig, ops []ledger.Operation) ([]ledger.Operation, error) {
	test := delta.NewExecutorTester(delta.TesterConfig{
		Genesis:  ledger.NewGenesisState(genesisCfg),
		DbImpl:   h.cfg.DbImpl,
		TmpDir:   h.cfg.DbTmp,
		GasLimit: h.cfg.GasLimit,
		NewModule: func(db store.Database) (wasmhost.Module, error) {
			return h.newModule(db)
		},
		Log: h.log,
	})
	minimizer := delta.NewMinimizer(delta.MinimizerConfig{
		MaxIterations: h.cfg.ShrinkBudget,
		Logger:        h.log.Debugf,
	})
	return minimizer.Minimize(ctx, ops, test)
}

// archive writes the reproducer into the configured output directory. With
// no output directory configured, nothing is written.
func (h *Harness) archive(seed int64, genesisCfg ledger.GenesisConfig, ops []ledger.Operation) (string, error) {
	if h.cfg.Output == "" {
		return "", nil
	}
	if err := os.MkdirAll(h.cfg.Output, 0755); err != nil {
		return "", errors.Wrap(err, "cannot create output directory")
	}
	path := filepath.Join(h.cfg.Output, fmt.Sprintf("failure-seed-%d.wftseq", seed))
	err := delta.WriteSequence(path, delta.Artifact{
		Seed:    seed,
		Genesis: genesisCfg,
		Ops:     ops,
	})
	if err != nil {
		return "", errors.Wrap(err, "cannot write replay artifact")
	}
	return path, nil
}

// Replay re-runs a previously archived reproducer and reports whether the
// failure still manifests.
func Replay(ctx context.Context, cfg *utils.Config, artifact delta.Artifact, log logger.Logger) error {
	dir, err := os.MkdirTemp(cfg.DbTmp, "weft-replay-*")
	if err != nil {
		return errors.Wrap(err, "cannot create replay directory")
	}
	defer func() {
		_ = os.RemoveAll(dir)
	}()
	db, err := store.Open(cfg.DbImpl, dir)
	if err != nil {
		return errors.Wrap(err, "cannot open replay store")
	}
	defer func() {
		_ = db.Close()
	}()
	genesis := ledger.NewGenesisState(artifact.Genesis)
	if err := ledger.WriteState(db, genesis); err != nil {
		return errors.Wrap(err, "cannot seed replay store")
	}
	module := wasmhost.NewLedgerModule(db, cfg.GasLimit)
	defer func() {
		_ = module.Close()
	}()

	result, err := executor.NewExecutor(log).Run(ctx, genesis, artifact.Ops, module)
	if err != nil {
		return err
	}
	log.Infof("replay of seed %d passed: %d accepted, %d rejected, %d out of gas",
		artifact.Seed, result.Accepted, result.Rejected, result.OutOfGas)
	return nil
}
