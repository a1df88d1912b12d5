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

package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFuzzApp_ReplayReachesTheArtifact(t *testing.T) {
	// the replay command registers only a subset of the flags; it must get
	// past config validation and fail on the missing artifact itself
	missing := filepath.Join(t.TempDir(), "missing.wftseq")
	err := FuzzApp.Run([]string{"weft-fuzz", "replay", missing})
	require.ErrorContains(t, err, "open sequence file")
}

func TestFuzzApp_ScenarioRequiresNodeBinary(t *testing.T) {
	err := FuzzApp.Run([]string{"weft-fuzz", "scenario"})
	require.ErrorContains(t, err, "requires --node-binary")
}

func TestFuzzApp_FuzzRunsACleanCampaign(t *testing.T) {
	err := FuzzApp.Run([]string{"weft-fuzz", "fuzz",
		"--cases=2", "--max-ops=20", "--account-number=4",
		"--db-tmp=" + t.TempDir(), "--output=" + t.TempDir(),
		"--log=critical",
	})
	require.NoError(t, err)
}
