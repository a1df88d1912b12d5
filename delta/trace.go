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

package delta

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/0xsoniclabs/weft/ledger"
)

// Artifact is a persisted counterexample: the genesis configuration it was
// found against and the failing operation sequence.
type Artifact struct {
	Seed    int64
	Genesis ledger.GenesisConfig
	Ops     []ledger.Operation
}

const artifactHeader = "weft-sequence v1"

// WriteSequence persists an artifact as a line-oriented text file, one
// encoded operation per line. Paths ending in .gz are gzip compressed.
func WriteSequence(path string, artifact Artifact) error {
	if len(artifact.Ops) == 0 {
		return fmt.Errorf("delta: cannot write empty sequence")
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("delta: ensure output directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("delta: create sequence file: %w", err)
	}
	defer file.Close()

	var out io.Writer = file
	var zw *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		zw = gzip.NewWriter(file)
		out = zw
	}
	writer := bufio.NewWriter(out)

	fmt.Fprintln(writer, artifactHeader)
	fmt.Fprintf(writer, "seed %d\n", artifact.Seed)
	fmt.Fprintf(writer, "genesis %d %d %d %d\n",
		artifact.Genesis.Accounts, artifact.Genesis.BalanceRange,
		artifact.Genesis.Channels, artifact.Genesis.Seed)
	for _, op := range artifact.Ops {
		encoded, err := ledger.EncodeOperation(op)
		if err != nil {
			return err
		}
		fmt.Fprintf(writer, "op %v %s\n", ledger.OpText[op.Kind()], hex.EncodeToString(encoded))
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("delta: flush sequence: %w", err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return fmt.Errorf("delta: close gzip stream: %w", err)
		}
	}
	return nil
}

// LoadSequence reads an artifact written by WriteSequence.
func LoadSequence(path string) (Artifact, error) {
	file, err := os.Open(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("delta: open sequence file: %w", err)
	}
	defer file.Close()

	var in io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(file)
		if err != nil {
			return Artifact{}, fmt.Errorf("delta: open gzip stream: %w", err)
		}
		defer zr.Close()
		in = zr
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !scanner.Scan() || strings.TrimSpace(scanner.Text()) != artifactHeader {
		return Artifact{}, fmt.Errorf("delta: %s is not a sequence file", path)
	}

	artifact := Artifact{}
	lineNo := 1
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "seed":
			if len(fields) != 2 {
				return Artifact{}, fmt.Errorf("delta: parse %s:%d: malformed seed line", path, lineNo)
			}
			if artifact.Seed, err = strconv.ParseInt(fields[1], 10, 64); err != nil {
				return Artifact{}, fmt.Errorf("delta: parse %s:%d: %w", path, lineNo, err)
			}
		case "genesis":
			if len(fields) != 5 {
				return Artifact{}, fmt.Errorf("delta: parse %s:%d: malformed genesis line", path, lineNo)
			}
			values := make([]int64, 4)
			for i, field := range fields[1:] {
				if values[i], err = strconv.ParseInt(field, 10, 64); err != nil {
					return Artifact{}, fmt.Errorf("delta: parse %s:%d: %w", path, lineNo, err)
				}
			}
			artifact.Genesis = ledger.GenesisConfig{
				Accounts:     int(values[0]),
				BalanceRange: values[1],
				Channels:     int(values[2]),
				Seed:         values[3],
			}
		case "op":
			if len(fields) != 3 {
				return Artifact{}, fmt.Errorf("delta: parse %s:%d: malformed op line", path, lineNo)
			}
			encoded, err := hex.DecodeString(fields[2])
			if err != nil {
				return Artifact{}, fmt.Errorf("delta: parse %s:%d: %w", path, lineNo, err)
			}
			op, err := ledger.DecodeOperation(encoded)
			if err != nil {
				return Artifact{}, fmt.Errorf("delta: parse %s:%d: %w", path, lineNo, err)
			}
			artifact.Ops = append(artifact.Ops, op)
		default:
			return Artifact{}, fmt.Errorf("delta: parse %s:%d: unknown directive %q", path, lineNo, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return Artifact{}, fmt.Errorf("delta: scan %s: %w", path, err)
	}
	if len(artifact.Ops) == 0 {
		return Artifact{}, fmt.Errorf("delta: sequence %s contains no operations", path)
	}
	return artifact, nil
}
