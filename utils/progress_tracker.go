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

package utils

import (
	"time"

	"github.com/0xsoniclabs/weft/logger"
)

// OperationThreshold is the number of steps between two progress reports.
const OperationThreshold = 1000

// ProgressTracker reports progress of a long-running task in regular step
// intervals.
type ProgressTracker struct {
	step      int           // step counter
	target    int           // total number of steps
	start     time.Time     // start time
	last      time.Time     // last report time
	rate      float64       // steps per second
	log       logger.Logger // logger for reporting
	threshold int           // steps between reports
}

// NewProgressTracker creates a new progress tracker for the given number of
// steps.
func NewProgressTracker(target int, log logger.Logger) *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{
		step:      0,
		target:    target,
		start:     now,
		last:      now,
		rate:      0.0,
		log:       log,
		threshold: OperationThreshold,
	}
}

// PrintProgress advances the tracker by one step and reports progress when the
// step threshold is crossed.
func (pt *ProgressTracker) PrintProgress() {
	pt.step++
	if pt.step%pt.threshold == 0 {
		now := time.Now()
		currentRate := float64(pt.threshold) / now.Sub(pt.last).Seconds()
		pt.rate = currentRate*0.1 + pt.rate*0.9
		pt.last = now
		progress := float64(pt.step) / float64(pt.target)
		elapsed := now.Sub(pt.start)
		eta := time.Duration(float64(elapsed)/progress) - elapsed
		hours, minutes, seconds := logger.ParseTime(eta)
		pt.log.Infof("%d / %d (%.1f%%), ETA %d:%02d:%02d", pt.step, pt.target, progress*100, hours, minutes, seconds)
	}
}
