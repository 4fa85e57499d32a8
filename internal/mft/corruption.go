// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mft

import "sync/atomic"

// corruptionMinSamples is the number of records processed before the
// corruption rate is judged at all -- a volume's first few records being
// corrupt shouldn't abort a million-record scan.
const corruptionMinSamples = 200

// corruptionRateThresholdPct is a percentage of records seen; a scan
// aborts as corrupt once more than this fraction fail fixup or signature
// checks.
const corruptionRateThresholdPct = 1

// corruptionTracker counts fixup/signature failures across a scan and
// reports when the rate crosses the abort threshold. Safe for concurrent
// use by the worker pool's goroutines.
type corruptionTracker struct {
	total    atomic.Int64
	corrupt  atomic.Int64
}

func (c *corruptionTracker) recordOK() {
	c.total.Add(1)
}

func (c *corruptionTracker) recordCorrupt() {
	c.total.Add(1)
	c.corrupt.Add(1)
}

// exceeded reports whether the corrupt/total rate has crossed the abort
// threshold, once enough records have been sampled to make that judgment
// meaningful.
func (c *corruptionTracker) exceeded() bool {
	total := c.total.Load()
	if total < corruptionMinSamples {
		return false
	}
	return c.corrupt.Load()*100 > total*corruptionRateThresholdPct
}
