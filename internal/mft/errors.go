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

import (
	"fmt"

	"github.com/googlecloudplatform/ntfsindex/internal/ntfsfmt"
)

// CorruptionThresholdExceededError aborts a scan once the fraction of
// records failing fixup/signature checks crosses corruptionRateThresholdPct.
type CorruptionThresholdExceededError struct {
	Total, Corrupt int64
}

func (e *CorruptionThresholdExceededError) Error() string {
	return fmt.Sprintf("mft: corruption rate exceeded threshold: %d/%d records failed fixup or signature checks", e.Corrupt, e.Total)
}

// SkippedRecordError is returned by ReadRecord for a record that failed
// its fixup or signature check. It is never fatal by itself -- callers
// log it, skip the record, and continue -- but it feeds the corruption
// tracker that can abort the scan via CorruptionThresholdExceededError.
type SkippedRecordError struct {
	Reference ntfsfmt.Reference
	Cause     error
}

func (e *SkippedRecordError) Error() string {
	return fmt.Sprintf("mft: skipping record %#x: %v", uint64(e.Reference), e.Cause)
}

func (e *SkippedRecordError) Unwrap() error { return e.Cause }
