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

// Package volio opens a raw volume handle and issues the device-control
// requests the rest of the indexer needs: volume metadata, single MFT
// record reads, retrieval pointers, USN bulk enumeration, and USN journal
// reads. Nothing above this package knows the numeric IOCTL codes or the
// shape of their input/output buffers.
package volio

import (
	"errors"
	"fmt"
)

// NeedsElevationError is returned by Open when the process lacks the
// privilege (typically SeBackupPrivilege / administrator) required to open
// a raw volume handle.
type NeedsElevationError struct {
	Drive string
	Cause error
}

func (e *NeedsElevationError) Error() string {
	return fmt.Sprintf("volio: opening %s needs elevation: %v", e.Drive, e.Cause)
}

func (e *NeedsElevationError) Unwrap() error { return e.Cause }

// UnsupportedFilesystemError is returned when the volume's metadata reply
// indicates it is not formatted NTFS (or the query itself is refused,
// which on this device-control interface means the same thing).
type UnsupportedFilesystemError struct {
	Drive string
}

func (e *UnsupportedFilesystemError) Error() string {
	return fmt.Sprintf("volio: %s is not an NTFS volume", e.Drive)
}

// IoFailureError wraps a failed device-control call. FRN is set when the
// call was scoped to a single file reference (e.g. the single-record read).
type IoFailureError struct {
	Op    string
	Code  uint32
	FRN   uint64
	Cause error
}

func (e *IoFailureError) Error() string {
	if e.FRN != 0 {
		return fmt.Sprintf("volio: %s (code %#x, frn %#x): %v", e.Op, e.Code, e.FRN, e.Cause)
	}
	return fmt.Sprintf("volio: %s (code %#x): %v", e.Op, e.Code, e.Cause)
}

func (e *IoFailureError) Unwrap() error { return e.Cause }

// ErrJournalIDMismatch is returned (wrapped in an IoFailureError) by
// ReadJournal when the caller's cursor names a journal ID that is no
// longer current -- the real device-control call fails the same way when
// the journal has been deleted and recreated since the cursor was
// captured. internal/follower translates this into a terminal
// JournalReset.
var ErrJournalIDMismatch = errors.New("volio: journal id in cursor does not match the volume's current journal")
