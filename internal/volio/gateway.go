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

package volio

import (
	"context"

	"github.com/googlecloudplatform/ntfsindex/internal/ntfsfmt"
)

// EnumResult is one round trip of bulk USN enumeration: the cursor to pass
// on the next call, and the raw concatenated USN records returned.
type EnumResult struct {
	NextRecordNumber uint64
	Records          []byte
}

// JournalReadResult is one round trip of a change-journal read.
type JournalReadResult struct {
	NextUSN int64
	Records []byte
}

// Gateway is a raw, opened NTFS volume handle. Every method issues exactly
// one device-control call and returns bytes or structures that
// internal/ntfsfmt decodes; Gateway itself never interprets NTFS structure.
//
// A Gateway's handle is used from one goroutine at a time; internal/scan
// opens a separate Gateway for each of its workers.
type Gateway interface {
	// VolumeData returns the volume's decoded metadata, validating along
	// the way that the volume is in fact NTFS.
	VolumeData(ctx context.Context) (*ntfsfmt.VolumeData, error)

	// ReadFileRecord fetches the raw, fixup-armored bytes of one MFT
	// record by file reference.
	ReadFileRecord(ctx context.Context, frn ntfsfmt.Reference) ([]byte, error)

	// RetrievalPointers fetches the raw extent-list reply for a file's
	// data runs starting at startVCN.
	RetrievalPointers(ctx context.Context, frn ntfsfmt.Reference, startVCN int64) ([]byte, error)

	// EnumerateUSN issues one bulk-enumeration call starting at
	// startRecordNumber, requesting all records regardless of USN age.
	EnumerateUSN(ctx context.Context, startRecordNumber uint64) (EnumResult, error)

	// QueryJournal returns the change journal's current identity and
	// next USN, used to capture a resume cursor before a scan begins.
	QueryJournal(ctx context.Context) (JournalCursor, error)

	// ReadJournal issues one incremental journal read from cursor.
	ReadJournal(ctx context.Context, cursor JournalCursor) (JournalReadResult, error)

	// Close releases the underlying volume handle.
	Close() error
}
