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
	"sync"

	"github.com/googlecloudplatform/ntfsindex/internal/ntfsfmt"
)

// journalEvent is one canned record appended to a Fake's change journal,
// tagged with the USN it should be reported at.
type journalEvent struct {
	usn int64
	raw []byte
}

// Fake is an in-memory Gateway for tests: it never touches real hardware
// and runs on every OS. Callers seed it with the volume metadata, MFT
// records, a USN enumeration stream and a change-journal event list, then
// exercise internal/mft, internal/usn, internal/scan and
// internal/follower against it exactly as they would a real Gateway.
type Fake struct {
	mu sync.Mutex

	volume *ntfsfmt.VolumeData

	// records is keyed by MFT record number; ReadFileRecord fails with
	// IoFailureError if the number is absent.
	records map[uint64][]byte

	// enumBatches is the sequence of raw buffers EnumerateUSN hands back
	// in order, one per call, mimicking repeated bulk-enumeration round
	// trips; the final batch is always followed by an empty result.
	enumBatches [][]byte
	enumCursor  int

	journalID     uint64
	journalEvents []journalEvent

	closed bool
}

// NewFake constructs an empty Fake reporting the given volume metadata.
func NewFake(volume *ntfsfmt.VolumeData) *Fake {
	return &Fake{
		volume:  volume,
		records: make(map[uint64][]byte),
	}
}

// AddRecord registers the raw bytes ReadFileRecord returns for recordNumber.
func (f *Fake) AddRecord(recordNumber uint64, raw []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[recordNumber] = raw
}

// SetEnumBatches sets the sequence of raw buffers successive EnumerateUSN
// calls return, simulating pagination across several device-control round
// trips the way a real multi-megabyte MFT would.
func (f *Fake) SetEnumBatches(batches [][]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enumBatches = batches
	f.enumCursor = 0
}

// SetJournalID sets the identity QueryJournal reports and ReadJournal
// validates incoming cursors against.
func (f *Fake) SetJournalID(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.journalID = id
}

// AppendJournalEvent appends one encoded USN record to the journal's
// timeline, reported at the given USN by ReadJournal once a cursor at or
// before it is presented.
func (f *Fake) AppendJournalEvent(usn int64, raw []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.journalEvents = append(f.journalEvents, journalEvent{usn: usn, raw: raw})
}

func (f *Fake) VolumeData(ctx context.Context) (*ntfsfmt.VolumeData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.volume == nil {
		return nil, &UnsupportedFilesystemError{Drive: "fake"}
	}
	v := *f.volume
	return &v, nil
}

func (f *Fake) ReadFileRecord(ctx context.Context, frn ntfsfmt.Reference) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.records[frn.RecordNumber()]
	if !ok {
		return nil, &IoFailureError{Op: "GetFileRecord", Code: codeGetFileRecord, FRN: uint64(frn)}
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

func (f *Fake) RetrievalPointers(ctx context.Context, frn ntfsfmt.Reference, startVCN int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, &IoFailureError{Op: "GetRetrievalPointers", Code: codeGetRetrievalPtrs, FRN: uint64(frn),
		Cause: errUnsupportedByFake}
}

func (f *Fake) EnumerateUSN(ctx context.Context, startRecordNumber uint64) (EnumResult, error) {
	if err := ctx.Err(); err != nil {
		return EnumResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enumCursor >= len(f.enumBatches) {
		return EnumResult{NextRecordNumber: startRecordNumber}, nil
	}
	batch := f.enumBatches[f.enumCursor]
	f.enumCursor++
	next := startRecordNumber
	if f.enumCursor < len(f.enumBatches) {
		next = startRecordNumber + 1
	}
	return EnumResult{NextRecordNumber: next, Records: batch}, nil
}

func (f *Fake) QueryJournal(ctx context.Context) (JournalCursor, error) {
	if err := ctx.Err(); err != nil {
		return JournalCursor{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return JournalCursor{JournalID: f.journalID, NextUSN: f.nextUSNLocked(0)}, nil
}

func (f *Fake) ReadJournal(ctx context.Context, cursor JournalCursor) (JournalReadResult, error) {
	if err := ctx.Err(); err != nil {
		return JournalReadResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if cursor.JournalID != f.journalID {
		return JournalReadResult{}, &IoFailureError{Op: "ReadUSNJournal", Code: codeReadUSNJournal, Cause: ErrJournalIDMismatch}
	}

	var records []byte
	next := cursor.NextUSN
	for _, ev := range f.journalEvents {
		if ev.usn < cursor.NextUSN {
			continue
		}
		records = append(records, ev.raw...)
		if ev.usn >= next {
			next = ev.usn + 1
		}
	}
	return JournalReadResult{NextUSN: next, Records: records}, nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close has been called, for tests that assert
// handles are released on every exit path.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) nextUSNLocked(min int64) int64 {
	next := min
	for _, ev := range f.journalEvents {
		if ev.usn+1 > next {
			next = ev.usn + 1
		}
	}
	return next
}

var errUnsupportedByFake = fakeUnsupportedError("volio: Fake does not model retrieval pointers")

type fakeUnsupportedError string

func (e fakeUnsupportedError) Error() string { return string(e) }
