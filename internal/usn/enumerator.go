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

// Package usn drives bulk enumeration of a volume's MFT via the
// change-journal enumeration device control, yielding a lazy stream of
// (frn, parent_frn, name, attributes) tuples with no size information.
package usn

import (
	"context"

	"github.com/googlecloudplatform/ntfsindex/internal/ntfsfmt"
	"github.com/googlecloudplatform/ntfsindex/internal/volio"
)

// Entry is one tuple produced by the enumerator: everything the USN
// change journal knows about a file or directory without reading its MFT
// record.
type Entry struct {
	Reference       ntfsfmt.Reference
	ParentReference ntfsfmt.Reference
	Name            string
	Attributes      uint32
}

// IsDirectory reports whether the entry's file attributes mark it as a
// directory.
func (e Entry) IsDirectory() bool {
	return e.Attributes&0x10 != 0
}

// Enumerator is a single-pass, finite iterator over every record in a
// volume's MFT, driven by repeated bulk-enumeration device-control calls.
type Enumerator struct {
	gw         volio.Gateway
	nextRecord uint64
	done       bool
}

// New builds an Enumerator over gw, starting from record 0.
func New(gw volio.Gateway) *Enumerator {
	return &Enumerator{gw: gw}
}

// Next issues one bulk-enumeration round trip and returns the Entries it
// carried. It returns (nil, false, nil) once the device control reports
// no further records (a reply shorter than the cursor header), the
// signal that iteration is complete. A record that fails to decode ends
// the batch: it and the records after it in the same reply are dropped,
// and the entries decoded before it are returned.
func (e *Enumerator) Next(ctx context.Context) ([]Entry, bool, error) {
	if e.done {
		return nil, false, nil
	}

	result, err := e.gw.EnumerateUSN(ctx, e.nextRecord)
	if err != nil {
		return nil, false, err
	}

	if len(result.Records) == 0 {
		e.done = true
		return nil, false, nil
	}
	e.nextRecord = result.NextRecordNumber

	var entries []Entry
	for off := 0; off < len(result.Records); {
		rec, decErr := ntfsfmt.DecodeUSNRecord(result.Records[off:])
		if decErr != nil {
			// Can't determine this record's length if the header itself
			// is malformed; the rest of the batch is unrecoverable.
			break
		}
		entries = append(entries, Entry{
			Reference:       rec.FileReference,
			ParentReference: rec.ParentReference,
			Name:            rec.FileName,
			Attributes:      rec.FileAttributes,
		})
		off += int(rec.RecordLength)
	}

	return entries, true, nil
}

// Done reports whether the enumerator has exhausted the MFT.
func (e *Enumerator) Done() bool { return e.done }
