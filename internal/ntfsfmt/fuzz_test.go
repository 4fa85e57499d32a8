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

package ntfsfmt

import (
	"testing"
)

// Every decoder in this package handles disk-controlled input; the fuzz
// targets below assert the shared contract that adversarial bytes produce
// a value or a typed error, never a panic or an unterminated walk.

func FuzzDecodeMFTRecord(f *testing.F) {
	f.Add(buildHeaderBytes(5, MFTFlagInUse|MFTFlagDirectory, 56))
	f.Add(make([]byte, 1024))
	truncated := buildHeaderBytes(7, MFTFlagInUse, 56)
	f.Add(truncated[:40])

	f.Fuzz(func(t *testing.T, data []byte) {
		// Fixups mutate the buffer; the fuzzer owns data, so copy first.
		record := append([]byte(nil), data...)
		if len(record) >= 4 {
			copy(record[0:4], mftMagic[:])
		}

		h, err := DecodeMFTRecordHeader(record)
		if err != nil {
			return
		}
		if err := VerifyAndApplyFixups(record, h.UsaOffset, h.UsaCount); err != nil {
			return
		}
		_ = WalkAttributes(record, h.FirstAttributeOffset, func(a Attribute) error {
			if !a.NonResident {
				_, _ = a.ResidentValue()
			}
			return nil
		})
	})
}

func FuzzWalkAttributes(f *testing.F) {
	var valid []byte
	valid = append(valid, buildResidentAttribute(AttrTypeStandardInformation, 0, make([]byte, 48))...)
	valid = append(valid, buildNonResidentAttribute(AttrTypeData, 1, 8192, 8000, []byte{0x11, 0x02, 0x03, 0x00})...)
	valid = append(valid, endMarker()...)
	f.Add(valid, uint16(0))
	f.Add([]byte{}, uint16(0))
	f.Add(make([]byte, 1024), uint16(1023))

	f.Fuzz(func(t *testing.T, record []byte, firstOffset uint16) {
		visits := 0
		_ = WalkAttributes(record, firstOffset, func(a Attribute) error {
			visits++
			// Each attribute consumes at least a header's worth of bytes,
			// so the walk is bounded by the record length.
			if visits > len(record) {
				t.Fatalf("attribute walk did not terminate: %d visits over %d bytes", visits, len(record))
			}
			return nil
		})
	})
}

func FuzzDecodeDataRuns(f *testing.F) {
	f.Add([]byte{0x21, 0x10, 0x00, 0x01, 0x00})       // one run, then terminator
	f.Add([]byte{0x01, 0x05, 0x00})                   // sparse run
	f.Add([]byte{0x31, 0x02, 0xFF, 0xFF, 0xFF, 0x00}) // negative offset
	f.Add([]byte{0xF1, 0x01})                         // header promises more bytes than follow

	f.Fuzz(func(t *testing.T, runData []byte) {
		a := Attribute{
			Type:           AttrTypeData,
			NonResident:    true,
			DataRunsOffset: 0,
			Raw:            runData,
		}
		runs := DecodeDataRuns(a)
		// Sanity on the diagnostic sum: sparse runs contribute nothing.
		sum := SumAllocatedBytes(runs, 4096)
		sparseOnly := true
		for _, r := range runs {
			if !r.Sparse {
				sparseOnly = false
			}
		}
		if sparseOnly && sum != 0 {
			t.Fatalf("sparse-only run list produced nonzero allocated sum %d", sum)
		}
	})
}

func FuzzDecodeUSNRecord(f *testing.F) {
	f.Add(buildUSNRecordV2(NewReference(20, 1), NewReference(5, 1), 64, USNReasonFileCreate, 0x20, "fuzz.txt"))
	f.Add(buildUSNRecordV3(NewReference(21, 1), NewReference(5, 1), 65, USNReasonFileDelete, 0, "gone"))
	f.Add(make([]byte, 60))
	f.Add([]byte{0xFF, 0xFF, 0xFF, 0xFF})

	f.Fuzz(func(t *testing.T, data []byte) {
		rec, err := DecodeUSNRecord(data)
		if err != nil {
			return
		}
		// The declared length frames batch iteration; a decode that
		// succeeded while claiming bytes past the buffer would walk the
		// enumerator and the follower off the end of their batches.
		if int(rec.RecordLength) > len(data) {
			t.Fatalf("RecordLength %d exceeds input length %d", rec.RecordLength, len(data))
		}
		if rec.RecordLength < 60 {
			t.Fatalf("RecordLength %d below the fixed-header floor", rec.RecordLength)
		}
	})
}
