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

// Device-control codes. Numeric values match the host filesystem protocol
// bit-exactly; see https://learn.microsoft.com/windows/win32/api/winioctl/.
const (
	codeGetVolumeData     = 0x00090064 // FSCTL_GET_NTFS_VOLUME_DATA
	codeGetFileRecord     = 0x00090068 // FSCTL_GET_NTFS_FILE_RECORD
	codeGetRetrievalPtrs  = 0x00090073 // FSCTL_GET_RETRIEVAL_POINTERS
	codeEnumUSNData       = 0x000900B3 // FSCTL_ENUM_USN_DATA
	codeReadUSNJournal    = 0x000900BB // FSCTL_READ_USN_JOURNAL
	codeQueryUSNJournal   = 0x000900F4 // FSCTL_QUERY_USN_JOURNAL
)

// mftEnumData is the input to codeEnumUSNData: the bulk MFT/USN enumerator.
// Layout matches MFT_ENUM_DATA_V0.
type mftEnumData struct {
	StartFileReferenceNumber uint64
	LowUSN                   int64
	HighUSN                  int64
}

// readUSNJournalData is the input to codeReadUSNJournal. Layout matches
// READ_USN_JOURNAL_DATA_V0.
type readUSNJournalData struct {
	StartUSN          int64
	ReasonMask        uint32
	ReturnOnlyOnClose uint32
	Timeout           uint64
	BytesToWaitFor    uint64
	JournalID         uint64
}

// queryUSNJournalData is the output of codeQueryUSNJournal. Layout matches
// USN_JOURNAL_DATA_V0.
type queryUSNJournalData struct {
	JournalID       uint64
	FirstUSN        int64
	NextUSN         int64
	LowestValidUSN  int64
	MaxUSN          int64
	MaximumSize     uint64
	AllocationDelta uint64
}

// getFileRecordInput is the input to codeGetFileRecord: an 8-byte file
// reference naming the record to fetch.
type getFileRecordInput struct {
	FileReferenceNumber uint64
}

// retrievalPointersInput is the input to codeGetRetrievalPtrs: the starting
// VCN of the extent list requested.
type retrievalPointersInput struct {
	StartingVCN int64
}

const (
	// enumBufferSize is the output buffer used for bulk USN enumeration
	// and journal reads; large enough to amortise the device-control call
	// across many records per round trip.
	enumBufferSize = 1 << 16

	// maxFileRecordBufferSize bounds the single-record read reply;
	// ReadFileRecord returns the bytes the device writes into it and does
	// not consult VolumeData.RecordSize().
	maxFileRecordBufferSize = 4096
)

// JournalCursor identifies a resume point in the change journal: the
// journal's identity plus the next USN to read from.
type JournalCursor struct {
	JournalID uint64
	NextUSN   int64
}
