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
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildUSNRecordV2 encodes one USN_RECORD_V2: 60-byte fixed header plus a
// variable-length UTF-16LE file name at the end.
func buildUSNRecordV2(fileRef, parentRef Reference, usn int64, reason, attrs uint32, name string) []byte {
	nameBytes := utf16LEBytes(name)
	const fixedFieldsOffset = 24
	nameOffset := fixedFieldsOffset + 36
	length := nameOffset + len(nameBytes)

	buf := make([]byte, length)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(length))
	binary.LittleEndian.PutUint16(buf[4:6], 2) // major version
	binary.LittleEndian.PutUint16(buf[6:8], 0)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(fileRef))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(parentRef))

	f := fixedFieldsOffset
	binary.LittleEndian.PutUint64(buf[f:f+8], uint64(usn))
	binary.LittleEndian.PutUint64(buf[f+8:f+16], 0) // timestamp
	binary.LittleEndian.PutUint32(buf[f+16:f+20], reason)
	binary.LittleEndian.PutUint32(buf[f+20:f+24], 0) // source info
	binary.LittleEndian.PutUint32(buf[f+24:f+28], 0) // security id
	binary.LittleEndian.PutUint32(buf[f+28:f+32], attrs)
	binary.LittleEndian.PutUint16(buf[f+32:f+34], uint16(len(nameBytes)))
	binary.LittleEndian.PutUint16(buf[f+34:f+36], uint16(nameOffset))
	copy(buf[nameOffset:], nameBytes)

	return buf
}

// buildUSNRecordV3 encodes one USN_RECORD_V3: identical fixed tail to v2
// but with 16-byte (here, low-8-bytes-significant) file/parent references.
func buildUSNRecordV3(fileRef, parentRef Reference, usn int64, reason, attrs uint32, name string) []byte {
	nameBytes := utf16LEBytes(name)
	const fixedFieldsOffset = 40
	nameOffset := fixedFieldsOffset + 36
	length := nameOffset + len(nameBytes)

	buf := make([]byte, length)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(length))
	binary.LittleEndian.PutUint16(buf[4:6], 3)
	binary.LittleEndian.PutUint16(buf[6:8], 0)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(fileRef))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(parentRef))

	f := fixedFieldsOffset
	binary.LittleEndian.PutUint64(buf[f:f+8], uint64(usn))
	binary.LittleEndian.PutUint32(buf[f+16:f+20], reason)
	binary.LittleEndian.PutUint32(buf[f+28:f+32], attrs)
	binary.LittleEndian.PutUint16(buf[f+32:f+34], uint16(len(nameBytes)))
	binary.LittleEndian.PutUint16(buf[f+34:f+36], uint16(nameOffset))
	copy(buf[nameOffset:], nameBytes)

	return buf
}

func TestDecodeUSNRecord_V2(t *testing.T) {
	fileRef := NewReference(100, 1)
	parentRef := NewReference(5, 1)
	buf := buildUSNRecordV2(fileRef, parentRef, 4096, USNReasonFileCreate, 0x20, "report.docx")

	rec, err := DecodeUSNRecord(buf)

	require.NoError(t, err)
	assert.Equal(t, fileRef, rec.FileReference)
	assert.Equal(t, parentRef, rec.ParentReference)
	assert.Equal(t, int64(4096), rec.USN)
	assert.Equal(t, "report.docx", rec.FileName)
	assert.Equal(t, uint32(len(buf)), rec.RecordLength)
	assert.False(t, rec.IsDirectory())
}

func TestDecodeUSNRecord_V3(t *testing.T) {
	fileRef := NewReference(200, 2)
	parentRef := NewReference(5, 1)
	buf := buildUSNRecordV3(fileRef, parentRef, 77, USNReasonFileDelete, 0x10, "old")

	rec, err := DecodeUSNRecord(buf)

	require.NoError(t, err)
	assert.Equal(t, fileRef, rec.FileReference)
	assert.Equal(t, parentRef, rec.ParentReference)
	assert.Equal(t, "old", rec.FileName)
	assert.True(t, rec.IsDirectory())
}

func TestDecodeUSNRecord_MultipleRecordsInABatch(t *testing.T) {
	first := buildUSNRecordV2(NewReference(1, 1), NewReference(5, 1), 10, USNReasonFileCreate, 0, "a")
	second := buildUSNRecordV2(NewReference(2, 1), NewReference(5, 1), 11, USNReasonFileCreate, 0, "b")
	batch := append(append([]byte{}, first...), second...)

	rec1, err := DecodeUSNRecord(batch)
	require.NoError(t, err)
	assert.Equal(t, "a", rec1.FileName)

	rec2, err := DecodeUSNRecord(batch[rec1.RecordLength:])
	require.NoError(t, err)
	assert.Equal(t, "b", rec2.FileName)
}

func TestDecodeUSNRecord_Truncated(t *testing.T) {
	_, err := DecodeUSNRecord(make([]byte, 2))

	var truncated *TruncatedError
	require.ErrorAs(t, err, &truncated)
}

func TestDecodeUSNRecord_RecordLengthOutOfBounds(t *testing.T) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], 1000)

	_, err := DecodeUSNRecord(buf)

	var malformed *MalformedFieldError
	require.ErrorAs(t, err, &malformed)
}

func TestDecodeUSNRecord_UnsupportedVersion(t *testing.T) {
	buf := buildUSNRecordV2(NewReference(1, 1), NewReference(5, 1), 1, 0, 0, "x")
	binary.LittleEndian.PutUint16(buf[4:6], 9)

	_, err := DecodeUSNRecord(buf)

	var malformed *MalformedFieldError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "MajorVersion", malformed.Field)
}

func TestDecodeUSNRecord_NameRunsPastEnd(t *testing.T) {
	buf := buildUSNRecordV2(NewReference(1, 1), NewReference(5, 1), 1, 0, 0, "x")
	binary.LittleEndian.PutUint16(buf[24+32:24+34], 200) // name length now absurd

	_, err := DecodeUSNRecord(buf)

	var malformed *MalformedFieldError
	require.ErrorAs(t, err, &malformed)
}
