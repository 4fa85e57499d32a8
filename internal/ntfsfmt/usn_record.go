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

import "encoding/binary"

// USN reason bits, tested individually against USNRecord.Reason.
const (
	USNReasonDataOverwrite   uint32 = 0x00000001
	USNReasonDataExtend      uint32 = 0x00000002
	USNReasonDataTruncation  uint32 = 0x00000004
	USNReasonBasicInfoChange uint32 = 0x00008000
	USNReasonRenameOldName   uint32 = 0x00001000
	USNReasonRenameNewName   uint32 = 0x00002000
	USNReasonFileCreate      uint32 = 0x00000100
	USNReasonFileDelete      uint32 = 0x00000200
	USNReasonClose           uint32 = 0x80000000
)

// usnRecordV2HeaderSize is the minimum byte count of a USN_RECORD_V2
// before its variable-length file name: RecordLength/Version (8) +
// FileReferenceNumber/ParentFileReferenceNumber (16) + Usn/TimeStamp (16)
// + Reason/SourceInfo/SecurityId/FileAttributes (16) + FileNameLength/
// FileNameOffset (4) = 60 bytes. A V3 record's own fixed tail is longer
// still (checked separately below), so this is a safe floor for either
// version before MajorVersion has even been read.
const usnRecordV2HeaderSize = 60

// USNRecord is the decoded form of a single change-journal record,
// version 2 (8-byte file references) or version 3 (16-byte, of which only
// the low 8 bytes -- the ones this decoder keeps -- are significant for a
// volume of this size).
type USNRecord struct {
	RecordLength    uint32
	MajorVersion    uint16
	MinorVersion    uint16
	FileReference   Reference
	ParentReference Reference
	USN             int64
	Timestamp       uint64
	Reason          uint32
	SourceInfo      uint32
	SecurityID      uint32
	FileAttributes  uint32
	FileName        string
}

// DecodeUSNRecord decodes one USN_RECORD_V2 or USN_RECORD_V3 from the front
// of buf. It returns the record and does not itself advance past it; callers
// drive iteration with Record.RecordLength, the framing used by both the
// bulk enumerator and the journal reader.
func DecodeUSNRecord(buf []byte) (*USNRecord, error) {
	if len(buf) < 4 {
		return nil, &TruncatedError{Structure: "USNRecord", Need: 4, Have: len(buf)}
	}
	recordLength := binary.LittleEndian.Uint32(buf[0:4])
	if recordLength < usnRecordV2HeaderSize || int(recordLength) > len(buf) {
		return nil, &MalformedFieldError{Structure: "USNRecord", Field: "RecordLength", Reason: "out of bounds"}
	}
	rec := buf[:recordLength]

	majorVersion := binary.LittleEndian.Uint16(rec[4:6])
	minorVersion := binary.LittleEndian.Uint16(rec[6:8])

	var fileRefOffset, parentRefOffset, fixedFieldsOffset int
	switch majorVersion {
	case 2:
		fileRefOffset = 8
		parentRefOffset = 16
		fixedFieldsOffset = 24
	case 3:
		fileRefOffset = 8
		parentRefOffset = 24
		fixedFieldsOffset = 40
	default:
		return nil, &MalformedFieldError{Structure: "USNRecord", Field: "MajorVersion", Reason: "unsupported version"}
	}

	if fixedFieldsOffset+36 > len(rec) {
		return nil, &TruncatedError{Structure: "USNRecord", Need: fixedFieldsOffset + 36, Have: len(rec)}
	}

	// Only the low 8 bytes of a 16-byte v3 reference are read; this
	// volume's record numbers fit in 48 bits regardless of version.
	fileRef := Reference(binary.LittleEndian.Uint64(rec[fileRefOffset : fileRefOffset+8]))
	parentRef := Reference(binary.LittleEndian.Uint64(rec[parentRefOffset : parentRefOffset+8]))

	f := fixedFieldsOffset
	usn := int64(binary.LittleEndian.Uint64(rec[f : f+8]))
	timestamp := binary.LittleEndian.Uint64(rec[f+8 : f+16])
	reason := binary.LittleEndian.Uint32(rec[f+16 : f+20])
	sourceInfo := binary.LittleEndian.Uint32(rec[f+20 : f+24])
	securityID := binary.LittleEndian.Uint32(rec[f+24 : f+28])
	fileAttributes := binary.LittleEndian.Uint32(rec[f+28 : f+32])
	nameLength := binary.LittleEndian.Uint16(rec[f+32 : f+34])
	nameOffset := binary.LittleEndian.Uint16(rec[f+34 : f+36])

	if int(nameOffset)+int(nameLength) > len(rec) {
		return nil, &MalformedFieldError{Structure: "USNRecord", Field: "FileName", Reason: "runs past end of record"}
	}
	name, err := DecodeUTF16LEName(rec[nameOffset : int(nameOffset)+int(nameLength)])
	if err != nil {
		return nil, err
	}

	return &USNRecord{
		RecordLength:    recordLength,
		MajorVersion:    majorVersion,
		MinorVersion:    minorVersion,
		FileReference:   fileRef,
		ParentReference: parentRef,
		USN:             usn,
		Timestamp:       timestamp,
		Reason:          reason,
		SourceInfo:      sourceInfo,
		SecurityID:      securityID,
		FileAttributes:  fileAttributes,
		FileName:        name,
	}, nil
}

// IsDirectory reports whether the record's file attributes mark it as a
// directory (FILE_ATTRIBUTE_DIRECTORY, bit 0x10).
func (r *USNRecord) IsDirectory() bool {
	return r.FileAttributes&0x10 != 0
}
