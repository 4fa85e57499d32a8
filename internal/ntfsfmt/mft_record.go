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

const (
	mftRecordHeaderSize = 48
	sectorSize          = 512

	// MFTFlagInUse marks a record as currently allocated to a file/directory.
	MFTFlagInUse = 1 << 0
	// MFTFlagDirectory marks a record as describing a directory.
	MFTFlagDirectory = 1 << 1
)

var mftMagic = [4]byte{'F', 'I', 'L', 'E'}

// MFTRecordHeader is the fixed-size header at the front of every MFT
// record. Its fields lie in the first sector, ahead of the first
// fixup-protected position, so it decodes the same before or after fixups.
type MFTRecordHeader struct {
	UsaOffset            uint16
	UsaCount             uint16
	LogSequenceNumber    uint64
	SequenceNumber       uint16
	HardLinkCount        uint16
	FirstAttributeOffset uint16
	Flags                uint16
	UsedSize             uint32
	AllocatedSize        uint32
	BaseRecordReference  uint64
	NextAttributeID      uint16
	RecordNumber         uint32
}

// InUse reports whether the in-use flag is set.
func (h *MFTRecordHeader) InUse() bool { return h.Flags&MFTFlagInUse != 0 }

// IsDirectory reports whether the directory flag is set.
func (h *MFTRecordHeader) IsDirectory() bool { return h.Flags&MFTFlagDirectory != 0 }

// IsExtensionRecord reports whether this record is an extension of some
// other base record (and should be skipped by callers working one record
// at a time; its attributes are only reachable via the base record's
// attribute list).
func (h *MFTRecordHeader) IsExtensionRecord() bool {
	return h.BaseRecordReference&RecordNumberMask != 0
}

// DecodeMFTRecordHeader parses the fixed 48-byte MFT record header. Callers
// run it before VerifyAndApplyFixups, which takes its UsaOffset/UsaCount.
// It checks the "FILE" signature but does not itself apply fixups.
func DecodeMFTRecordHeader(buf []byte) (*MFTRecordHeader, error) {
	if len(buf) < mftRecordHeaderSize {
		return nil, &TruncatedError{Structure: "MFTRecordHeader", Need: mftRecordHeaderSize, Have: len(buf)}
	}
	if buf[0] != mftMagic[0] || buf[1] != mftMagic[1] || buf[2] != mftMagic[2] || buf[3] != mftMagic[3] {
		return nil, &BadSignatureError{Structure: "MFTRecordHeader", Got: append([]byte(nil), buf[0:4]...)}
	}

	h := &MFTRecordHeader{
		UsaOffset:            binary.LittleEndian.Uint16(buf[4:6]),
		UsaCount:             binary.LittleEndian.Uint16(buf[6:8]),
		LogSequenceNumber:    binary.LittleEndian.Uint64(buf[8:16]),
		SequenceNumber:       binary.LittleEndian.Uint16(buf[16:18]),
		HardLinkCount:        binary.LittleEndian.Uint16(buf[18:20]),
		FirstAttributeOffset: binary.LittleEndian.Uint16(buf[20:22]),
		Flags:                binary.LittleEndian.Uint16(buf[22:24]),
		UsedSize:             binary.LittleEndian.Uint32(buf[24:28]),
		AllocatedSize:        binary.LittleEndian.Uint32(buf[28:32]),
		BaseRecordReference:  binary.LittleEndian.Uint64(buf[32:40]),
		NextAttributeID:      binary.LittleEndian.Uint16(buf[40:42]),
		RecordNumber:         binary.LittleEndian.Uint32(buf[44:48]),
	}

	if int(h.FirstAttributeOffset) > len(buf) {
		return nil, &MalformedFieldError{Structure: "MFTRecordHeader", Field: "FirstAttributeOffset", Reason: "past end of record"}
	}

	return h, nil
}

// VerifyAndApplyFixups checks the multi-sector fixup array in place and,
// if every sector's trailing two bytes match the recorded update-sequence
// number, overwrites those two bytes with the real on-disk bytes saved in
// the array. record is mutated in place; it is safe to decode afterwards.
//
// usaOffset and usaCount come from bytes already read at fixed offsets 4
// and 6 of the record (the same layout regardless of whether the full
// header has been decoded yet), so this can run before
// DecodeMFTRecordHeader.
func VerifyAndApplyFixups(record []byte, usaOffset, usaCount uint16) error {
	if usaCount == 0 {
		return nil
	}
	arrayEnd := int(usaOffset) + int(usaCount)*2
	if arrayEnd > len(record) {
		return &TruncatedError{Structure: "fixup array", Need: arrayEnd, Have: len(record)}
	}

	updateSeq := record[usaOffset : usaOffset+2]

	for i := uint16(1); i < usaCount; i++ {
		sectorEnd := int(i) * sectorSize
		if sectorEnd > len(record) {
			break
		}
		tail := record[sectorEnd-2 : sectorEnd]
		if tail[0] != updateSeq[0] || tail[1] != updateSeq[1] {
			return &FixupMismatchError{Sector: int(i)}
		}

		origOffset := int(usaOffset) + int(i)*2
		tail[0] = record[origOffset]
		tail[1] = record[origOffset+1]
	}

	return nil
}
