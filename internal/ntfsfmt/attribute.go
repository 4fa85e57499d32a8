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

// Attribute type codes recognised by the attribute walk.
const (
	AttrTypeStandardInformation uint32 = 0x10
	AttrTypeFileName            uint32 = 0x30
	AttrTypeData                uint32 = 0x80
	AttrTypeEnd                 uint32 = 0xFFFFFFFF
)

const attributeHeaderSize = 16

// Attribute is one parsed attribute record: its header plus the raw bytes
// of its value (resident) or its non-resident run list, still encoded.
type Attribute struct {
	Type        uint32
	NonResident bool
	NameLength  uint8
	Flags       uint16
	ID          uint16

	// Resident fields.
	ResidentValueLength uint32
	ResidentValueOffset uint16

	// Non-resident fields.
	DataRunsOffset uint16
	AllocatedSize  uint64
	RealSize       uint64

	// Raw holds the full attribute record (header + value/run-list),
	// sliced from the record buffer passed to WalkAttributes. Offsets
	// above are relative to the start of Raw.
	Raw []byte
}

// WalkAttributes iterates the attribute list starting at
// firstAttributeOffset in an MFT record buffer, calling visit for each
// recognised or unrecognised attribute in turn. Iteration stops at the
// 0xFFFFFFFF end marker, at an attribute whose declared length would run
// past the end of the buffer, or when visit returns a non-nil error (which
// WalkAttributes returns unchanged, so a caller can use it to short-circuit
// without it being treated as a decode failure -- callers that don't need
// that should return nil).
func WalkAttributes(record []byte, firstAttributeOffset uint16, visit func(Attribute) error) error {
	offset := int(firstAttributeOffset)

	for offset+attributeHeaderSize <= len(record) {
		attrType := binary.LittleEndian.Uint32(record[offset : offset+4])
		if attrType == AttrTypeEnd {
			return nil
		}

		length := binary.LittleEndian.Uint32(record[offset+4 : offset+8])
		if length < attributeHeaderSize || int(length) > len(record)-offset {
			return &MalformedFieldError{Structure: "Attribute", Field: "Length", Reason: "out of bounds"}
		}

		raw := record[offset : offset+int(length)]
		nonResident := raw[8] != 0
		nameLength := raw[9]
		flags := binary.LittleEndian.Uint16(raw[12:14])
		id := binary.LittleEndian.Uint16(raw[14:16])

		a := Attribute{
			Type:        attrType,
			NonResident: nonResident,
			NameLength:  nameLength,
			Flags:       flags,
			ID:          id,
			Raw:         raw,
		}

		if nonResident {
			if len(raw) < 64 {
				return &TruncatedError{Structure: "non-resident Attribute", Need: 64, Have: len(raw)}
			}
			a.DataRunsOffset = binary.LittleEndian.Uint16(raw[32:34])
			a.AllocatedSize = binary.LittleEndian.Uint64(raw[40:48])
			a.RealSize = binary.LittleEndian.Uint64(raw[48:56])
		} else {
			if len(raw) < 24 {
				return &TruncatedError{Structure: "resident Attribute", Need: 24, Have: len(raw)}
			}
			a.ResidentValueLength = binary.LittleEndian.Uint32(raw[16:20])
			a.ResidentValueOffset = binary.LittleEndian.Uint16(raw[20:22])
		}

		if err := visit(a); err != nil {
			return err
		}

		offset += int(length)
	}

	return nil
}

// ResidentValue returns the attribute's inline value bytes. Callers must
// only call this when a.NonResident is false.
func (a Attribute) ResidentValue() ([]byte, error) {
	end := int(a.ResidentValueOffset) + int(a.ResidentValueLength)
	if end > len(a.Raw) {
		return nil, &MalformedFieldError{Structure: "Attribute", Field: "ResidentValueOffset/Length", Reason: "out of bounds"}
	}
	return a.Raw[a.ResidentValueOffset:end], nil
}

// IsNamedStream reports whether this $DATA attribute is a named (not the
// primary, unnamed) data stream.
func (a Attribute) IsNamedStream() bool {
	return a.Type == AttrTypeData && a.NameLength != 0
}
