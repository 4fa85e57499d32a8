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

// buildResidentAttribute encodes one resident attribute record: the
// 16-byte common header, the 8-byte resident tail (value length/offset/
// indexed flag/padding), then value.
func buildResidentAttribute(attrType uint32, id uint16, value []byte) []byte {
	const headerLen = 24
	length := headerLen + len(value)
	buf := make([]byte, length)
	binary.LittleEndian.PutUint32(buf[0:4], attrType)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(length))
	buf[8] = 0 // resident
	buf[9] = 0 // name length
	binary.LittleEndian.PutUint16(buf[14:16], id)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(value)))
	binary.LittleEndian.PutUint16(buf[20:22], headerLen)
	copy(buf[headerLen:], value)
	return buf
}

// buildNonResidentAttribute encodes a non-resident attribute's fixed
// 64-byte header (up through RealSize) followed by a raw run-list blob.
func buildNonResidentAttribute(attrType uint32, id uint16, allocatedSize, realSize uint64, runs []byte) []byte {
	const headerLen = 64
	length := headerLen + len(runs)
	buf := make([]byte, length)
	binary.LittleEndian.PutUint32(buf[0:4], attrType)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(length))
	buf[8] = 1 // non-resident
	buf[9] = 0
	binary.LittleEndian.PutUint16(buf[14:16], id)
	binary.LittleEndian.PutUint16(buf[32:34], headerLen) // data runs offset
	binary.LittleEndian.PutUint64(buf[40:48], allocatedSize)
	binary.LittleEndian.PutUint64(buf[48:56], realSize)
	copy(buf[headerLen:], runs)
	return buf
}

func endMarker() []byte {
	buf := make([]byte, attributeHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], AttrTypeEnd)
	return buf
}

func TestWalkAttributes_VisitsEachAttributeThenStopsAtEndMarker(t *testing.T) {
	record := append(append(
		buildResidentAttribute(AttrTypeStandardInformation, 0, make([]byte, 48)),
		buildResidentAttribute(AttrTypeFileName, 1, make([]byte, 66))...),
		endMarker()...)

	var seen []uint32
	err := WalkAttributes(record, 0, func(a Attribute) error {
		seen = append(seen, a.Type)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []uint32{AttrTypeStandardInformation, AttrTypeFileName}, seen)
}

func TestWalkAttributes_ResidentFields(t *testing.T) {
	value := []byte("hello")
	record := append(buildResidentAttribute(AttrTypeData, 3, value), endMarker()...)

	var got Attribute
	err := WalkAttributes(record, 0, func(a Attribute) error {
		got = a
		return nil
	})
	require.NoError(t, err)

	assert.False(t, got.NonResident)
	assert.Equal(t, uint16(3), got.ID)
	resident, err := got.ResidentValue()
	require.NoError(t, err)
	assert.Equal(t, value, resident)
}

func TestWalkAttributes_NonResidentFields(t *testing.T) {
	runs := []byte{0x11, 0x10, 0x05} // 1-byte length=0x10, 1-byte offset=0x05
	record := append(buildNonResidentAttribute(AttrTypeData, 0, 4096, 4000, runs), endMarker()...)

	var got Attribute
	err := WalkAttributes(record, 0, func(a Attribute) error {
		got = a
		return nil
	})
	require.NoError(t, err)

	assert.True(t, got.NonResident)
	assert.Equal(t, uint64(4096), got.AllocatedSize)
	assert.Equal(t, uint64(4000), got.RealSize)

	decoded := DecodeDataRuns(got)
	require.Len(t, decoded, 1)
	assert.Equal(t, uint64(0x10), decoded[0].ClusterCount)
	assert.Equal(t, int64(0x05), decoded[0].StartLCN)
	assert.False(t, decoded[0].Sparse)
}

func TestWalkAttributes_LengthOutOfBoundsIsMalformed(t *testing.T) {
	record := make([]byte, 16)
	binary.LittleEndian.PutUint32(record[0:4], AttrTypeData)
	binary.LittleEndian.PutUint32(record[4:8], 1000) // declares far more than the buffer holds

	err := WalkAttributes(record, 0, func(Attribute) error { return nil })

	var malformed *MalformedFieldError
	require.ErrorAs(t, err, &malformed)
}

func TestWalkAttributes_VisitErrorShortCircuits(t *testing.T) {
	record := append(append(
		buildResidentAttribute(AttrTypeStandardInformation, 0, make([]byte, 48)),
		buildResidentAttribute(AttrTypeFileName, 1, make([]byte, 66))...),
		endMarker()...)

	sentinel := assert.AnError
	callCount := 0
	err := WalkAttributes(record, 0, func(a Attribute) error {
		callCount++
		return sentinel
	})

	assert.Same(t, sentinel, err)
	assert.Equal(t, 1, callCount)
}

func TestAttribute_IsNamedStream(t *testing.T) {
	record := buildResidentAttribute(AttrTypeData, 0, []byte("x"))
	record[9] = 4 // NameLength

	var got Attribute
	err := WalkAttributes(append(record, endMarker()...), 0, func(a Attribute) error {
		got = a
		return nil
	})
	require.NoError(t, err)
	assert.True(t, got.IsNamedStream())
}

func TestAttribute_ResidentValue_OutOfBounds(t *testing.T) {
	a := Attribute{ResidentValueOffset: 100, ResidentValueLength: 10, Raw: make([]byte, 24)}
	_, err := a.ResidentValue()

	var malformed *MalformedFieldError
	require.ErrorAs(t, err, &malformed)
}
