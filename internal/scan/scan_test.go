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

package scan

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"

	"github.com/googlecloudplatform/ntfsindex/internal/ntfsfmt"
	"github.com/googlecloudplatform/ntfsindex/internal/volio"
)

var testUTF16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

func utf16LEBytes(t *testing.T, s string) []byte {
	t.Helper()
	out, err := testUTF16LE.NewEncoder().String(s)
	require.NoError(t, err)
	return []byte(out)
}

// buildUSNRecord encodes one USN_RECORD_V2, the framing both the bulk
// enumerator and this test's Fake gateway use.
func buildUSNRecord(t *testing.T, fileRef, parentRef ntfsfmt.Reference, attrs uint32, name string) []byte {
	t.Helper()
	nameBytes := utf16LEBytes(t, name)
	const fixedFieldsOffset = 24
	nameOffset := fixedFieldsOffset + 36
	length := nameOffset + len(nameBytes)

	buf := make([]byte, length)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(length))
	binary.LittleEndian.PutUint16(buf[4:6], 2)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(fileRef))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(parentRef))

	f := fixedFieldsOffset
	binary.LittleEndian.PutUint32(buf[f+28:f+32], attrs)
	binary.LittleEndian.PutUint16(buf[f+32:f+34], uint16(len(nameBytes)))
	binary.LittleEndian.PutUint16(buf[f+34:f+36], uint16(nameOffset))
	copy(buf[nameOffset:], nameBytes)

	return buf
}

// buildResident encodes one resident attribute record.
func buildResident(attrType uint32, value []byte) []byte {
	const headerLen = 24
	length := headerLen + len(value)
	buf := make([]byte, length)
	binary.LittleEndian.PutUint32(buf[0:4], attrType)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(length))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(value)))
	binary.LittleEndian.PutUint16(buf[20:22], headerLen)
	copy(buf[headerLen:], value)
	return buf
}

func buildFileNameValue(t *testing.T, parent ntfsfmt.Reference, name string) []byte {
	t.Helper()
	nameBytes := utf16LEBytes(t, name)
	buf := make([]byte, 66+len(nameBytes))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(parent))
	buf[64] = byte(len(name))
	buf[65] = byte(ntfsfmt.NamespaceWin32)
	copy(buf[66:], nameBytes)
	return buf
}

// buildNonResidentData encodes a non-resident $DATA attribute whose
// header reports the given sizes. The run list is a lone terminator
// byte; the scan trusts the header's RealSize/AllocatedSize, not the
// runs.
func buildNonResidentData(logical, allocated uint64) []byte {
	const headerLen = 64
	buf := make([]byte, headerLen+8)
	binary.LittleEndian.PutUint32(buf[0:4], ntfsfmt.AttrTypeData)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(buf)))
	buf[8] = 1 // non-resident
	binary.LittleEndian.PutUint16(buf[32:34], headerLen)
	binary.LittleEndian.PutUint64(buf[40:48], allocated)
	binary.LittleEndian.PutUint64(buf[48:56], logical)
	return buf
}

// buildMFTRecord assembles a full, fixup-applied MFT record with a
// non-resident $DATA attribute reporting dataSize bytes -- everything
// the full scan path's MFT pass needs to size a file.
func buildMFTRecord(t *testing.T, recordNumber uint32, parent ntfsfmt.Reference, name string, isDirectory bool, dataSize uint64) []byte {
	t.Helper()
	const recordSize = 1024
	buf := make([]byte, recordSize)
	copy(buf[0:4], "FILE")
	binary.LittleEndian.PutUint16(buf[4:6], 48) // usaOffset
	binary.LittleEndian.PutUint16(buf[6:8], 3)  // usaCount
	binary.LittleEndian.PutUint16(buf[16:18], 1)

	flags := uint16(1) // in-use
	if isDirectory {
		flags |= 2
	}
	binary.LittleEndian.PutUint16(buf[22:24], flags)
	binary.LittleEndian.PutUint32(buf[44:48], recordNumber)

	attrs := buildResident(ntfsfmt.AttrTypeFileName, buildFileNameValue(t, parent, name))
	if !isDirectory {
		attrs = append(attrs, buildNonResidentData(dataSize, dataSize)...)
	}
	endOffset := 56 + len(attrs)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(endOffset+8))
	binary.LittleEndian.PutUint16(buf[20:22], 56)

	copy(buf[56:], attrs)
	binary.LittleEndian.PutUint32(buf[endOffset:endOffset+4], ntfsfmt.AttrTypeEnd)

	const usaOffset, usaCount = 48, 3
	binary.LittleEndian.PutUint16(buf[usaOffset:usaOffset+2], 0x5A5A)
	for i := uint16(1); i < usaCount; i++ {
		sectorEnd := int(i) * 512
		if sectorEnd > len(buf) {
			break
		}
		copy(buf[sectorEnd-2:sectorEnd], buf[usaOffset:usaOffset+2])
	}
	return buf
}

func fullOptions() Options {
	return Options{IncludeHidden: true, IncludeSystem: true, ReadMftSizes: true, Parallelism: 2}
}

// Scenario 1: empty volume. Only the root survives the USN pass, and
// roll-up leaves it at size zero.
func TestScan_EmptyVolumeYieldsOnlyRoot(t *testing.T) {
	root := ntfsfmt.NewReference(5, 1)
	gw := volio.NewFake(&ntfsfmt.VolumeData{BytesPerFileRecord: 1024, BytesPerCluster: 4096})
	gw.SetJournalID(1)
	gw.SetEnumBatches([][]byte{buildUSNRecord(t, root, root, 0x10, "")})

	res, err := Scan(context.Background(), func() (volio.Gateway, error) { return gw, nil }, fullOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Forest.Count())
	view := res.Forest.Snapshot()
	size, err := view.SubtreeSize(root)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), size)
	assert.Empty(t, view.Children(root))
}

// Scenario 2: two-file volume. Root has A.txt (1024) and B.log (2048);
// the full path's roll-up must report their sum at the root.
func TestScan_TwoFileVolumeRollsUpRootSize(t *testing.T) {
	root := ntfsfmt.NewReference(5, 1)
	a := ntfsfmt.NewReference(6, 1)
	b := ntfsfmt.NewReference(7, 1)

	var enumBatch []byte
	enumBatch = append(enumBatch, buildUSNRecord(t, root, root, 0x10, "")...)
	enumBatch = append(enumBatch, buildUSNRecord(t, a, root, 0, "A.txt")...)
	enumBatch = append(enumBatch, buildUSNRecord(t, b, root, 0, "B.log")...)

	gw := volio.NewFake(&ntfsfmt.VolumeData{BytesPerFileRecord: 1024, BytesPerCluster: 4096})
	gw.SetJournalID(1)
	gw.SetEnumBatches([][]byte{enumBatch})
	gw.AddRecord(6, buildMFTRecord(t, 6, root, "A.txt", false, 1024))
	gw.AddRecord(7, buildMFTRecord(t, 7, root, "B.log", false, 2048))

	res, err := Scan(context.Background(), func() (volio.Gateway, error) { return gw, nil }, fullOptions())
	require.NoError(t, err)

	view := res.Forest.Snapshot()
	size, err := view.SubtreeSize(root)
	require.NoError(t, err)
	assert.Equal(t, uint64(3072), size)

	children := view.Children(root)
	require.Len(t, children, 2)
	entryA, ok := view.Lookup(a)
	require.True(t, ok)
	assert.Equal(t, uint64(1024), entryA.LogicalSize)
}

// Scenario 3: one-level directory. docs/ contains a (10) and b (20);
// subtree_size(docs) == 30 and that total rolls up to the root.
func TestScan_OneLevelDirectoryRollsUpThroughParent(t *testing.T) {
	root := ntfsfmt.NewReference(5, 1)
	docs := ntfsfmt.NewReference(6, 1)
	a := ntfsfmt.NewReference(7, 1)
	b := ntfsfmt.NewReference(8, 1)

	var enumBatch []byte
	enumBatch = append(enumBatch, buildUSNRecord(t, root, root, 0x10, "")...)
	enumBatch = append(enumBatch, buildUSNRecord(t, docs, root, 0x10, "docs")...)
	enumBatch = append(enumBatch, buildUSNRecord(t, a, docs, 0, "a")...)
	enumBatch = append(enumBatch, buildUSNRecord(t, b, docs, 0, "b")...)

	gw := volio.NewFake(&ntfsfmt.VolumeData{BytesPerFileRecord: 1024, BytesPerCluster: 4096})
	gw.SetJournalID(1)
	gw.SetEnumBatches([][]byte{enumBatch})
	gw.AddRecord(7, buildMFTRecord(t, 7, docs, "a", false, 10))
	gw.AddRecord(8, buildMFTRecord(t, 8, docs, "b", false, 20))

	res, err := Scan(context.Background(), func() (volio.Gateway, error) { return gw, nil }, fullOptions())
	require.NoError(t, err)

	view := res.Forest.Snapshot()
	docsSize, err := view.SubtreeSize(docs)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), docsSize)

	rootSize, err := view.SubtreeSize(root)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), rootSize)

	path, err := view.PathOf(a)
	require.NoError(t, err)
	assert.Equal(t, "/docs/a", path)
}

// The fast path (ReadMftSizes false) never reads an MFT record, so every
// entry -- including directories -- keeps a zero size after roll-up.
func TestScan_FastPathLeavesSizesZero(t *testing.T) {
	root := ntfsfmt.NewReference(5, 1)
	a := ntfsfmt.NewReference(6, 1)

	var enumBatch []byte
	enumBatch = append(enumBatch, buildUSNRecord(t, root, root, 0x10, "")...)
	enumBatch = append(enumBatch, buildUSNRecord(t, a, root, 0, "A.txt")...)

	gw := volio.NewFake(&ntfsfmt.VolumeData{BytesPerFileRecord: 1024, BytesPerCluster: 4096})
	gw.SetJournalID(1)
	gw.SetEnumBatches([][]byte{enumBatch})
	gw.AddRecord(6, buildMFTRecord(t, 6, root, "A.txt", false, 999))

	opts := Options{IncludeHidden: true, IncludeSystem: true, ReadMftSizes: false}
	res, err := Scan(context.Background(), func() (volio.Gateway, error) { return gw, nil }, opts)
	require.NoError(t, err)

	size, err := res.Forest.Snapshot().SubtreeSize(root)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), size)
}

// cancelAfterFirstEnum wraps a Gateway and cancels its own context right
// after the first EnumerateUSN call returns, modeling a cancellation
// arriving mid-scan: the enumerator's next batch-boundary check, not the
// in-flight round trip, is where Scan must notice it.
type cancelAfterFirstEnum struct {
	volio.Gateway
	cancel context.CancelFunc
	calls  int
}

func (g *cancelAfterFirstEnum) EnumerateUSN(ctx context.Context, start uint64) (volio.EnumResult, error) {
	g.calls++
	res, err := g.Gateway.EnumerateUSN(ctx, start)
	if g.calls == 1 {
		g.cancel()
	}
	return res, err
}

// A context cancelled between two enumeration round trips returns
// ErrCancelled alongside a usable, partial forest built from whatever the
// first round trip already yielded.
func TestScan_CancelledMidEnumerationReturnsPartialForest(t *testing.T) {
	root := ntfsfmt.NewReference(5, 1)
	a := ntfsfmt.NewReference(6, 1)

	gw := volio.NewFake(&ntfsfmt.VolumeData{BytesPerFileRecord: 1024, BytesPerCluster: 4096})
	gw.SetJournalID(1)
	gw.SetEnumBatches([][]byte{
		buildUSNRecord(t, root, root, 0x10, ""),
		buildUSNRecord(t, a, root, 0, "A.txt"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wrapped := &cancelAfterFirstEnum{Gateway: gw, cancel: cancel}

	res, err := Scan(ctx, func() (volio.Gateway, error) { return wrapped, nil }, fullOptions())
	assert.ErrorIs(t, err, ErrCancelled)
	require.NotNil(t, res)
	require.NotNil(t, res.Forest)
	_, ok := res.Forest.Snapshot().Lookup(root)
	assert.True(t, ok, "the batch already fetched before cancellation must survive")
}

// Hidden entries are dropped from the fast path when IncludeHidden is
// false, per Options.excluded.
func TestScan_ExcludesHiddenWhenConfigured(t *testing.T) {
	root := ntfsfmt.NewReference(5, 1)
	hidden := ntfsfmt.NewReference(6, 1)

	var enumBatch []byte
	enumBatch = append(enumBatch, buildUSNRecord(t, root, root, 0x10, "")...)
	enumBatch = append(enumBatch, buildUSNRecord(t, hidden, root, 0x2, "secret.txt")...)

	gw := volio.NewFake(&ntfsfmt.VolumeData{BytesPerFileRecord: 1024, BytesPerCluster: 4096})
	gw.SetJournalID(1)
	gw.SetEnumBatches([][]byte{enumBatch})

	opts := Options{IncludeHidden: false, IncludeSystem: true}
	res, err := Scan(context.Background(), func() (volio.Gateway, error) { return gw, nil }, opts)
	require.NoError(t, err)

	_, ok := res.Forest.Snapshot().Lookup(hidden)
	assert.False(t, ok)
}
