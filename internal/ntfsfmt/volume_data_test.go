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

func buildVolumeData(mft2 bool) []byte {
	size := volumeDataMinSize
	if mft2 {
		size = 80
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint64(buf[0:8], 0xDEADBEEF)
	binary.LittleEndian.PutUint64(buf[8:16], 2000000)
	binary.LittleEndian.PutUint64(buf[16:24], 250000)
	binary.LittleEndian.PutUint64(buf[24:32], 1000)
	binary.LittleEndian.PutUint32(buf[40:44], 512)
	binary.LittleEndian.PutUint32(buf[44:48], 4096)
	binary.LittleEndian.PutUint32(buf[48:52], 1024)
	binary.LittleEndian.PutUint64(buf[56:64], 1<<20) // MftValidDataLength, not decoded
	binary.LittleEndian.PutUint64(buf[64:72], 786432)
	if mft2 {
		binary.LittleEndian.PutUint64(buf[72:80], 786432*2)
	}
	return buf
}

func TestDecodeVolumeData(t *testing.T) {
	v, err := DecodeVolumeData(buildVolumeData(false))

	require.NoError(t, err)
	assert.Equal(t, uint64(0xDEADBEEF), v.VolumeSerialNumber)
	assert.Equal(t, uint32(4096), v.BytesPerCluster)
	assert.Equal(t, uint32(1024), v.BytesPerFileRecord)
	assert.Equal(t, uint64(786432), v.MftStartLcn)
	assert.Equal(t, uint64(0), v.Mft2StartLcn)
	assert.Equal(t, uint32(1024), v.RecordSize())
}

func TestDecodeVolumeData_WithMirrorMFT(t *testing.T) {
	v, err := DecodeVolumeData(buildVolumeData(true))

	require.NoError(t, err)
	assert.Equal(t, uint64(786432*2), v.Mft2StartLcn)
}

func TestDecodeVolumeData_Truncated(t *testing.T) {
	_, err := DecodeVolumeData(make([]byte, 10))

	var truncated *TruncatedError
	require.ErrorAs(t, err, &truncated)
}
