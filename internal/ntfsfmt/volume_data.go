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

// VolumeData is the decoded reply of the "get volume metadata" device
// control (code 0x00090064 -- FSCTL_GET_NTFS_VOLUME_DATA).
type VolumeData struct {
	VolumeSerialNumber uint64
	NumberSectors      uint64
	TotalClusters      uint64
	FreeClusters       uint64
	BytesPerSector     uint32
	BytesPerCluster    uint32
	BytesPerFileRecord uint32
	MftStartLcn        uint64
	Mft2StartLcn       uint64
}

const volumeDataMinSize = 72

// DecodeVolumeData decodes an NTFS_VOLUME_DATA_BUFFER reply. Only the
// fields the scanner needs are extracted; the structure on disk is
// longer, but this decoder never reads past what it declares.
// MftValidDataLength sits at offset 56, between ClustersPerFileRecordSegment
// and MftStartLcn; it is skipped, not decoded.
func DecodeVolumeData(buf []byte) (*VolumeData, error) {
	if len(buf) < volumeDataMinSize {
		return nil, &TruncatedError{Structure: "VolumeData", Need: volumeDataMinSize, Have: len(buf)}
	}
	v := &VolumeData{
		VolumeSerialNumber: binary.LittleEndian.Uint64(buf[0:8]),
		NumberSectors:      binary.LittleEndian.Uint64(buf[8:16]),
		TotalClusters:      binary.LittleEndian.Uint64(buf[16:24]),
		FreeClusters:       binary.LittleEndian.Uint64(buf[24:32]),
		BytesPerSector:     binary.LittleEndian.Uint32(buf[40:44]),
		BytesPerCluster:    binary.LittleEndian.Uint32(buf[44:48]),
		BytesPerFileRecord: binary.LittleEndian.Uint32(buf[48:52]),
		MftStartLcn:        binary.LittleEndian.Uint64(buf[64:72]),
	}
	if len(buf) >= 80 {
		v.Mft2StartLcn = binary.LittleEndian.Uint64(buf[72:80])
	}
	return v, nil
}

// RecordSize returns the MFT record size reported by the volume metadata
// reply; readers trust it directly rather than deriving a size from the
// boot sector.
func (v *VolumeData) RecordSize() uint32 {
	return v.BytesPerFileRecord
}
