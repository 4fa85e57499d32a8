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

// Package mft issues per-record reads against a volio.Gateway, applies
// fixups, and decodes the attributes a scan needs: timestamps, preferred
// name, and data size. It never aggregates across records; that is the
// scan orchestrator's job.
package mft

import (
	"github.com/googlecloudplatform/ntfsindex/internal/ntfsfmt"
)

// VolumeInfo is the subset of a volume's metadata the reader and the
// orchestrator above it need.
type VolumeInfo struct {
	ClusterBytes  uint32
	RecordBytes   uint32
	MftStartLCN   uint64
}

// VolumeInfoFrom narrows a decoded VolumeData reply to what callers of
// this package need.
func VolumeInfoFrom(v *ntfsfmt.VolumeData) VolumeInfo {
	return VolumeInfo{
		ClusterBytes: v.BytesPerCluster,
		RecordBytes:  v.RecordSize(),
		MftStartLCN:  v.MftStartLcn,
	}
}

// Record is one decoded, in-use, base MFT record: the fields a scan needs
// to build a forest Entry.
type Record struct {
	Reference       ntfsfmt.Reference
	ParentReference ntfsfmt.Reference
	Name            string
	IsDirectory     bool
	Attributes      uint32
	Created         uint64
	Modified        uint64
	Accessed        uint64
	MFTChanged      uint64
	LogicalSize     uint64
	AllocatedSize   uint64

	// SizeUnknown is set when the record carries an attribute list, so
	// its $DATA may span more than one MFT record. This reader does not
	// chase that chain; the sizes hold only what a $DATA attribute in
	// the base record itself reported (0 if it has none).
	SizeUnknown bool
}
