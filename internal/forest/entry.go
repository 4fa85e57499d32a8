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

// Package forest holds the in-memory file-tree index: a
// record-number-keyed map of Entry values, their parent/child
// links, and post-order size roll-up. It is populated by a scan and kept
// current by a change follower; everything else in this repository
// queries it through a Snapshot.
package forest

import "github.com/googlecloudplatform/ntfsindex/internal/ntfsfmt"

// FileReference is the 64-bit opaque identifier used throughout this
// package; it is ntfsfmt.Reference under another name so package forest
// reads naturally as the repository's data-model package.
type FileReference = ntfsfmt.Reference

// Entry is one node in the index.
type Entry struct {
	FRN           FileReference
	ParentFRN     FileReference
	Name          string
	IsDirectory   bool
	Attributes    uint32
	LogicalSize   uint64
	AllocatedSize uint64
	Created       uint64
	Modified      uint64
	Accessed      uint64
	MFTChanged    uint64

	// SizeUnknown marks an entry whose size could not be determined
	// (e.g. an attribute list spanning multiple MFT records) rather
	// than silently reporting zero as if it were authoritative.
	SizeUnknown bool

	// Children is the ordered sequence of child FileReferences,
	// populated by LinkChildren and sorted by name there. Only
	// meaningful when IsDirectory is true.
	Children []FileReference
}

// IsRoot reports whether e is its own parent, the convention for the
// volume root directory (record number 5). Orphaned entries whose parent
// never arrived keep that parent's reference and are not IsRoot.
func (e *Entry) IsRoot() bool {
	return e.ParentFRN == e.FRN
}
