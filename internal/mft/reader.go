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

package mft

import (
	"context"
	"errors"

	"github.com/googlecloudplatform/ntfsindex/internal/ntfsfmt"
	"github.com/googlecloudplatform/ntfsindex/internal/volio"
)

// Reader fetches and decodes MFT records from one volio.Gateway. A Reader
// is not safe for concurrent use -- the scan orchestrator gives each
// worker its own Reader over its own Gateway (handles are cheap to open
// and the gateway interface says nothing about sharing a single handle's
// buffer across goroutines).
type Reader struct {
	gw      volio.Gateway
	info    VolumeInfo
	corrupt *corruptionTracker
}

// NewReader builds a Reader over gw. corrupt is shared across every
// Reader in a scan so the 1% threshold is judged against the whole scan,
// not each worker's slice of it.
func NewReader(gw volio.Gateway, info VolumeInfo, corrupt *corruptionTracker) *Reader {
	return &Reader{gw: gw, info: info, corrupt: corrupt}
}

// NewCorruptionTracker constructs the shared counter a scan's Readers
// report into.
func NewCorruptionTracker() *corruptionTracker {
	return &corruptionTracker{}
}

// ReadRecord fetches and decodes one MFT record. It returns (nil, nil)
// for a record that should be silently skipped (not in use, or an
// extension record whose data is only reachable via its base record's
// attribute list). It returns a *SkippedRecordError for a record that
// failed its fixup or signature check -- the caller should log it and
// continue -- unless the scan-wide corruption rate has just crossed the
// abort threshold, in which case it returns
// *CorruptionThresholdExceededError instead, which callers must treat as
// fatal to the scan.
func (r *Reader) ReadRecord(ctx context.Context, frn ntfsfmt.Reference) (*Record, error) {
	raw, err := r.gw.ReadFileRecord(ctx, frn)
	if err != nil {
		return nil, err
	}

	header, err := ntfsfmt.DecodeMFTRecordHeader(raw)
	if err != nil {
		return nil, r.skip(frn, err)
	}

	if err := ntfsfmt.VerifyAndApplyFixups(raw, header.UsaOffset, header.UsaCount); err != nil {
		return nil, r.skip(frn, err)
	}

	if !header.InUse() {
		r.corrupt.recordOK()
		return nil, nil
	}
	if header.IsExtensionRecord() {
		r.corrupt.recordOK()
		return nil, nil
	}

	rec := &Record{
		Reference:   frn,
		IsDirectory: header.IsDirectory(),
	}

	var attrListSeen bool
	var nameChosen bool
	var chosenNamespace ntfsfmt.Namespace
	walkErr := ntfsfmt.WalkAttributes(raw, header.FirstAttributeOffset, func(a ntfsfmt.Attribute) error {
		switch a.Type {
		case ntfsfmt.AttrTypeStandardInformation:
			value, err := a.ResidentValue()
			if err != nil {
				return err
			}
			si, err := ntfsfmt.DecodeStandardInformation(value)
			if err != nil {
				return err
			}
			rec.Created = si.Created
			rec.Modified = si.Modified
			rec.Accessed = si.Accessed
			rec.MFTChanged = si.MFTChanged
			rec.Attributes = si.Attributes

		case ntfsfmt.AttrTypeFileName:
			value, err := a.ResidentValue()
			if err != nil {
				return err
			}
			fn, err := ntfsfmt.DecodeFileName(value)
			if err != nil {
				return err
			}
			if !nameChosen || fn.Namespace.Preferred(chosenNamespace) {
				rec.Name = fn.Name
				rec.ParentReference = fn.ParentReference
				chosenNamespace = fn.Namespace
				nameChosen = true
			}

		case ntfsfmt.AttrTypeData:
			if a.IsNamedStream() {
				return nil
			}
			logical, allocated := ntfsfmt.DataSize(a)
			rec.LogicalSize = logical
			rec.AllocatedSize = allocated

		case 0x20: // $ATTRIBUTE_LIST: size lives behind a chain this reader doesn't chase.
			attrListSeen = true
		}
		return nil
	})
	if walkErr != nil {
		return nil, r.skip(frn, walkErr)
	}

	if attrListSeen {
		rec.SizeUnknown = true
	}

	r.corrupt.recordOK()
	return rec, nil
}

func (r *Reader) skip(frn ntfsfmt.Reference, cause error) error {
	r.corrupt.recordCorrupt()
	if r.corrupt.exceeded() {
		return &CorruptionThresholdExceededError{Total: r.corrupt.total.Load(), Corrupt: r.corrupt.corrupt.Load()}
	}
	return &SkippedRecordError{Reference: frn, Cause: cause}
}

// ReadRange fetches count consecutive records starting at fromRecord,
// implemented over ReadRecord; a coarser read driven by the $MFT file's
// own data runs is left for a future optimization pass.
func (r *Reader) ReadRange(ctx context.Context, fromRecord uint64, count int) ([]*Record, error) {
	out := make([]*Record, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		frn := ntfsfmt.NewReference(fromRecord+uint64(i), 0)
		rec, err := r.ReadRecord(ctx, frn)
		if err != nil {
			var thresholdErr *CorruptionThresholdExceededError
			if errors.As(err, &thresholdErr) {
				return out, err
			}
			continue
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}
