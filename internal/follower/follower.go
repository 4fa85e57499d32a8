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

package follower

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/googlecloudplatform/ntfsindex/clock"
	"github.com/googlecloudplatform/ntfsindex/common"
	"github.com/googlecloudplatform/ntfsindex/internal/forest"
	"github.com/googlecloudplatform/ntfsindex/internal/logger"
	"github.com/googlecloudplatform/ntfsindex/internal/mft"
	"github.com/googlecloudplatform/ntfsindex/internal/ntfsfmt"
	"github.com/googlecloudplatform/ntfsindex/internal/volio"
)

// Follower reads a volume's change journal from a remembered cursor and
// applies every event it carries to a forest.Forest. It owns gw
// exclusively and runs on its own goroutine; a Follower is not safe for
// concurrent Poll calls, though Stop and Cursor may be called from
// another goroutine.
type Follower struct {
	mu sync.Mutex

	gw     volio.Gateway
	forest *forest.Forest
	cursor volio.JournalCursor
	opts   Options
	reader *mft.Reader

	// orphans holds entries the forest couldn't link because their
	// parent hadn't arrived yet, keyed by the missing parent's record
	// number. Each bucket is a FIFO so entries flush in arrival order;
	// the parent's own insertion flushes the bucket.
	orphans map[uint64]common.Queue[ntfsfmt.Reference]

	reset bool
}

// Start begins following gw's change journal from cursor, applying
// events into f. gw is owned by the returned Follower from this point;
// Stop closes it. When opts.ReadMftSizes is set, Start also queries the
// volume's metadata once, up front, to build the reader future refresh
// events use.
func Start(ctx context.Context, gw volio.Gateway, f *forest.Forest, cursor volio.JournalCursor, opts Options) (*Follower, error) {
	fl := &Follower{
		gw:      gw,
		forest:  f,
		cursor:  cursor,
		opts:    opts,
		orphans: make(map[uint64]common.Queue[ntfsfmt.Reference]),
	}

	if opts.ReadMftSizes {
		volData, err := gw.VolumeData(ctx)
		if err != nil {
			return nil, err
		}
		fl.reader = mft.NewReader(gw, mft.VolumeInfoFrom(volData), mft.NewCorruptionTracker())
	}

	return fl, nil
}

// Poll issues one "read USN journal" round trip from the follower's
// current cursor, applies every record it returns, and advances the
// cursor past the last record applied. It returns the number of events
// applied. Once the volume's journal id no longer matches the cursor's,
// Poll returns ErrJournalReset and every subsequent call does the same
// without touching the forest or issuing further I/O.
func (fl *Follower) Poll(ctx context.Context) (int, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.reset {
		return 0, ErrJournalReset
	}

	result, err := fl.gw.ReadJournal(ctx, fl.cursor)
	if err != nil {
		if errors.Is(err, volio.ErrJournalIDMismatch) {
			fl.reset = true
			return 0, ErrJournalReset
		}
		return 0, err
	}

	applied := 0
	for off := 0; off < len(result.Records); {
		rec, decErr := ntfsfmt.DecodeUSNRecord(result.Records[off:])
		if decErr != nil {
			logger.Warnf("follower: stopping mid-batch on malformed USN record: %v", decErr)
			break
		}
		fl.apply(ctx, rec)
		// Advance past the record just applied rather than jumping to the
		// batch's NextUSN, so a break out of a partially-applied batch
		// resumes at the first unapplied record, never past it.
		fl.cursor.NextUSN = rec.USN + 1
		applied++
		off += int(rec.RecordLength)
	}
	if applied == 0 {
		fl.cursor.NextUSN = result.NextUSN
	}

	return applied, nil
}

// Cursor returns the follower's current resume point, for a caller that
// wants to persist it across restarts.
func (fl *Follower) Cursor() volio.JournalCursor {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return fl.cursor
}

// Stop releases the follower's volume handle. The forest is left exactly
// as the last applied event left it.
func (fl *Follower) Stop() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return fl.gw.Close()
}

// RunLoop polls the journal every interval, ticked by clk rather than a
// bare time.Ticker, until ctx is cancelled or a poll returns an error --
// ErrJournalReset included. onApplied, if non-nil, is called with the
// count from every poll that applied at least one event. Driving the
// wait off clock.Clock rather than time.After lets a test replace clk
// with a *clock.SimulatedClock and advance it explicitly instead of
// sleeping for real.
func (fl *Follower) RunLoop(ctx context.Context, clk clock.Clock, interval time.Duration, onApplied func(int)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-clk.After(interval):
			applied, err := fl.Poll(ctx)
			if err != nil {
				return err
			}
			if applied > 0 && onApplied != nil {
				onApplied(applied)
			}
		}
	}
}

// apply dispatches one decoded USN record to the forest by its reason
// bits. rename-old-name fires on the same
// FRN as the rename-new-name record that follows it, so unlike a genuine
// delete it is not applied as a remove: doing so would flush the
// in-flight entry's size and timestamps, which the old/new-name pair
// carries no replacement for, right before rename-new-name rebuilds it
// from scratch. Only file-delete removes; rename-old-name is a no-op
// here and the subsequent rename-new-name record does the actual update.
func (fl *Follower) apply(ctx context.Context, rec *ntfsfmt.USNRecord) {
	switch {
	case rec.Reason&ntfsfmt.USNReasonFileDelete != 0:
		fl.onRemove(rec.FileReference)
	case rec.Reason&(ntfsfmt.USNReasonFileCreate|ntfsfmt.USNReasonRenameNewName) != 0:
		fl.onCreateOrRename(rec)
	}

	if rec.Reason&(ntfsfmt.USNReasonDataExtend|ntfsfmt.USNReasonDataTruncation|ntfsfmt.USNReasonBasicInfoChange) != 0 {
		fl.onRefresh(ctx, rec.FileReference)
	}

	// USNReasonClose: the preceding reason bits on this same record
	// already captured the change; nothing further to apply.
}

func (fl *Follower) onRemove(frn ntfsfmt.Reference) {
	fl.forest.Remove(frn)
}

// onCreateOrRename builds an Entry from USN-carried fields only (name,
// parent, attributes) and merges in whatever size/timestamp fields the
// forest already has for this record number, so a rename never appears
// to zero out a file's size.
func (fl *Follower) onCreateOrRename(rec *ntfsfmt.USNRecord) {
	if fl.opts.excluded(rec.FileAttributes) {
		return
	}

	entry := forest.Entry{
		FRN:         rec.FileReference,
		ParentFRN:   rec.ParentReference,
		Name:        rec.FileName,
		IsDirectory: rec.IsDirectory(),
		Attributes:  rec.FileAttributes,
	}
	if existing, ok := fl.forest.Snapshot().Lookup(rec.FileReference); ok {
		entry.LogicalSize = existing.LogicalSize
		entry.AllocatedSize = existing.AllocatedSize
		entry.Created = existing.Created
		entry.Modified = existing.Modified
		entry.Accessed = existing.Accessed
		entry.MFTChanged = existing.MFTChanged
		entry.SizeUnknown = existing.SizeUnknown
	}
	fl.applyEntry(entry)
}

// onRefresh re-reads frn's MFT record and applies every field it
// carries, authoritative over whatever the forest already held. It is a
// no-op when the follower wasn't started with ReadMftSizes, since there
// is then no Gateway slot reserved for MFT reads on the fast path.
func (fl *Follower) onRefresh(ctx context.Context, frn ntfsfmt.Reference) {
	if fl.reader == nil {
		return
	}
	rec, err := fl.reader.ReadRecord(ctx, frn)
	if err != nil {
		logger.Warnf("follower: refresh of record %d failed: %v", frn.RecordNumber(), err)
		return
	}
	if rec == nil {
		return
	}
	fl.applyEntry(forest.Entry{
		FRN:           rec.Reference,
		ParentFRN:     rec.ParentReference,
		Name:          rec.Name,
		IsDirectory:   rec.IsDirectory,
		Attributes:    rec.Attributes,
		LogicalSize:   rec.LogicalSize,
		AllocatedSize: rec.AllocatedSize,
		Created:       rec.Created,
		Modified:      rec.Modified,
		Accessed:      rec.Accessed,
		MFTChanged:    rec.MFTChanged,
		SizeUnknown:   rec.SizeUnknown,
	})
}

// applyEntry writes e into the forest and keeps its parent link current:
// unlinking it from its previous parent if the update moved it, linking
// it under its new one, and parking it in the orphan bucket if that
// parent hasn't arrived yet. It then flushes any orphans that were
// waiting on e's own record number, since e's arrival may be exactly
// what they needed.
func (fl *Follower) applyEntry(e forest.Entry) {
	existing, hadExisting := fl.forest.Snapshot().Lookup(e.FRN)

	if err := fl.forest.InsertOrUpdate(e); err != nil {
		logger.Tracef("follower: dropping stale update for record %d: %v", e.FRN.RecordNumber(), err)
		return
	}

	if hadExisting && existing.ParentFRN != e.ParentFRN {
		fl.forest.Unlink(e.FRN, existing.ParentFRN)
	}

	if !fl.forest.LinkUnder(e.FRN) {
		rn := e.ParentFRN.RecordNumber()
		q, ok := fl.orphans[rn]
		if !ok {
			q = common.NewLinkedListQueue[ntfsfmt.Reference]()
			fl.orphans[rn] = q
		}
		q.Push(e.FRN)
	}

	fl.flushOrphans(e.FRN.RecordNumber())
}

func (fl *Follower) flushOrphans(parentRecordNumber uint64) {
	pending, ok := fl.orphans[parentRecordNumber]
	if !ok || pending.IsEmpty() {
		return
	}
	delete(fl.orphans, parentRecordNumber)
	for !pending.IsEmpty() {
		fl.forest.LinkUnder(pending.Pop())
	}
}
