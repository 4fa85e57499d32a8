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
	"errors"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/googlecloudplatform/ntfsindex/internal/forest"
	"github.com/googlecloudplatform/ntfsindex/internal/logger"
	"github.com/googlecloudplatform/ntfsindex/internal/mft"
	"github.com/googlecloudplatform/ntfsindex/internal/ntfsfmt"
	"github.com/googlecloudplatform/ntfsindex/internal/usn"
	"github.com/googlecloudplatform/ntfsindex/internal/volio"
)

// Opener returns a fresh Gateway onto the volume being scanned. Scan calls
// it once for the enumeration pass and once per worker in the full path,
// since a Gateway's handle is used from one thread at a time.
type Opener func() (volio.Gateway, error)

// Result is everything a completed (or cancelled) scan produces: the
// populated forest and the journal cursor captured before enumeration
// began, which a caller hands to internal/follower to pick up from here.
type Result struct {
	Forest *forest.Forest
	Cursor volio.JournalCursor
}

// Scan fuses the USN enumerator and, when requested, the MFT reader into
// a populated forest.Forest. It returns a partial-but-usable Result
// alongside ErrCancelled if ctx is cancelled mid-scan.
func Scan(ctx context.Context, open Opener, opts Options) (*Result, error) {
	gw, err := open()
	if err != nil {
		return nil, err
	}
	defer gw.Close()

	volData, err := gw.VolumeData(ctx)
	if err != nil {
		return nil, err
	}
	info := mft.VolumeInfoFrom(volData)

	// Captured atomically, before enumeration starts, so that any change
	// the enumerator's own pass happens to observe is safely re-appliable
	// by the follower afterwards.
	cursor, err := gw.QueryJournal(ctx)
	if err != nil {
		return nil, err
	}

	f := forest.New()
	cancelled, err := runUSNPass(ctx, gw, f, opts)
	if err != nil {
		return &Result{Forest: f, Cursor: cursor}, err
	}

	f.LinkChildren()

	if cancelled {
		return &Result{Forest: f, Cursor: cursor}, ErrCancelled
	}

	if opts.ReadMftSizes {
		if err := runMFTPass(ctx, open, f, info, opts); err != nil {
			return &Result{Forest: f, Cursor: cursor}, err
		}
		if ctx.Err() != nil {
			return &Result{Forest: f, Cursor: cursor}, ErrCancelled
		}
	}

	f.RollupSizes()
	return &Result{Forest: f, Cursor: cursor}, nil
}

// runUSNPass drives the fast path: stream the USN enumerator and insert
// an Entry with zero sizes for every record it yields. Cancellation is
// checked at each batch boundary, matching the enumerator's own round
// trips.
func runUSNPass(ctx context.Context, gw volio.Gateway, f *forest.Forest, opts Options) (cancelled bool, err error) {
	enumerator := usn.New(gw)
	for {
		if ctx.Err() != nil {
			return true, nil
		}
		entries, more, err := enumerator.Next(ctx)
		if err != nil {
			return false, err
		}
		for _, e := range entries {
			if opts.excluded(e.Attributes) {
				continue
			}
			entry := forest.Entry{
				FRN:         e.Reference,
				ParentFRN:   e.ParentReference,
				Name:        e.Name,
				IsDirectory: e.IsDirectory(),
				Attributes:  e.Attributes,
			}
			if insertErr := f.InsertOrUpdate(entry); insertErr != nil {
				logger.Tracef("scan: dropping stale USN entry for record %d: %v", e.Reference.RecordNumber(), insertErr)
			}
		}
		if !more {
			return false, nil
		}
	}
}

// runMFTPass is the full path's worker pool: a bounded channel of record
// numbers drained by opts.Parallelism goroutines, each holding its own
// Gateway and Reader. The channel's bound makes the producer block once
// workers fall behind; a semaphore.Weighted caps in-flight reads at
// opts.Parallelism.
func runMFTPass(ctx context.Context, open Opener, f *forest.Forest, info mft.VolumeInfo, opts Options) error {
	parallelism := opts.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}

	corrupt := mft.NewCorruptionTracker()
	queue := make(chan ntfsfmt.Reference, parallelism*4)
	inFlight := semaphore.NewWeighted(int64(parallelism))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(queue)
		f.Snapshot().IterAll(func(e forest.Entry) bool {
			if e.IsDirectory {
				return true
			}
			if gctx.Err() != nil {
				return false
			}
			select {
			case queue <- e.FRN:
			case <-gctx.Done():
				return false
			}
			return true
		})
		return nil
	})

	for w := 0; w < parallelism; w++ {
		g.Go(func() error {
			gw, err := open()
			if err != nil {
				return err
			}
			defer gw.Close()
			reader := mft.NewReader(gw, info, corrupt)

			for frn := range queue {
				if gctx.Err() != nil {
					continue
				}
				if err := inFlight.Acquire(gctx, 1); err != nil {
					continue
				}
				rec, err := reader.ReadRecord(gctx, frn)
				inFlight.Release(1)
				if err != nil {
					var threshold *mft.CorruptionThresholdExceededError
					if errors.As(err, &threshold) {
						return err
					}
					logger.Warnf("scan: skipping record %d: %v", frn.RecordNumber(), err)
					continue
				}
				if rec == nil {
					continue
				}
				applyRecord(f, rec)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}

func applyRecord(f *forest.Forest, rec *mft.Record) {
	entry := forest.Entry{
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
	}
	if err := f.InsertOrUpdate(entry); err != nil {
		logger.Tracef("scan: dropping stale MFT update for record %d: %v", rec.Reference.RecordNumber(), err)
	}
}
