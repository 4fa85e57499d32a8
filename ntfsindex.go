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

// Package ntfsindex is the consumer API an external TUI or CLI layer
// drives, composed from the internal volio/scan/follower/forest packages
// without exposing any of their device-control or decode internals.
package ntfsindex

import (
	"context"

	"github.com/googlecloudplatform/ntfsindex/internal/follower"
	"github.com/googlecloudplatform/ntfsindex/internal/forest"
	"github.com/googlecloudplatform/ntfsindex/internal/scan"
	"github.com/googlecloudplatform/ntfsindex/internal/volio"
)

// Forest re-exports the query surface callers run against a completed or
// in-progress scan; it is forest.Forest under this package's own name so
// callers never need to import internal/forest directly.
type Forest = forest.Forest

// Volume describes one mounted volume list_ntfs_volumes surfaces to a
// caller deciding what to scan.
type Volume struct {
	Letter     string
	Label      string
	FreeBytes  uint64
	TotalBytes uint64
}

// Options controls what a scan (or a follower started from its result)
// includes and how hard the scan works.
type Options struct {
	ReadMftSizes  bool
	IncludeHidden bool
	IncludeSystem bool

	// Parallelism is the worker-pool size for the scan's full path. Scan
	// treats anything less than 1 as 1; callers normally leave this at
	// cfg.DefaultParallelism().
	Parallelism int
}

// Result is what Scan returns: the populated Forest and the
// change-journal cursor captured at the start of the scan, ready to hand
// to StartFollower.
type Result struct {
	Forest *Forest
	Cursor volio.JournalCursor
}

// ErrScanCancelled is scan.ErrCancelled under this package's name: Scan
// returns it alongside a partial, still-usable Result when ctx is
// cancelled before the scan completes.
var ErrScanCancelled = scan.ErrCancelled

// ErrJournalReset is follower.ErrJournalReset under this package's name:
// FollowerHandle.Poll returns it once the volume's journal no longer
// matches the cursor the follower was started with.
var ErrJournalReset = follower.ErrJournalReset

// FollowerHandle is the live handle StartFollower returns: Poll applies
// whatever the change journal has accumulated since the last call (or
// since the scan that produced the cursor), and Stop releases the
// volume handle it holds.
type FollowerHandle = follower.Follower

// Scan opens letter (e.g. "C:"), indexes it per opts, and returns the
// resulting Forest alongside a journal cursor a caller can pass to
// StartFollower to keep it current. ctx governs the whole scan; on
// cancellation Scan returns scan.ErrCancelled alongside the partial,
// still-usable Forest built so far.
func Scan(ctx context.Context, letter string, opts Options) (*Result, error) {
	open := func() (volio.Gateway, error) { return volio.Open(letter) }

	res, err := scan.Scan(ctx, open, scan.Options{
		IncludeHidden: opts.IncludeHidden,
		IncludeSystem: opts.IncludeSystem,
		ReadMftSizes:  opts.ReadMftSizes,
		Parallelism:   opts.Parallelism,
	})
	if res == nil {
		return nil, err
	}
	return &Result{Forest: res.Forest, Cursor: res.Cursor}, err
}

// StartFollower opens its own handle onto letter and begins applying
// change-journal events from cursor into f. The returned handle owns
// that volume handle; callers must call Stop on it when done following.
func StartFollower(ctx context.Context, letter string, f *Forest, cursor volio.JournalCursor, opts Options) (*FollowerHandle, error) {
	gw, err := volio.Open(letter)
	if err != nil {
		return nil, err
	}

	fl, err := follower.Start(ctx, gw, f, cursor, follower.Options{
		IncludeHidden: opts.IncludeHidden,
		IncludeSystem: opts.IncludeSystem,
		ReadMftSizes:  opts.ReadMftSizes,
	})
	if err != nil {
		gw.Close()
		return nil, err
	}
	return fl, nil
}
