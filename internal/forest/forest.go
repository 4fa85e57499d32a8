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

package forest

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/googlecloudplatform/ntfsindex/internal/logger"
)

// StaleUpdateError is returned by InsertOrUpdate when the incoming entry's
// sequence number is older than the one already occupying its slot.
type StaleUpdateError struct {
	FRN FileReference
}

func (e *StaleUpdateError) Error() string {
	return fmt.Sprintf("forest: stale update for record %d (sequence %d)", e.FRN.RecordNumber(), e.FRN.Sequence())
}

// CycleError is returned by PathOf and SubtreeSize when following
// parent_frn links from frn revisits a node without reaching the root --
// only possible on a malformed volume, since NTFS directories form a tree.
type CycleError struct {
	FRN FileReference
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("forest: parent-chain cycle detected at record %d", e.FRN.RecordNumber())
}

// Forest is the in-memory index: a map from MFT record number to
// Entry, with ordered children lists populated by LinkChildren and sizes
// aggregated by RollupSizes. It is single-owner for writes (the scan
// orchestrator, then the change follower); readers use a Snapshot.
type Forest struct {
	mu      sync.RWMutex
	entries map[uint64]*Entry
	roots   []FileReference
}

// New returns an empty Forest.
func New() *Forest {
	return &Forest{entries: make(map[uint64]*Entry)}
}

// InsertOrUpdate writes e into the slot named by its record number. If the
// slot is occupied by an entry with a newer sequence number, the update is
// rejected as stale and a *StaleUpdateError is returned; the forest is
// left unchanged.
func (f *Forest) InsertOrUpdate(e Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	rn := e.FRN.RecordNumber()
	if existing, ok := f.entries[rn]; ok && e.FRN.Sequence() < existing.FRN.Sequence() {
		return &StaleUpdateError{FRN: e.FRN}
	}

	cp := e
	if existing, ok := f.entries[rn]; ok {
		// Preserve children; they're owned by LinkChildren/Remove, not by
		// whatever produced this update (a USN record or MFT read never
		// carries a child list).
		cp.Children = existing.Children
	}
	f.entries[rn] = &cp
	return nil
}

// Remove deletes the entry named by frn, unlinks it from its parent's
// children list, and subtracts its size from every ancestor up to the
// root -- the follower's equivalent of a targeted RollupSizes for the one
// path that changed.
func (f *Forest) Remove(frn FileReference) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rn := frn.RecordNumber()
	entry, ok := f.entries[rn]
	if !ok {
		return
	}
	delete(f.entries, rn)
	f.roots = removeRef(f.roots, frn)

	parentRN := entry.ParentFRN.RecordNumber()
	if parent, ok := f.entries[parentRN]; ok && parentRN != rn {
		parent.Children = removeRef(parent.Children, frn)
	}

	logicalDelta, allocatedDelta := entry.LogicalSize, entry.AllocatedSize
	if logicalDelta == 0 && allocatedDelta == 0 {
		return
	}
	for walkRN := parentRN; ; {
		parent, ok := f.entries[walkRN]
		if !ok {
			break
		}
		parent.LogicalSize -= logicalDelta
		parent.AllocatedSize -= allocatedDelta
		if parent.IsRoot() {
			break
		}
		walkRN = parent.ParentFRN.RecordNumber()
	}
}

// LinkChildren is the one-pass post-scan step that populates every
// directory's Children list from the entries' parent_frn fields, then
// sorts each list by name (case-insensitive, raw-string order as a
// tie-break, approximating UTF-16 code-unit order) so that later
// queries, exports, and roll-up are deterministic.
//
// An entry whose parent never arrived -- USN records can surface a child
// before its parent, or the parent can be deleted mid-scan -- becomes an
// extra root rather than being dropped.
func (f *Forest) LinkChildren() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, e := range f.entries {
		if e.IsDirectory {
			e.Children = e.Children[:0]
		}
	}

	var roots []FileReference
	for _, e := range f.entries {
		if e.IsRoot() {
			roots = append(roots, e.FRN)
			continue
		}
		parentRN := e.ParentFRN.RecordNumber()
		parent, ok := f.entries[parentRN]
		if !ok {
			roots = append(roots, e.FRN)
			continue
		}
		parent.Children = append(parent.Children, e.FRN)
	}

	for _, e := range f.entries {
		if len(e.Children) > 1 {
			f.sortChildrenLocked(e.Children)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })
	f.roots = roots
}

// Unlink removes frn from parentFRN's Children list, or from the root set
// if parentFRN equals frn. It is a no-op if frn isn't currently listed
// there. Callers that maintain the forest incrementally (internal/
// follower) use it ahead of LinkUnder when an entry's parent changes.
func (f *Forest) Unlink(frn, parentFRN FileReference) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if parentFRN == frn {
		f.roots = removeRef(f.roots, frn)
		return
	}
	if parent, ok := f.entries[parentFRN.RecordNumber()]; ok {
		parent.Children = removeRef(parent.Children, frn)
	}
}

// LinkUnder attaches frn to its current ParentFRN's Children list,
// keeping the list sorted, or to the root set if frn is its own parent.
// It reports whether the parent is present in the forest; if not, frn is
// added to the root set instead (LinkChildren's orphan-as-root policy)
// and the caller is expected to retry once the parent arrives.
func (f *Forest) LinkUnder(frn FileReference) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.entries[frn.RecordNumber()]
	if !ok {
		return false
	}

	if e.IsRoot() {
		f.addRootLocked(frn)
		return true
	}

	parent, ok := f.entries[e.ParentFRN.RecordNumber()]
	if !ok {
		f.addRootLocked(frn)
		return false
	}
	if !containsRef(parent.Children, frn) {
		parent.Children = append(parent.Children, frn)
		f.sortChildrenLocked(parent.Children)
	}
	return true
}

func (f *Forest) addRootLocked(frn FileReference) {
	if containsRef(f.roots, frn) {
		return
	}
	f.roots = append(f.roots, frn)
	sort.Slice(f.roots, func(i, j int) bool { return f.roots[i] < f.roots[j] })
}

func containsRef(refs []FileReference, target FileReference) bool {
	for _, r := range refs {
		if r == target {
			return true
		}
	}
	return false
}

func (f *Forest) sortChildrenLocked(children []FileReference) {
	sort.Slice(children, func(i, j int) bool {
		a := f.entries[children[i].RecordNumber()]
		b := f.entries[children[j].RecordNumber()]
		if a == nil || b == nil {
			return false
		}
		la, lb := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if la != lb {
			return la < lb
		}
		return a.Name < b.Name
	})
}

// RollupSizes is a barrier: it runs a post-order traversal from the root
// set, setting each directory's LogicalSize/AllocatedSize to the sum over
// its children (files contribute their own size, directories their
// already-rolled-up size). An explicit visited set defends against a
// malformed volume presenting a cycle; a node already visited anywhere in
// the traversal is not re-entered, and the condition is logged rather
// than looping.
func (f *Forest) RollupSizes() {
	f.mu.Lock()
	defer f.mu.Unlock()

	visited := make(map[uint64]bool, len(f.entries))
	for _, root := range f.roots {
		f.rollupLocked(root, visited)
	}
}

func (f *Forest) rollupLocked(frn FileReference, visited map[uint64]bool) (logical, allocated uint64) {
	rn := frn.RecordNumber()
	if visited[rn] {
		logger.Warnf("forest: cycle detected rolling up record %d, size contribution dropped", rn)
		return 0, 0
	}
	visited[rn] = true

	e, ok := f.entries[rn]
	if !ok {
		return 0, 0
	}
	if !e.IsDirectory {
		return e.LogicalSize, e.AllocatedSize
	}

	var totalLogical, totalAllocated uint64
	for _, c := range e.Children {
		cl, ca := f.rollupLocked(c, visited)
		totalLogical += cl
		totalAllocated += ca
	}
	e.LogicalSize = totalLogical
	e.AllocatedSize = totalAllocated
	return totalLogical, totalAllocated
}

// Roots returns the current root set: entries that are their own parent,
// plus any orphans LinkChildren flagged.
func (f *Forest) Roots() []FileReference {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]FileReference, len(f.roots))
	copy(out, f.roots)
	return out
}

// Count reports the number of live entries.
func (f *Forest) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

// Snapshot returns a cheap read handle over the current forest state.
// Writers (InsertOrUpdate, Remove, LinkChildren, RollupSizes) take the
// same RWMutex a Snapshot's reads do, so a read never observes a
// half-applied mutation; once a write completes, previously returned
// snapshots see the new state too -- the contract is a self-consistent
// forest, not a frozen-in-time one.
func (f *Forest) Snapshot() *ReadView {
	return &ReadView{f: f}
}

func removeRef(refs []FileReference, target FileReference) []FileReference {
	for i, r := range refs {
		if r == target {
			return append(refs[:i], refs[i+1:]...)
		}
	}
	return refs
}

// ReadView is the query surface over a Forest: Lookup, Children,
// IterAll, PathOf, FindLargestFiles, FindLargestDirs, SubtreeSize.
type ReadView struct {
	f *Forest
}

// Lookup returns a copy of the entry named by frn.
func (v *ReadView) Lookup(frn FileReference) (Entry, bool) {
	v.f.mu.RLock()
	defer v.f.mu.RUnlock()
	e, ok := v.f.entries[frn.RecordNumber()]
	if !ok {
		return Entry{}, false
	}
	return cloneEntry(e), true
}

// Children returns the ordered child references of frn, or nil if frn is
// absent or not a directory.
func (v *ReadView) Children(frn FileReference) []FileReference {
	v.f.mu.RLock()
	defer v.f.mu.RUnlock()
	e, ok := v.f.entries[frn.RecordNumber()]
	if !ok {
		return nil
	}
	out := make([]FileReference, len(e.Children))
	copy(out, e.Children)
	return out
}

// IterAll calls visit once per live entry in the forest, in unspecified
// order. Iteration stops early if visit returns false.
func (v *ReadView) IterAll(visit func(Entry) bool) {
	v.f.mu.RLock()
	defer v.f.mu.RUnlock()
	for _, e := range v.f.entries {
		if !visit(cloneEntry(e)) {
			return
		}
	}
}

// PathOf reconstructs frn's path by walking parent_frn links up to a root
// (or an orphan root), joining names with path.Join. An explicit visited
// set catches a malformed volume's cycle and returns a *CycleError rather
// than looping forever.
func (v *ReadView) PathOf(frn FileReference) (string, error) {
	v.f.mu.RLock()
	defer v.f.mu.RUnlock()

	var parts []string
	visited := make(map[uint64]bool)
	current := frn

	for {
		rn := current.RecordNumber()
		if visited[rn] {
			return "", &CycleError{FRN: current}
		}
		visited[rn] = true

		e, ok := v.f.entries[rn]
		if !ok {
			break
		}
		if e.Name != "" {
			parts = append([]string{e.Name}, parts...)
		}
		if e.IsRoot() {
			break
		}
		current = e.ParentFRN
	}

	if len(parts) == 0 {
		return "/", nil
	}
	return "/" + path.Join(parts...), nil
}

// SubtreeSize returns the (already rolled-up) logical size at frn: its own
// size if frn names a file, or its aggregated descendant total if frn
// names a directory.
func (v *ReadView) SubtreeSize(frn FileReference) (uint64, error) {
	v.f.mu.RLock()
	defer v.f.mu.RUnlock()
	e, ok := v.f.entries[frn.RecordNumber()]
	if !ok {
		return 0, fmt.Errorf("forest: no such entry %d", frn.RecordNumber())
	}
	return e.LogicalSize, nil
}

// FindLargestFiles returns the k non-directory entries with the largest
// LogicalSize, descending.
func (v *ReadView) FindLargestFiles(k int) []Entry {
	return v.findLargest(k, false)
}

// FindLargestDirs returns the k directory entries with the largest
// LogicalSize, descending.
func (v *ReadView) FindLargestDirs(k int) []Entry {
	return v.findLargest(k, true)
}

func (v *ReadView) findLargest(k int, directories bool) []Entry {
	if k <= 0 {
		return nil
	}
	v.f.mu.RLock()
	defer v.f.mu.RUnlock()

	var candidates []Entry
	for _, e := range v.f.entries {
		if e.IsDirectory != directories {
			continue
		}
		candidates = append(candidates, cloneEntry(e))
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].LogicalSize != candidates[j].LogicalSize {
			return candidates[i].LogicalSize > candidates[j].LogicalSize
		}
		return candidates[i].Name < candidates[j].Name
	})
	if k < len(candidates) {
		candidates = candidates[:k]
	}
	return candidates
}

func cloneEntry(e *Entry) Entry {
	cp := *e
	cp.Children = append([]FileReference(nil), e.Children...)
	return cp
}
