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

// Package scan composes the USN enumerator and the MFT reader into a
// coherent in-memory forest: the fast path (USN only, no sizes) and the
// full path (USN then a parallel MFT read pass), followed by directory
// size roll-up. It is the only package that opens more than one
// volio.Gateway at a time -- one per worker.
package scan

// FILE_ATTRIBUTE_* bits this package filters on; the full bit-set is
// carried through to forest.Entry.Attributes unfiltered, these two are
// just the ones Options can exclude by.
const (
	fileAttributeHidden uint32 = 0x2
	fileAttributeSystem uint32 = 0x4
)

// Options controls what a scan includes and how hard it works.
type Options struct {
	IncludeHidden bool
	IncludeSystem bool
	ReadMftSizes  bool
	Parallelism   int
}

// excluded reports whether an entry with the given attributes should be
// dropped under these options.
func (o Options) excluded(attributes uint32) bool {
	if !o.IncludeHidden && attributes&fileAttributeHidden != 0 {
		return true
	}
	if !o.IncludeSystem && attributes&fileAttributeSystem != 0 {
		return true
	}
	return false
}
