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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReference_RoundTrip(t *testing.T) {
	r := NewReference(123456, 7)

	assert.Equal(t, uint64(123456), r.RecordNumber())
	assert.Equal(t, uint16(7), r.Sequence())
}

func TestReference_IsRoot(t *testing.T) {
	assert.True(t, NewReference(RootRecordNumber, 1).IsRoot())
	assert.False(t, NewReference(6, 1).IsRoot())
}

func TestReference_RecordNumberOverflowIsMasked(t *testing.T) {
	r := NewReference(1<<49, 1) // record number beyond the 48-bit field
	assert.Equal(t, uint64(0), r.RecordNumber())
}
