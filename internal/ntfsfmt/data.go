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

// DataSize reports the logical and allocated size of a $DATA attribute.
// For a resident attribute, the logical size is the value length and the
// allocated size is the same (resident data occupies no clusters of its
// own). For a non-resident attribute, the logical size is RealSize and
// the allocated size is AllocatedSize, per the attribute header -- the
// canonical values, with the run sum kept as a diagnostic cross-check.
func DataSize(a Attribute) (logical, allocated uint64) {
	if a.NonResident {
		return a.RealSize, a.AllocatedSize
	}
	return uint64(a.ResidentValueLength), uint64(a.ResidentValueLength)
}

// DataRun is one decoded (start LCN, cluster count) pair from a
// non-resident attribute's run list. Sparse is true when the run has no
// backing clusters (encoded on disk with a zero-length offset field);
// StartLCN is meaningless in that case.
type DataRun struct {
	StartLCN     int64
	ClusterCount uint64
	Sparse       bool
}

// DecodeDataRuns decodes the data-run list of a non-resident attribute,
// starting at a.DataRunsOffset within a.Raw. Decoding stops at the
// terminating zero header byte or at the end of the buffer, whichever
// comes first; it never returns an error, since a truncated run list
// simply yields fewer runs (the caller's sum will fall short of the
// attribute's reported allocated size, which is the diagnostic signal).
func DecodeDataRuns(a Attribute) []DataRun {
	if !a.NonResident || int(a.DataRunsOffset) >= len(a.Raw) {
		return nil
	}

	data := a.Raw[a.DataRunsOffset:]
	var runs []DataRun
	var currentLCN int64

	for i := 0; i < len(data); {
		header := data[i]
		if header == 0 {
			break
		}

		lengthBytes := int(header & 0x0F)
		offsetBytes := int(header >> 4)
		if i+1+lengthBytes+offsetBytes > len(data) {
			break
		}

		var length uint64
		for j := 0; j < lengthBytes; j++ {
			length |= uint64(data[i+1+j]) << (8 * uint(j))
		}

		run := DataRun{ClusterCount: length}

		if offsetBytes == 0 {
			run.Sparse = true
		} else {
			var delta int64
			for j := 0; j < offsetBytes; j++ {
				delta |= int64(data[i+1+lengthBytes+j]) << (8 * uint(j))
			}
			// Sign-extend from the top bit of the last offset byte.
			if data[i+lengthBytes+offsetBytes]&0x80 != 0 {
				for j := offsetBytes; j < 8; j++ {
					delta |= int64(0xFF) << (8 * uint(j))
				}
			}
			currentLCN += delta
			run.StartLCN = currentLCN
		}

		runs = append(runs, run)
		i += 1 + lengthBytes + offsetBytes
	}

	return runs
}

// SumAllocatedBytes sums cluster counts across runs (sparse runs
// contribute zero) and multiplies by clusterBytes, producing the
// run-list-derived allocated size used as a diagnostic cross-check
// against the attribute-reported AllocatedSize.
func SumAllocatedBytes(runs []DataRun, clusterBytes uint64) uint64 {
	var total uint64
	for _, r := range runs {
		if r.Sparse {
			continue
		}
		total += r.ClusterCount * clusterBytes
	}
	return total
}
