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

//go:build !windows

package ntfsindex

import (
	"fmt"
	"runtime"
)

// ListNTFSVolumes is only implemented on Windows, where drive letters and
// the NTFS device-control interface exist.
func ListNTFSVolumes() ([]Volume, error) {
	return nil, fmt.Errorf("ntfsindex: volume enumeration is only supported on windows, not %s", runtime.GOOS)
}
