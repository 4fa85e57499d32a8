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

//go:build windows

package ntfsindex

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// ListNTFSVolumes enumerates the local machine's mounted drive letters
// and reports the NTFS ones with their label and free/total space. Non-
// NTFS and inaccessible drives (an empty optical drive, a disconnected
// network share) are skipped rather than failing the whole call.
func ListNTFSVolumes() ([]Volume, error) {
	mask, err := windows.GetLogicalDrives()
	if err != nil {
		return nil, fmt.Errorf("ntfsindex: enumerating drives: %w", err)
	}

	var volumes []Volume
	for i := 0; i < 26; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		letter := string(rune('A'+i)) + ":"
		vol, ok := probeVolume(letter)
		if ok {
			volumes = append(volumes, vol)
		}
	}
	return volumes, nil
}

func probeVolume(letter string) (Volume, bool) {
	root := letter + `\`
	rootPtr, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return Volume{}, false
	}

	fsName := make([]uint16, windows.MAX_PATH)
	var fsFlags uint32
	if err := windows.GetVolumeInformation(rootPtr, nil, 0, nil, nil, &fsFlags, &fsName[0], uint32(len(fsName))); err != nil {
		return Volume{}, false
	}
	if windows.UTF16ToString(fsName) != "NTFS" {
		return Volume{}, false
	}

	labelBuf := make([]uint16, windows.MAX_PATH)
	_ = windows.GetVolumeInformation(rootPtr, &labelBuf[0], uint32(len(labelBuf)), nil, nil, nil, nil, 0)

	var free, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(rootPtr, &free, &total, &totalFree); err != nil {
		return Volume{}, false
	}

	return Volume{
		Letter:     letter,
		Label:      windows.UTF16ToString(labelBuf),
		FreeBytes:  free,
		TotalBytes: total,
	}, true
}
