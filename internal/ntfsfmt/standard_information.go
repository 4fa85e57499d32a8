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

import "encoding/binary"

// StandardInformation is the decoded value of a $STANDARD_INFORMATION
// (0x10) attribute: the timestamps and DOS attribute bits that apply to
// every hard link of a file, regardless of which $FILE_NAME is in use.
type StandardInformation struct {
	Created    uint64 // 100ns intervals since the system epoch
	Modified   uint64
	MFTChanged uint64
	Accessed   uint64
	Attributes uint32
}

const standardInformationMinSize = 48

// DecodeStandardInformation decodes a resident $STANDARD_INFORMATION
// attribute value.
func DecodeStandardInformation(value []byte) (*StandardInformation, error) {
	if len(value) < standardInformationMinSize {
		return nil, &TruncatedError{Structure: "StandardInformation", Need: standardInformationMinSize, Have: len(value)}
	}
	return &StandardInformation{
		Created:    binary.LittleEndian.Uint64(value[0:8]),
		Modified:   binary.LittleEndian.Uint64(value[8:16]),
		MFTChanged: binary.LittleEndian.Uint64(value[16:24]),
		Accessed:   binary.LittleEndian.Uint64(value[24:32]),
		Attributes: binary.LittleEndian.Uint32(value[32:36]),
	}, nil
}
