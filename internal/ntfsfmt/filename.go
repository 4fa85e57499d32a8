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
	"encoding/binary"

	"golang.org/x/text/encoding/unicode"
)

// Namespace identifies which of the (possibly several) $FILE_NAME
// attributes on a record a given name belongs to.
type Namespace uint8

const (
	NamespacePOSIX    Namespace = 0
	NamespaceWin32    Namespace = 1
	NamespaceDOS      Namespace = 2
	NamespaceWin32DOS Namespace = 3
)

// Preferred reports whether namespace n should be preferred over
// namespace other when a record carries more than one $FILE_NAME
// attribute. Win32 and Win32+DOS names rank highest, then POSIX, then a
// bare DOS (8.3) name.
func (n Namespace) Preferred(over Namespace) bool {
	rank := func(ns Namespace) int {
		switch ns {
		case NamespaceWin32, NamespaceWin32DOS:
			return 3
		case NamespacePOSIX:
			return 2
		default: // NamespaceDOS
			return 1
		}
	}
	return rank(n) > rank(over)
}

const fileNameAttrMinSize = 66

// FileName is the decoded value of a $FILE_NAME (0x30) attribute.
type FileName struct {
	ParentReference Reference
	Created         uint64
	Modified        uint64
	MFTChanged      uint64
	Accessed        uint64
	AllocatedSize   uint64
	RealSize        uint64
	Flags           uint32
	Namespace       Namespace
	Name            string
}

var utf16LECodec = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// DecodeFileName decodes a resident $FILE_NAME attribute value.
func DecodeFileName(value []byte) (*FileName, error) {
	if len(value) < fileNameAttrMinSize {
		return nil, &TruncatedError{Structure: "FileName", Need: fileNameAttrMinSize, Have: len(value)}
	}

	nameLength := int(value[64])
	nameBytes := int(nameLength) * 2
	if fileNameAttrMinSize+nameBytes > len(value) {
		return nil, &MalformedFieldError{Structure: "FileName", Field: "NameLength", Reason: "name runs past end of attribute value"}
	}

	// A fresh decoder per call: Transformers are not safe for concurrent
	// reuse, and MFT records are decoded from many worker goroutines.
	name, err := utf16LECodec.NewDecoder().String(string(value[fileNameAttrMinSize : fileNameAttrMinSize+nameBytes]))
	if err != nil {
		return nil, &MalformedFieldError{Structure: "FileName", Field: "Name", Reason: "invalid UTF-16: " + err.Error()}
	}

	return &FileName{
		ParentReference: Reference(binary.LittleEndian.Uint64(value[0:8])),
		Created:         binary.LittleEndian.Uint64(value[8:16]),
		Modified:        binary.LittleEndian.Uint64(value[16:24]),
		MFTChanged:      binary.LittleEndian.Uint64(value[24:32]),
		Accessed:        binary.LittleEndian.Uint64(value[32:40]),
		AllocatedSize:   binary.LittleEndian.Uint64(value[40:48]),
		RealSize:        binary.LittleEndian.Uint64(value[48:56]),
		Flags:           binary.LittleEndian.Uint32(value[56:60]),
		Namespace:       Namespace(value[65]),
		Name:            name,
	}, nil
}

// DecodeUTF16LEName decodes a raw UTF-16LE byte slice such as a USN
// record's variable-length file name field.
func DecodeUTF16LEName(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", &MalformedFieldError{Structure: "name", Field: "length", Reason: "odd byte length for UTF-16LE"}
	}
	return utf16LECodec.NewDecoder().String(string(b))
}
