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

package volio

import (
	"context"
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/googlecloudplatform/ntfsindex/internal/ntfsfmt"
)

// windowsGateway is the real Gateway, backed by a volume handle opened with
// FILE_FLAG_BACKUP_SEMANTICS so that CreateFile succeeds against a volume
// root rather than a regular file.
type windowsGateway struct {
	drive  string
	handle windows.Handle
}

// Open opens a raw handle to driveLetter (e.g. "C:") and returns a Gateway.
// The caller must hold SeBackupPrivilege (administrator) or this fails with
// NeedsElevationError.
func Open(driveLetter string) (Gateway, error) {
	path := `\\.\` + driveLetter
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, fmt.Errorf("volio: invalid drive %q: %w", driveLetter, err)
	}

	handle, err := windows.CreateFile(
		pathPtr,
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS,
		0,
	)
	if err != nil {
		if errors.Is(err, windows.ERROR_ACCESS_DENIED) {
			return nil, &NeedsElevationError{Drive: driveLetter, Cause: err}
		}
		return nil, &IoFailureError{Op: "CreateFile", FRN: 0, Cause: err}
	}

	return &windowsGateway{drive: driveLetter, handle: handle}, nil
}

func deviceIoControl(handle windows.Handle, code uint32, in []byte, out []byte) (uint32, error) {
	var inPtr *byte
	if len(in) > 0 {
		inPtr = &in[0]
	}
	var outPtr *byte
	if len(out) > 0 {
		outPtr = &out[0]
	}
	var returned uint32
	err := windows.DeviceIoControl(handle, code, inPtr, uint32(len(in)), outPtr, uint32(len(out)), &returned, nil)
	return returned, err
}

func (g *windowsGateway) VolumeData(ctx context.Context) (*ntfsfmt.VolumeData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]byte, 128)
	n, err := deviceIoControl(g.handle, codeGetVolumeData, nil, out)
	if err != nil {
		if errors.Is(err, windows.ERROR_INVALID_FUNCTION) {
			return nil, &UnsupportedFilesystemError{Drive: g.drive}
		}
		return nil, &IoFailureError{Op: "GetVolumeData", Code: codeGetVolumeData, Cause: err}
	}
	return ntfsfmt.DecodeVolumeData(out[:n])
}

func (g *windowsGateway) ReadFileRecord(ctx context.Context, frn ntfsfmt.Reference) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in := getFileRecordInput{FileReferenceNumber: uint64(frn)}
	inBytes := (*[8]byte)(unsafe.Pointer(&in))[:]
	out := make([]byte, maxFileRecordBufferSize)
	n, err := deviceIoControl(g.handle, codeGetFileRecord, inBytes, out)
	if err != nil {
		return nil, &IoFailureError{Op: "GetFileRecord", Code: codeGetFileRecord, FRN: uint64(frn), Cause: err}
	}
	return out[:n], nil
}

func (g *windowsGateway) RetrievalPointers(ctx context.Context, frn ntfsfmt.Reference, startVCN int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in := retrievalPointersInput{StartingVCN: startVCN}
	inBytes := (*[8]byte)(unsafe.Pointer(&in))[:]
	out := make([]byte, enumBufferSize)
	n, err := deviceIoControl(g.handle, codeGetRetrievalPtrs, inBytes, out)
	if err != nil {
		return nil, &IoFailureError{Op: "GetRetrievalPointers", Code: codeGetRetrievalPtrs, FRN: uint64(frn), Cause: err}
	}
	return out[:n], nil
}

func (g *windowsGateway) EnumerateUSN(ctx context.Context, startRecordNumber uint64) (EnumResult, error) {
	if err := ctx.Err(); err != nil {
		return EnumResult{}, err
	}
	in := mftEnumData{StartFileReferenceNumber: startRecordNumber, LowUSN: 0, HighUSN: 1<<63 - 1}
	inBytes := (*[24]byte)(unsafe.Pointer(&in))[:]
	out := make([]byte, enumBufferSize)
	n, err := deviceIoControl(g.handle, codeEnumUSNData, inBytes, out)
	if err != nil {
		return EnumResult{}, &IoFailureError{Op: "EnumUSNData", Code: codeEnumUSNData, Cause: err}
	}
	if n < 8 {
		return EnumResult{}, nil
	}
	next := *(*uint64)(unsafe.Pointer(&out[0]))
	records := make([]byte, n-8)
	copy(records, out[8:n])
	return EnumResult{NextRecordNumber: next, Records: records}, nil
}

func (g *windowsGateway) QueryJournal(ctx context.Context) (JournalCursor, error) {
	if err := ctx.Err(); err != nil {
		return JournalCursor{}, err
	}
	var out queryUSNJournalData
	outBytes := (*[56]byte)(unsafe.Pointer(&out))[:]
	_, err := deviceIoControl(g.handle, codeQueryUSNJournal, nil, outBytes)
	if err != nil {
		return JournalCursor{}, &IoFailureError{Op: "QueryUSNJournal", Code: codeQueryUSNJournal, Cause: err}
	}
	return JournalCursor{JournalID: out.JournalID, NextUSN: out.NextUSN}, nil
}

func (g *windowsGateway) ReadJournal(ctx context.Context, cursor JournalCursor) (JournalReadResult, error) {
	if err := ctx.Err(); err != nil {
		return JournalReadResult{}, err
	}
	in := readUSNJournalData{
		StartUSN:   cursor.NextUSN,
		ReasonMask: 0xFFFFFFFF,
		JournalID:  cursor.JournalID,
	}
	inBytes := (*[40]byte)(unsafe.Pointer(&in))[:]
	out := make([]byte, enumBufferSize)
	n, err := deviceIoControl(g.handle, codeReadUSNJournal, inBytes, out)
	if err != nil {
		if errors.Is(err, windows.ERROR_HANDLE_EOF) {
			return JournalReadResult{NextUSN: cursor.NextUSN}, nil
		}
		// The device rejects a cursor naming a stale journal identity (or
		// one whose records have already been purged) with these codes;
		// surface all of them as the journal-reset signal the follower
		// turns terminal on.
		if errors.Is(err, windows.ERROR_JOURNAL_DELETE_IN_PROGRESS) ||
			errors.Is(err, windows.ERROR_JOURNAL_ENTRY_DELETED) ||
			errors.Is(err, windows.ERROR_JOURNAL_NOT_ACTIVE) ||
			errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
			return JournalReadResult{}, &IoFailureError{Op: "ReadUSNJournal", Code: codeReadUSNJournal, Cause: ErrJournalIDMismatch}
		}
		return JournalReadResult{}, &IoFailureError{Op: "ReadUSNJournal", Code: codeReadUSNJournal, Cause: err}
	}
	if n < 8 {
		return JournalReadResult{NextUSN: cursor.NextUSN}, nil
	}
	next := *(*int64)(unsafe.Pointer(&out[0]))
	records := make([]byte, n-8)
	copy(records, out[8:n])
	return JournalReadResult{NextUSN: next, Records: records}, nil
}

func (g *windowsGateway) Close() error {
	return windows.CloseHandle(g.handle)
}
