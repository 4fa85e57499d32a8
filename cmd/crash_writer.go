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

package cmd

import (
	"os"
)

// CrashWriter appends panic output to a file; main's recover handler
// writes to it so a crash leaves a diagnosable trail on disk instead of
// only a stack trace on stderr.
type CrashWriter struct {
	fileName string
}

// NewCrashWriter returns a CrashWriter appending to fileName.
func NewCrashWriter(fileName string) *CrashWriter {
	return &CrashWriter{fileName: fileName}
}

func (w *CrashWriter) Write(p []byte) (n int, err error) {
	f, err := os.OpenFile(w.fileName, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return
	}
	defer f.Close()

	n, err = f.Write(p)

	return
}
