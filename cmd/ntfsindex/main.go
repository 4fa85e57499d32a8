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

package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/googlecloudplatform/ntfsindex/cmd"
)

func main() {
	defer recoverCrash()
	cmd.Execute()
}

// recoverCrash appends a panic's stack trace to the configured crash log,
// on top of the one Go always prints to stderr, before letting the
// process exit the way an unrecovered panic normally would.
func recoverCrash() {
	r := recover()
	if r == nil {
		return
	}
	if path := cmd.CrashLogFile(); path != "" {
		w := cmd.NewCrashWriter(path)
		fmt.Fprintf(w, "panic: %v\n\n%s\n", r, debug.Stack())
	}
	fmt.Fprintf(os.Stderr, "panic: %v\n\n%s\n", r, debug.Stack())
	os.Exit(2)
}
