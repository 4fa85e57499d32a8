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

package follower

import "errors"

// ErrJournalReset is returned by Poll once the volume's change journal no
// longer matches the cursor the follower was started with (the journal
// was deleted and recreated, or exceeded its retention window). It is
// terminal: every subsequent Poll call returns it again without touching
// the forest, and the caller must re-scan to obtain a fresh cursor.
var ErrJournalReset = errors.New("follower: journal reset, caller must rescan")
