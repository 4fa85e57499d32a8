// Copyright 2025 Google LLC
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

package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// A non-zero reference time for tests.
var referenceTime = time.Date(2020, time.January, 1, 12, 0, 0, 0, time.UTC)

const shortTestTimeout = 10 * time.Millisecond // For non-blocking channel checks

// assertNotReceivesTime asserts that ch does NOT fire within a short duration.
func assertNotReceivesTime(t *testing.T, ch <-chan time.Time) {
	t.Helper()
	select {
	case receivedTime := <-ch:
		t.Fatalf("Expected no time on channel, but received %v", receivedTime)
	case <-time.After(shortTestTimeout):
	}
}

func TestSimulatedClock_Now(t *testing.T) {
	testCases := []struct {
		name             string
		initialTimeSetup func(sc *SimulatedClock)
		expectedTime     time.Time
	}{
		{
			name:             "InitialState",
			initialTimeSetup: func(sc *SimulatedClock) {},
			expectedTime:     referenceTime,
		},
		{
			name: "AfterSetTime_ReturnsSetTime",
			initialTimeSetup: func(sc *SimulatedClock) {
				sc.SetTime(referenceTime.Add(time.Minute))
			},
			expectedTime: referenceTime.Add(time.Minute),
		},
		{
			name: "AfterAdvanceTime_ReturnsAdvancedTime",
			initialTimeSetup: func(sc *SimulatedClock) {
				sc.AdvanceTime(time.Hour)
			},
			expectedTime: referenceTime.Add(time.Hour),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clock := NewSimulatedClock(referenceTime)
			tc.initialTimeSetup(clock)

			now := clock.Now()

			assert.True(t, now.Equal(tc.expectedTime), "clock.Now() returned %v, expected %v", now, tc.expectedTime)
		})
	}
}

func TestSimulatedClock_After_FiresOnceAdvancedPastTarget(t *testing.T) {
	clock := NewSimulatedClock(referenceTime)

	ch := clock.After(time.Minute)

	assertNotReceivesTime(t, ch)
	clock.AdvanceTime(30 * time.Second)
	assertNotReceivesTime(t, ch)
	clock.AdvanceTime(30 * time.Second)
	select {
	case fired := <-ch:
		assert.True(t, fired.Equal(referenceTime.Add(time.Minute)), "fired at %v, expected %v", fired, referenceTime.Add(time.Minute))
	case <-time.After(shortTestTimeout):
		t.Fatal("After channel did not fire once the clock advanced past its target")
	}
}

func TestSimulatedClock_After_NonPositiveDurationFiresImmediately(t *testing.T) {
	clock := NewSimulatedClock(referenceTime)

	ch := clock.After(0)

	select {
	case fired := <-ch:
		assert.True(t, fired.Equal(referenceTime))
	case <-time.After(shortTestTimeout):
		t.Fatal("After(0) did not fire immediately")
	}
}
