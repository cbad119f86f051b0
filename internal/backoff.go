// Copyright 2023 UMH Systems GmbH
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

package internal

import (
	"math"
	"math/rand"
	"time"
)

// GetBackoffTime returns a randomized exponential backoff: a random number of slots in [0, 2^retries),
// capped at maximum.
func GetBackoffTime(retries int64, slotTime time.Duration, maximum time.Duration) time.Duration {
	if slotTime <= 0 || retries <= 0 {
		return 0
	}
	if retries >= 63 {
		return maximum
	}
	slots := rand.Int63n(int64(1) << retries) //nolint:gosec

	// prevents overflow
	if slots > 0 && int64(slotTime) > math.MaxInt64/slots {
		return maximum
	}
	backoff := time.Duration(slots) * slotTime
	if backoff > maximum {
		return maximum
	}
	return backoff
}

func SleepBackedOff(retries int64, slotTime time.Duration, maximum time.Duration) {
	time.Sleep(GetBackoffTime(retries, slotTime, maximum))
}
