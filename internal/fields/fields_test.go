// Copyright (c) 2026 John Earle
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

package fields

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_DropsUnrecognized(t *testing.T) {
	raw := map[string]string{
		"recipient":   "bob@example.com",
		"subject":     "hi",
		"X-Injected":  "evil",
		"__proto__":   "evil",
		"Recipient":   "case matters",
		"attachment-": "close but no",
	}

	got, err := Filter(raw)
	require.NoError(t, err)
	assert.Equal(t, Fields{"recipient": "bob@example.com", "subject": "hi"}, got)
}

func TestFilter_CoercesIntegers(t *testing.T) {
	raw := map[string]string{
		"recipient":        "bob@example.com",
		"timestamp":        "1531499400", // 13/07/2018 @ 4:30pm (UTC)
		"attachment-count": "2",
	}

	got, err := Filter(raw)
	require.NoError(t, err)
	assert.Equal(t, Fields{
		"recipient":        "bob@example.com",
		"timestamp":        int64(1531499400),
		"attachment-count": int64(2),
	}, got)
}

func TestFilter_CoercionFailureKeepsRawValue(t *testing.T) {
	raw := map[string]string{
		"timestamp":        "yesterday",
		"attachment-count": "3",
	}

	got, err := Filter(raw)
	require.Error(t, err)

	var ce *CoercionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, Timestamp, ce.Field)
	assert.Equal(t, "yesterday", got[Timestamp])
	assert.Equal(t, int64(3), got[AttachmentCount])

	_, hasDate := got.WithDate()[Date]
	assert.False(t, hasDate, "date must be omitted when timestamp is not an integer")
}

// TestFilter_AllowListProperty checks, over random inputs, that no key outside
// the allow-list survives and no recognized key present in the input is lost.
func TestFilter_AllowListProperty(t *testing.T) {
	names := []string{"junk", "date", "attachments", "Subject", "x-mailgun-sid"}
	for k := range recognized {
		names = append(names, k)
	}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		raw := make(map[string]string)
		for _, n := range names {
			if rng.Intn(2) == 0 {
				raw[n] = "v"
			}
		}

		got, _ := Filter(raw)
		for k := range got {
			assert.True(t, IsRecognized(k), "unrecognized key %q persisted", k)
		}
		for k := range raw {
			if IsRecognized(k) {
				_, ok := got[k]
				assert.True(t, ok, "recognized key %q dropped", k)
			}
		}
	}
}

func TestFilter_Deterministic(t *testing.T) {
	raw := map[string]string{"timestamp": "10", "from": "a@b"}
	first, err1 := Filter(raw)
	second, err2 := Filter(raw)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, first, second)
	assert.Equal(t, "10", raw["timestamp"], "input must not be modified")
}

func TestDateFromTimestamp(t *testing.T) {
	want := time.Date(2018, time.July, 13, 16, 30, 0, 0, time.UTC)
	assert.True(t, want.Equal(DateFromTimestamp(1531499400)))
	assert.Equal(t, time.UTC, DateFromTimestamp(0).Location())
}

func TestWithDate(t *testing.T) {
	f := Fields{Timestamp: int64(1531499400), Recipient: "bob@example.com"}

	got := f.WithDate()
	assert.Equal(t, time.Date(2018, time.July, 13, 16, 30, 0, 0, time.UTC), got[Date])
	_, mutated := f[Date]
	assert.False(t, mutated)

	_, hasDate := Fields{Recipient: "x"}.WithDate()[Date]
	assert.False(t, hasDate)
}
