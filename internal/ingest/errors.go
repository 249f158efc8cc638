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

package ingest

import (
	"errors"
	"fmt"

	"github.com/bcem/inbound/internal/keys"
)

// ErrRequestFinalized is returned when a request is used after Finalize or
// Discard.
var ErrRequestFinalized = errors.New("request already finalized")

// DecodeError reports a malformed inbound payload. It is raised before any
// fan-out begins.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode inbound payload: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// WriteError reports that the email document could not be persisted. It is
// fatal for the request.
type WriteError struct {
	Key *keys.Key
	Err error
}

func (e *WriteError) Error() string { return fmt.Sprintf("save document %s: %v", e.Key, e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

// UploadError reports that an attachment upload or its metadata fetch failed.
// No attachment record is written for it.
type UploadError struct {
	Filename    string
	Destination string
	Err         error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s to %s: %v", e.Filename, e.Destination, e.Err)
}
func (e *UploadError) Unwrap() error { return e.Err }

// RecordWriteError reports that an uploaded object has no catalog record.
type RecordWriteError struct {
	Filename    string
	Destination string
	Err         error
}

func (e *RecordWriteError) Error() string {
	return fmt.Sprintf("record attachment %s (%s): %v", e.Filename, e.Destination, e.Err)
}
func (e *RecordWriteError) Unwrap() error { return e.Err }
