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

// Package fields restricts an inbound form's fields to the parsed-message
// parameters Mailgun documents and coerces the numeric ones.
//
// Refer: https://documentation.mailgun.com/en/latest/user_manual.html#parsed-messages-parameters
package fields

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Recognized field names.
const (
	Recipient         = "recipient"
	Sender            = "sender"
	From              = "from"
	Subject           = "subject"
	BodyPlain         = "body-plain"
	StrippedText      = "stripped-text"
	StrippedSignature = "stripped-signature"
	BodyHTML          = "body-html"
	StrippedHTML      = "stripped-html"
	AttachmentCount   = "attachment-count"
	Timestamp         = "timestamp"
	Token             = "token"
	Signature         = "signature"
	MessageHeaders    = "message-headers"
	ContentIDMap      = "content-id-map"

	// Date is derived from Timestamp and never read from the form.
	Date = "date"
	// Attachments lists uploaded object destinations when the document is
	// written after its uploads settle.
	Attachments = "attachments"
)

var recognized = map[string]bool{
	Recipient: true, Sender: true, From: true, Subject: true,
	BodyPlain: true, StrippedText: true, StrippedSignature: true,
	BodyHTML: true, StrippedHTML: true, AttachmentCount: true,
	Timestamp: true, Token: true, Signature: true,
	MessageHeaders: true, ContentIDMap: true,
}

// NonIndexed lists the long-text fields the document store should not index.
var NonIndexed = []string{
	StrippedText,
	StrippedHTML,
	StrippedSignature,
	BodyHTML,
	BodyPlain,
	MessageHeaders,
	ContentIDMap,
}

var integers = []string{Timestamp, AttachmentCount}

// Fields is a filtered field mapping. Values are strings, int64 for the
// coerced numeric fields, or time.Time for Date.
type Fields map[string]any

// CoercionError reports a numeric field whose value is not an integer.
type CoercionError struct {
	Field string
	Value string
	Err   error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("field %s: %q is not an integer", e.Field, e.Value)
}

func (e *CoercionError) Unwrap() error { return e.Err }

// IsRecognized reports whether name is on the allow-list.
func IsRecognized(name string) bool {
	return recognized[name]
}

// Filter keeps only recognized keys from raw. Timestamp and AttachmentCount
// are converted to int64. A value that fails conversion is kept as the raw
// string and reported in the returned error; callers decide whether to trust
// the result.
func Filter(raw map[string]string) (Fields, error) {
	out := make(Fields, len(raw))
	for k, v := range raw {
		if recognized[k] {
			out[k] = v
		}
	}

	var errs []error
	for _, name := range integers {
		v, ok := out[name].(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, &CoercionError{Field: name, Value: v, Err: err})
			continue
		}
		out[name] = n
	}
	return out, errors.Join(errs...)
}

// DateFromTimestamp interprets ts as seconds since the Unix epoch.
func DateFromTimestamp(ts int64) time.Time {
	return time.Unix(ts, 0).UTC()
}

// WithDate returns a copy of f with Date set from an integer Timestamp.
// When Timestamp is absent or was not coerced, Date is omitted.
func (f Fields) WithDate() Fields {
	out := make(Fields, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	delete(out, Date)
	if ts, ok := f[Timestamp].(int64); ok {
		out[Date] = DateFromTimestamp(ts)
	}
	return out
}
