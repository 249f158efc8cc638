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
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/bcem/inbound/internal/form"
)

type state int

const (
	stateCollecting state = iota
	stateFinalizing
	stateJoined
	stateTerminal
)

// Attachment is a file part buffered to local storage and not yet uploaded.
type Attachment struct {
	FieldName string
	Path      string
	Filename  string
	Encoding  string
	MimeType  string
}

// Request accumulates one inbound email's fields and files. It is created by
// Pipeline.NewRequest, finalized exactly once, and never shared between
// inbound calls. A Request is not safe for concurrent use.
type Request struct {
	tempDir     string
	state       state
	fields      map[string]string
	attachments []Attachment
}

var _ form.Sink = (*Request)(nil)

func newRequest(tempDir string) *Request {
	return &Request{
		tempDir: tempDir,
		fields:  make(map[string]string),
	}
}

// Field records a plain form value. A repeated name keeps the last value.
func (r *Request) Field(name, value string) {
	if r.state != stateCollecting {
		return
	}
	r.fields[name] = value
}

// File buffers a file part to a uniquely named temp file. The original
// filename is never used to build the local path, so concurrent requests
// sharing a temp directory cannot collide.
func (r *Request) File(part form.FilePart) error {
	if r.state != stateCollecting {
		return ErrRequestFinalized
	}

	f, err := os.CreateTemp(r.tempDir, "inbound-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	_, copyErr := io.Copy(f, part.Body)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		removeTemp(f.Name())
		return fmt.Errorf("buffer %s: %w", part.FieldName, err)
	}

	r.attachments = append(r.attachments, Attachment{
		FieldName: part.FieldName,
		Path:      f.Name(),
		Filename:  part.Filename,
		Encoding:  part.Encoding,
		MimeType:  part.MimeType,
	})
	slog.Debug("buffered attachment",
		"field", part.FieldName,
		"filename", part.Filename,
		"path", f.Name(),
	)
	return nil
}

// Fields returns a copy of the collected fields.
func (r *Request) Fields() map[string]string {
	out := make(map[string]string, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}

// Attachments returns a copy of the collected attachments.
func (r *Request) Attachments() []Attachment {
	out := make([]Attachment, len(r.attachments))
	copy(out, r.attachments)
	return out
}

// Discard abandons a request that will not be finalized and removes its
// temp files.
func (r *Request) Discard() {
	if r.state == stateTerminal {
		return
	}
	r.state = stateTerminal
	r.cleanup()
}

func (r *Request) cleanup() {
	for _, a := range r.attachments {
		removeTemp(a.Path)
	}
}

func removeTemp(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to remove temp file", "path", path, "error", err)
	}
}
