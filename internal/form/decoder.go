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

// Package form decodes a multipart/form-data request body part by part,
// handing plain fields and file streams to a Sink as they arrive. File bodies
// are passed through byte for byte; only plain field values are decoded.
package form

import (
	"errors"
	"fmt"
	"io"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/textproto"
)

// FilePart is a file field. Body yields the bytes exactly as sent and must be
// consumed before Sink.File returns.
type FilePart struct {
	FieldName string
	Filename  string
	Encoding  string // Content-Transfer-Encoding as received, "7bit" when absent
	MimeType  string
	Body      io.Reader
}

// Sink receives decoded parts in the order they appear in the body.
type Sink interface {
	Field(name, value string)
	File(part FilePart) error
}

// ErrNotFormData is returned when the body is not multipart/form-data.
var ErrNotFormData = errors.New("content type is not multipart/form-data")

// Decode streams body, described by contentType, into sink. It returns after
// the final boundary has been read.
func Decode(body io.Reader, contentType string, sink Sink) error {
	var h message.Header
	h.Set("Content-Type", contentType)

	mediaType, params, err := h.ContentType()
	if err != nil {
		return fmt.Errorf("parse content type: %w", err)
	}
	if mediaType != "multipart/form-data" || params["boundary"] == "" {
		return ErrNotFormData
	}

	mr := textproto.NewMultipartReader(body, params["boundary"])
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read part: %w", err)
		}
		if err := dispatch(p, sink); err != nil {
			return err
		}
	}
}

func dispatch(p *textproto.Part, sink Sink) error {
	h := message.Header{Header: p.Header}
	disp, params, err := h.ContentDisposition()
	name := params["name"]
	if err != nil || disp != "form-data" || name == "" {
		// Not a form field; drain it so the reader can advance.
		_, err := io.Copy(io.Discard, p)
		return err
	}

	filename, isFile := params["filename"]
	if !isFile {
		value, err := readField(h, p)
		if err != nil {
			return fmt.Errorf("read field %s: %w", name, err)
		}
		sink.Field(name, value)
		return nil
	}

	mimeType, _, err := h.ContentType()
	if err != nil || mimeType == "" {
		mimeType = "application/octet-stream"
	}
	encoding := h.Get("Content-Transfer-Encoding")
	if encoding == "" {
		encoding = "7bit"
	}

	if err := sink.File(FilePart{
		FieldName: name,
		Filename:  filename,
		Encoding:  encoding,
		MimeType:  mimeType,
		Body:      p,
	}); err != nil {
		return fmt.Errorf("store file %s: %w", name, err)
	}
	// The sink may stop early; finish the part before moving on.
	_, err = io.Copy(io.Discard, p)
	return err
}

// readField returns a plain field's value with its transfer encoding and
// charset decoded.
func readField(h message.Header, body io.Reader) (string, error) {
	e, err := message.New(h, body)
	if err != nil && !tolerable(err) {
		return "", err
	}
	value, err := io.ReadAll(e.Body)
	if err != nil {
		return "", err
	}
	return string(value), nil
}

// tolerable reports errors go-message returns alongside a usable entity.
func tolerable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}
