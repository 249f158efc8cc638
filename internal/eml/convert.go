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

// Package eml converts stored RFC 5322 messages into the form fields and file
// parts of a Mailgun parsed-message callback, so archived mail can be fed
// through the same ingestion path as live webhooks.
package eml

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/jhillyerd/enmime/v2"

	"github.com/bcem/inbound/internal/fields"
	"github.com/bcem/inbound/internal/form"
)

// Options adjusts how a message is converted.
type Options struct {
	// Recipient overrides the recipient taken from the To header.
	Recipient string
	// Now supplies the timestamp when the message has no usable Date header.
	Now func() time.Time
}

// Convert parses raw and feeds its fields and attachments to sink.
func Convert(r io.Reader, opts Options, sink form.Sink) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read message: %w", err)
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("parse message: %w", err)
	}
	headers, err := orderedHeaders(raw)
	if err != nil {
		return err
	}

	recipient := opts.Recipient
	if recipient == "" {
		recipient = firstAddress(env.GetHeader("To"))
	}
	from := env.GetHeader("From")

	sink.Field(fields.Recipient, recipient)
	sink.Field(fields.Sender, firstAddress(from))
	sink.Field(fields.From, from)
	sink.Field(fields.Subject, env.GetHeader("Subject"))
	sink.Field(fields.BodyPlain, env.Text)
	if env.HTML != "" {
		sink.Field(fields.BodyHTML, env.HTML)
	}
	sink.Field(fields.MessageHeaders, headers)
	sink.Field(fields.Timestamp, strconv.FormatInt(timestamp(env.GetHeader("Date"), opts.Now).Unix(), 10))

	parts := append(append([]*enmime.Part{}, env.Attachments...), env.Inlines...)
	if len(parts) == 0 {
		return nil
	}
	sink.Field(fields.AttachmentCount, strconv.Itoa(len(parts)))

	cids := make(map[string]string)
	for i, p := range parts {
		field := fmt.Sprintf("attachment-%d", i+1)
		if p.ContentID != "" {
			cids["<"+strings.Trim(p.ContentID, "<>")+">"] = field
		}
		if err := sink.File(form.FilePart{
			FieldName: field,
			Filename:  p.FileName,
			Encoding:  "binary",
			MimeType:  mimeType(p.ContentType),
			Body:      bytes.NewReader(p.Content),
		}); err != nil {
			return fmt.Errorf("attachment %s: %w", field, err)
		}
	}
	if len(cids) > 0 {
		b, err := json.Marshal(cids)
		if err != nil {
			return fmt.Errorf("encode content-id map: %w", err)
		}
		sink.Field(fields.ContentIDMap, string(b))
	}
	return nil
}

// orderedHeaders renders the top-level header as a JSON array of
// [name, value] pairs in message order.
func orderedHeaders(raw []byte) (string, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return "", fmt.Errorf("read header: %w", err)
	}

	pairs := [][2]string{}
	hf := entity.Header.Fields()
	for hf.Next() {
		pairs = append(pairs, [2]string{hf.Key(), hf.Value()})
	}
	b, err := json.Marshal(pairs)
	if err != nil {
		return "", fmt.Errorf("encode headers: %w", err)
	}
	return string(b), nil
}

func firstAddress(list string) string {
	addrs, err := mail.ParseAddressList(list)
	if err != nil || len(addrs) == 0 {
		return strings.TrimSpace(list)
	}
	return addrs[0].Address
}

func timestamp(date string, now func() time.Time) time.Time {
	if t, err := mail.ParseDate(date); err == nil {
		return t
	}
	if now == nil {
		return time.Now()
	}
	return now()
}

func mimeType(contentType string) string {
	if contentType == "" {
		return "application/octet-stream"
	}
	return contentType
}
