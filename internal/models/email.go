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

// Package models defines the data structures shared across the inbound service.
package models

import "fmt"

// ObjectMetadata describes an object after it has been written to the object store.
type ObjectMetadata struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum"`
}

// URI returns the object's location, e.g. "s3://bucket/name".
func (m ObjectMetadata) URI() string {
	return fmt.Sprintf("s3://%s/%s", m.Bucket, m.Name)
}

// AttachmentRecord is the catalog entry stored as a child of the email document.
type AttachmentRecord struct {
	Bucket      string
	Name        string
	Filename    string
	ContentType string
	Size        int64
	Checksum    string
}

// NewAttachmentRecord pairs post-upload metadata with the original filename.
func NewAttachmentRecord(filename string, meta ObjectMetadata) AttachmentRecord {
	return AttachmentRecord{
		Bucket:      meta.Bucket,
		Name:        meta.Name,
		Filename:    filename,
		ContentType: meta.ContentType,
		Size:        meta.Size,
		Checksum:    meta.Checksum,
	}
}

// Data returns the record as a property map for the document store.
func (r AttachmentRecord) Data() map[string]any {
	return map[string]any{
		"bucket":      r.Bucket,
		"name":        r.Name,
		"filename":    r.Filename,
		"contentType": r.ContentType,
		"size":        r.Size,
		"checksum":    r.Checksum,
	}
}

// IngestedEvent announces a newly persisted email to downstream consumers.
//
// Attachments only lists objects whose catalog records were written.
type IngestedEvent struct {
	DocumentID  string   `json:"document_id"`
	DocumentKey string   `json:"document_key"`
	Recipient   string   `json:"recipient"`
	Sender      string   `json:"sender"`
	Subject     string   `json:"subject"`
	ReceivedAt  string   `json:"received_at,omitempty"`
	Attachments []string `json:"attachments"`
}
