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

package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bcem/inbound/internal/models"
)

func TestEncode(t *testing.T) {
	p := &Publisher{
		queueName: "inbound-emails",
		now:       func() time.Time { return time.Date(2018, 7, 13, 16, 30, 0, 0, time.UTC) },
	}

	event := &models.IngestedEvent{
		DocumentID:  "doc-1",
		DocumentKey: "InboundEmail:doc-1",
		Recipient:   "bob@example.com",
		Attachments: []string{"s3://b/bob@example.com/doc-1/a.txt"},
	}

	id, msg, err := p.encode(event)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("id %q is not a UUID", id)
	}

	var got struct {
		ID          string                 `json:"id"`
		Type        string                 `json:"type"`
		PublishedAt string                 `json:"published_at"`
		Payload     map[string]interface{} `json:"payload"`
	}
	if err := json.Unmarshal([]byte(msg), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.ID != id {
		t.Errorf("id = %q, want %q", got.ID, id)
	}
	if got.Type != EventType {
		t.Errorf("type = %q, want %q", got.Type, EventType)
	}
	if got.PublishedAt != "2018-07-13T16:30:00Z" {
		t.Errorf("published_at = %q", got.PublishedAt)
	}
	if got.Payload["document_id"] != "doc-1" {
		t.Errorf("payload.document_id = %v", got.Payload["document_id"])
	}
	if _, ok := got.Payload["received_at"]; ok {
		t.Error("empty received_at should be omitted")
	}
}

func TestEncode_UniqueIDs(t *testing.T) {
	p := &Publisher{now: time.Now}
	a, _, _ := p.encode(&models.IngestedEvent{})
	b, _, _ := p.encode(&models.IngestedEvent{})
	if a == b {
		t.Errorf("event ids should differ, both %q", a)
	}
}
