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
	"context"
	"log/slog"
	"time"

	"github.com/bcem/inbound/internal/docstore"
	"github.com/bcem/inbound/internal/fields"
	"github.com/bcem/inbound/internal/keys"
	"github.com/bcem/inbound/internal/models"
)

// DocumentStore is the entity store documents and attachment records are
// saved to. Implemented by docstore.Store.
type DocumentStore interface {
	Save(ctx context.Context, e docstore.Entity) (*keys.Key, error)
}

// DocumentWriter persists the filtered email fields.
type DocumentWriter struct {
	store DocumentStore
}

// NewDocumentWriter creates a document writer.
func NewDocumentWriter(store DocumentStore) *DocumentWriter {
	return &DocumentWriter{store: store}
}

// Save filters raw, derives the date from the timestamp, and writes the
// result under key. A non-nil attachments slice is stored as the
// attachments field.
func (w *DocumentWriter) Save(ctx context.Context, key *keys.Key, raw map[string]string, attachments []string) error {
	data, err := fields.Filter(raw)
	if err != nil {
		// Keep going: the raw value is persisted and the date is omitted.
		slog.Warn("inbound fields failed coercion",
			"document_id", key.Name(),
			"error", err,
		)
	}
	data = data.WithDate()
	if attachments != nil {
		data[fields.Attachments] = attachments
	}

	entity := docstore.Entity{
		Key:                key,
		Data:               data,
		ExcludeFromIndexes: fields.NonIndexed,
	}
	if date, ok := data[fields.Date].(time.Time); ok {
		entity.ReceivedAt = date
	}
	if _, err := w.store.Save(ctx, entity); err != nil {
		return &WriteError{Key: key, Err: err}
	}

	slog.Info("email saved",
		"kind", key.Kind(),
		"document_id", key.Name(),
	)
	return nil
}

// RecordWriter persists attachment catalog records as children of a document.
type RecordWriter struct {
	store DocumentStore
	kind  string
}

// NewRecordWriter creates a record writer that saves entities of kind.
func NewRecordWriter(store DocumentStore, kind string) *RecordWriter {
	return &RecordWriter{store: store, kind: kind}
}

// Record saves one attachment record under parent and returns its key.
func (w *RecordWriter) Record(ctx context.Context, parent *keys.Key, filename string, meta models.ObjectMetadata) (*keys.Key, error) {
	rec := models.NewAttachmentRecord(filename, meta)
	key, err := w.store.Save(ctx, docstore.Entity{
		Key:  keys.Child(parent, w.kind),
		Data: rec.Data(),
	})
	if err != nil {
		return nil, &RecordWriteError{Filename: filename, Destination: meta.Name, Err: err}
	}

	slog.Info("attachment recorded",
		"kind", w.kind,
		"filename", filename,
		"key", key.String(),
	)
	return key, nil
}
