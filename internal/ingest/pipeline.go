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

// Package ingest persists an inbound email: its filtered fields become a
// document, each attachment is uploaded to object storage and catalogued as a
// child record of that document. Field and attachment work run concurrently;
// only a failed document write fails the request.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bcem/inbound/internal/fields"
	"github.com/bcem/inbound/internal/keys"
	"github.com/bcem/inbound/internal/models"
)

// Ordering controls when the document is written relative to attachments.
type Ordering string

const (
	// OrderConcurrent writes the document alongside the attachment uploads.
	OrderConcurrent Ordering = "concurrent"
	// OrderAfterUploads waits for every attachment to settle, then writes the
	// document once with the attachments field populated.
	OrderAfterUploads Ordering = "after_uploads"
)

// PrefixMode selects the grouping prefix of object destinations.
type PrefixMode string

const (
	// PrefixRecipient yields {recipient}/{documentId}/{filename}.
	PrefixRecipient PrefixMode = "recipient"
	// PrefixDateRecipient yields {yyyymmdd}/{recipient}/{documentId}/{filename}.
	PrefixDateRecipient PrefixMode = "date_recipient"
)

const unknownRecipient = "unknown-recipient"

// EventPublisher announces completed requests. Implemented by queue.Publisher.
type EventPublisher interface {
	PublishIngested(ctx context.Context, event *models.IngestedEvent) error
}

// Config holds the dependencies and policy for a Pipeline.
type Config struct {
	EmailKind      string
	AttachmentKind string
	TempDir        string
	Prefix         PrefixMode
	Ordering       Ordering

	Documents DocumentStore
	Objects   ObjectStore
	Events    EventPublisher // optional

	Now func() time.Time // defaults to time.Now
}

// Pipeline turns finalized requests into persisted documents.
type Pipeline struct {
	cfg      Config
	docs     *DocumentWriter
	records  *RecordWriter
	uploader *Uploader
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(cfg Config) *Pipeline {
	if cfg.EmailKind == "" {
		cfg.EmailKind = "InboundEmail"
	}
	if cfg.AttachmentKind == "" {
		cfg.AttachmentKind = "InboundEmailAttachment"
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = PrefixRecipient
	}
	if cfg.Ordering == "" {
		cfg.Ordering = OrderConcurrent
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{
		cfg:      cfg,
		docs:     NewDocumentWriter(cfg.Documents),
		records:  NewRecordWriter(cfg.Documents, cfg.AttachmentKind),
		uploader: NewUploader(cfg.Objects),
	}
}

// NewRequest starts collecting a new inbound email.
func (p *Pipeline) NewRequest() *Request {
	return newRequest(p.cfg.TempDir)
}

// AttachmentOutcome is the settled result of one attachment task.
type AttachmentOutcome struct {
	Attachment  Attachment
	Destination string
	Metadata    models.ObjectMetadata
	Record      *keys.Key // nil unless the catalog record was written
	Err         error     // *UploadError or *RecordWriteError
}

// Result describes a finalized request.
type Result struct {
	Key         *keys.Key
	Attachments []AttachmentOutcome
}

// DocumentID returns the generated document identifier.
func (r *Result) DocumentID() string {
	return r.Key.Name()
}

// Recorded returns the outcomes whose catalog record was written.
func (r *Result) Recorded() []AttachmentOutcome {
	var out []AttachmentOutcome
	for _, o := range r.Attachments {
		if o.Err == nil {
			out = append(out, o)
		}
	}
	return out
}

// Finalize generates the document key and persists the request. It waits for
// every launched task to settle. The returned error is a *WriteError when the
// document could not be saved; attachment failures are logged and reported
// only through Result.Attachments.
//
// Cancellation of ctx is ignored once fan-out begins.
func (p *Pipeline) Finalize(ctx context.Context, r *Request) (*Result, error) {
	if r.state != stateCollecting {
		return nil, ErrRequestFinalized
	}
	r.state = stateFinalizing
	defer func() {
		r.state = stateTerminal
		r.cleanup()
	}()

	ctx = context.WithoutCancel(ctx)
	key := keys.NewDocumentKey(p.cfg.EmailKind)
	raw := r.Fields()
	attachments := r.Attachments()
	destinations := p.destinations(raw[fields.Recipient], key.Name(), attachments)

	slog.Info("finalizing inbound email",
		"document_id", key.Name(),
		"fields", len(raw),
		"attachments", len(attachments),
		"ordering", p.cfg.Ordering,
	)

	outcomes := make([]AttachmentOutcome, len(attachments))
	var g errgroup.Group

	if p.cfg.Ordering == OrderConcurrent {
		g.Go(func() error {
			return p.docs.Save(ctx, key, raw, nil)
		})
	}
	for i, a := range attachments {
		i, a := i, a
		g.Go(func() error {
			outcomes[i] = p.storeAttachment(ctx, key, a, destinations[i])
			return nil
		})
	}
	// Only the document task returns an error; attachment tasks never cancel
	// their siblings.
	docErr := g.Wait()
	r.state = stateJoined

	if p.cfg.Ordering == OrderAfterUploads {
		stored := make([]string, 0, len(outcomes))
		for _, o := range outcomes {
			if o.Err == nil {
				stored = append(stored, o.Metadata.URI())
			}
		}
		docErr = p.docs.Save(ctx, key, raw, stored)
	}

	result := &Result{Key: key, Attachments: outcomes}
	for _, o := range outcomes {
		if o.Err != nil {
			slog.Error("attachment not stored",
				"document_id", key.Name(),
				"filename", o.Attachment.Filename,
				"destination", o.Destination,
				"error", o.Err,
			)
		}
	}

	if docErr != nil {
		slog.Error("inbound email failed",
			"document_id", key.Name(),
			"error", docErr,
		)
		return result, docErr
	}

	slog.Info("inbound email processed",
		"document_id", key.Name(),
		"attachments_recorded", len(result.Recorded()),
		"attachments_failed", len(outcomes)-len(result.Recorded()),
	)
	p.publish(ctx, raw, result)
	return result, nil
}

// storeAttachment uploads one attachment and records it under parent.
func (p *Pipeline) storeAttachment(ctx context.Context, parent *keys.Key, a Attachment, destination string) AttachmentOutcome {
	out := AttachmentOutcome{Attachment: a, Destination: destination}

	meta, err := p.uploader.Upload(ctx, a, destination)
	if err != nil {
		out.Err = err
		return out
	}
	out.Metadata = meta

	filename := a.Filename
	if filename == "" {
		filename = displayName(a)
	}
	rec, err := p.records.Record(ctx, parent, filename, meta)
	if err != nil {
		out.Err = err
		return out
	}
	out.Record = rec
	return out
}

func (p *Pipeline) publish(ctx context.Context, raw map[string]string, result *Result) {
	if p.cfg.Events == nil {
		return
	}

	event := &models.IngestedEvent{
		DocumentID:  result.DocumentID(),
		DocumentKey: result.Key.String(),
		Recipient:   raw[fields.Recipient],
		Sender:      raw[fields.Sender],
		Subject:     raw[fields.Subject],
		Attachments: []string{},
	}
	if ts, err := strconv.ParseInt(strings.TrimSpace(raw[fields.Timestamp]), 10, 64); err == nil {
		event.ReceivedAt = fields.DateFromTimestamp(ts).Format(time.RFC3339)
	}
	for _, o := range result.Recorded() {
		event.Attachments = append(event.Attachments, o.Metadata.URI())
	}

	if err := p.cfg.Events.PublishIngested(ctx, event); err != nil {
		slog.Error("publish ingested event failed",
			"document_id", event.DocumentID,
			"error", err,
		)
	}
}

// destinations computes {prefix}/{documentID}/{filename} for each attachment.
// Every destination within one email is distinct: a name already taken gets
// the lowest free numeric suffix.
func (p *Pipeline) destinations(recipient, documentID string, attachments []Attachment) []string {
	prefix := pathSegment(recipient)
	if prefix == "" {
		prefix = unknownRecipient
	}
	if p.cfg.Prefix == PrefixDateRecipient {
		prefix = p.cfg.Now().UTC().Format("20060102") + "/" + prefix
	}

	taken := make(map[string]bool, len(attachments))
	out := make([]string, len(attachments))
	for i, a := range attachments {
		name := uniqueName(displayName(a), taken)
		taken[name] = true
		out[i] = prefix + "/" + documentID + "/" + name
	}
	return out
}

func uniqueName(name string, taken map[string]bool) string {
	if !taken[name] {
		return name
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s-%d%s", base, n, ext)
		if !taken[candidate] {
			return candidate
		}
	}
}

// displayName is the attachment's base filename, falling back to its field name.
func displayName(a Attachment) string {
	name := a.Filename
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		name = pathSegment(a.FieldName)
	}
	if name == "" {
		name = "attachment"
	}
	return name
}

// pathSegment makes s safe to use as a single object path segment.
func pathSegment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("/", "_", `\`, "_").Replace(s)
	if s == "." || s == ".." {
		return ""
	}
	return s
}
