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

	"github.com/bcem/inbound/internal/models"
)

// ObjectStore is the object storage the uploader writes to.
// Implemented by objectstore.S3.
type ObjectStore interface {
	Upload(ctx context.Context, localPath, destination, contentType string) error
	Metadata(ctx context.Context, destination string) (models.ObjectMetadata, error)
}

// Uploader moves buffered attachments into object storage.
type Uploader struct {
	objects ObjectStore
}

// NewUploader creates an uploader for the given object store.
func NewUploader(objects ObjectStore) *Uploader {
	return &Uploader{objects: objects}
}

// Upload writes the attachment to destination and returns the stored
// object's metadata. The local temp file is removed whether or not the
// upload succeeds.
func (u *Uploader) Upload(ctx context.Context, a Attachment, destination string) (models.ObjectMetadata, error) {
	defer removeTemp(a.Path)

	if err := u.objects.Upload(ctx, a.Path, destination, a.MimeType); err != nil {
		return models.ObjectMetadata{}, &UploadError{Filename: a.Filename, Destination: destination, Err: err}
	}

	meta, err := u.objects.Metadata(ctx, destination)
	if err != nil {
		return models.ObjectMetadata{}, &UploadError{Filename: a.Filename, Destination: destination, Err: err}
	}

	slog.Info("uploaded attachment",
		"filename", a.Filename,
		"destination", meta.URI(),
		"size", meta.Size,
	)
	return meta, nil
}
