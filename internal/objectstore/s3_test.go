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

package objectstore

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// mockS3Client implements API for testing.
type mockS3Client struct {
	putErr  error
	headErr error
	lastPut *s3.PutObjectInput
	body    []byte
	head    *s3.HeadObjectOutput
}

func (m *mockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.lastPut = params
	if m.putErr != nil {
		return nil, m.putErr
	}
	b, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.body = b
	return &s3.PutObjectOutput{ETag: aws.String(`"etag"`)}, nil
}

func (m *mockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if m.headErr != nil {
		return nil, m.headErr
	}
	return m.head, nil
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "part")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestUpload(t *testing.T) {
	t.Parallel()

	mock := &mockS3Client{}
	store := NewWithClient("attachments", mock)
	path := writeTemp(t, "hello attachment")

	err := store.Upload(context.Background(), path, "bob@example.com/id/report.pdf", "application/pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in := mock.lastPut
	if got := aws.ToString(in.Bucket); got != "attachments" {
		t.Errorf("Bucket: got %q, want attachments", got)
	}
	if got := aws.ToString(in.Key); got != "bob@example.com/id/report.pdf" {
		t.Errorf("Key: got %q", got)
	}
	if got := aws.ToString(in.ContentType); got != "application/pdf" {
		t.Errorf("ContentType: got %q", got)
	}
	if got := aws.ToInt64(in.ContentLength); got != int64(len("hello attachment")) {
		t.Errorf("ContentLength: got %d", got)
	}
	sum := md5.Sum([]byte("hello attachment"))
	if got, want := aws.ToString(in.ContentMD5), base64.StdEncoding.EncodeToString(sum[:]); got != want {
		t.Errorf("ContentMD5: got %q, want %q", got, want)
	}
	if string(mock.body) != "hello attachment" {
		t.Errorf("body: got %q", mock.body)
	}
}

func TestUpload_NoContentType(t *testing.T) {
	t.Parallel()

	mock := &mockS3Client{}
	store := NewWithClient("b", mock)

	if err := store.Upload(context.Background(), writeTemp(t, "x"), "k", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.lastPut.ContentType != nil {
		t.Errorf("ContentType: got %q, want nil", *mock.lastPut.ContentType)
	}
}

func TestUpload_MissingFile(t *testing.T) {
	t.Parallel()

	mock := &mockS3Client{}
	store := NewWithClient("b", mock)

	err := store.Upload(context.Background(), filepath.Join(t.TempDir(), "gone"), "k", "")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if mock.lastPut != nil {
		t.Error("PutObject should not be called")
	}
}

func TestUpload_APIError(t *testing.T) {
	t.Parallel()

	denied := errors.New("AccessDenied")
	store := NewWithClient("b", &mockS3Client{putErr: denied})

	err := store.Upload(context.Background(), writeTemp(t, "x"), "k", "")
	if !errors.Is(err, denied) {
		t.Errorf("error: got %v, want wrapped %v", err, denied)
	}
}

func TestMetadata(t *testing.T) {
	t.Parallel()

	mock := &mockS3Client{head: &s3.HeadObjectOutput{
		ContentType:   aws.String("image/png"),
		ContentLength: aws.Int64(2048),
		ETag:          aws.String(`"9e107d9d372bb6826bd81d3542a419d6"`),
	}}
	store := NewWithClient("attachments", mock)

	meta, err := store.Metadata(context.Background(), "r/id/cat.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if meta.Bucket != "attachments" || meta.Name != "r/id/cat.png" {
		t.Errorf("location: got %s/%s", meta.Bucket, meta.Name)
	}
	if meta.ContentType != "image/png" {
		t.Errorf("ContentType: got %q", meta.ContentType)
	}
	if meta.Size != 2048 {
		t.Errorf("Size: got %d", meta.Size)
	}
	if meta.Checksum != "9e107d9d372bb6826bd81d3542a419d6" {
		t.Errorf("Checksum: got %q", meta.Checksum)
	}
	if meta.URI() != "s3://attachments/r/id/cat.png" {
		t.Errorf("URI: got %q", meta.URI())
	}
}

func TestMetadata_Error(t *testing.T) {
	t.Parallel()

	store := NewWithClient("b", &mockS3Client{headErr: errors.New("NotFound")})
	if _, err := store.Metadata(context.Background(), "k"); err == nil {
		t.Fatal("expected error")
	}
}
