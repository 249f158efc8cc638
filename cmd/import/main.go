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

// Inbound Email Service: Archive Import Command
//
// Standalone CLI tool that ingests stored .eml files through the same
// pipeline as the webhook: each message becomes a document, and its
// attachments are uploaded and catalogued. Useful for seeding a new
// deployment or replaying mail received while the service was down.
//
// Usage:
//
//	go run ./cmd/import/ --dir ./archive [--recipient inbox@example.com] [--no-events]
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/inbound/internal/config"
	"github.com/bcem/inbound/internal/docstore"
	"github.com/bcem/inbound/internal/eml"
	"github.com/bcem/inbound/internal/ingest"
	"github.com/bcem/inbound/internal/objectstore"
	"github.com/bcem/inbound/internal/queue"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	dirFlag := flag.String("dir", "", "Directory to scan recursively for .eml files (required)")
	recipientFlag := flag.String("recipient", "", "Recipient to record for every message (optional; default = first To address)")
	noEventsFlag := flag.Bool("no-events", false, "Do not publish ingested events to Redis")
	flag.Parse()

	if *dirFlag == "" {
		fmt.Fprintf(os.Stderr, "Error: --dir is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	files, err := findMessages(*dirFlag)
	if err != nil {
		slog.Error("failed to scan directory", "dir", *dirFlag, "error", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		slog.Error("no .eml files found", "dir", *dirFlag)
		os.Exit(1)
	}
	slog.Info("starting archive import", "dir", *dirFlag, "files", len(files))

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := os.MkdirAll(cfg.TempDir, 0o700); err != nil {
		slog.Error("failed to create temp dir", "path", cfg.TempDir, "error", err)
		os.Exit(1)
	}

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	docs, err := docstore.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise document store", "error", err)
		os.Exit(1)
	}

	// --- Object Storage ---
	objects, err := objectstore.New(ctx, objectstore.Config{
		Bucket:          cfg.S3.Bucket,
		Region:          cfg.S3.Region,
		Endpoint:        cfg.S3.Endpoint,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		UsePathStyle:    cfg.S3.UsePathStyle,
	})
	if err != nil {
		slog.Error("failed to create object storage client", "error", err)
		os.Exit(1)
	}

	pcfg := ingest.Config{
		EmailKind:      cfg.EmailEntity,
		AttachmentKind: cfg.AttachmentEntity,
		TempDir:        cfg.TempDir,
		Prefix:         ingest.PrefixMode(cfg.ObjectPrefix),
		Ordering:       ingest.Ordering(cfg.DocumentOrdering),
		Documents:      docs,
		Objects:        objects,
	}

	// --- Connect to Redis ---
	if !*noEventsFlag {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()

		publisher := queue.NewPublisher(rdb, cfg.EventsQueue)
		if err := publisher.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		pcfg.Events = publisher
	}

	pipeline := ingest.NewPipeline(pcfg)

	// --- Run Import ---
	start := time.Now()
	var imported, failed, attachmentsFailed int
	for _, path := range files {
		result, err := importFile(ctx, pipeline, path, *recipientFlag)
		if err != nil {
			failed++
			slog.Error("import failed", "file", path, "error", err)
			continue
		}
		imported++
		attachmentsFailed += len(result.Attachments) - len(result.Recorded())
		slog.Info("imported message",
			"file", path,
			"document_id", result.DocumentID(),
			"attachments", len(result.Recorded()),
		)
	}

	// --- Summary ---
	slog.Info("import complete",
		"imported", imported,
		"failed", failed,
		"attachments_failed", attachmentsFailed,
		"elapsed", time.Since(start),
	)
	if failed > 0 {
		os.Exit(1)
	}
}

func importFile(ctx context.Context, pipeline *ingest.Pipeline, path, recipient string) (*ingest.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	req := pipeline.NewRequest()
	if err := eml.Convert(f, eml.Options{Recipient: recipient}, req); err != nil {
		req.Discard()
		return nil, &ingest.DecodeError{Err: err}
	}
	return pipeline.Finalize(ctx, req)
}

func findMessages(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".eml") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
