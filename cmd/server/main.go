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

// Inbound Email Service
//
// Entry point for the inbound webhook service. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to PostgreSQL, Redis and S3-compatible object storage
//  3. Serves the Mailgun inbound-route webhook and a health endpoint
//  4. Handles graceful shutdown on SIGTERM/SIGINT, draining in-flight requests
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/inbound/internal/config"
	"github.com/bcem/inbound/internal/dedup"
	"github.com/bcem/inbound/internal/docstore"
	"github.com/bcem/inbound/internal/ingest"
	"github.com/bcem/inbound/internal/objectstore"
	"github.com/bcem/inbound/internal/queue"
	"github.com/bcem/inbound/internal/webhook"
)

const shutdownDrain = 15 * time.Second

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	slog.Info("starting inbound email service",
		"port", cfg.Port,
		"bucket", cfg.S3.Bucket,
		"ordering", cfg.DocumentOrdering,
		"prefix", cfg.ObjectPrefix,
		"signature_check", cfg.SigningKey != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

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

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	docs, err := docstore.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise document store", "error", err)
		os.Exit(1)
	}

	// --- Connect to Redis ---
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
	slog.Info("connected to Redis")

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

	// --- Pipeline ---
	pipeline := ingest.NewPipeline(ingest.Config{
		EmailKind:      cfg.EmailEntity,
		AttachmentKind: cfg.AttachmentEntity,
		TempDir:        cfg.TempDir,
		Prefix:         ingest.PrefixMode(cfg.ObjectPrefix),
		Ordering:       ingest.Ordering(cfg.DocumentOrdering),
		Documents:      docs,
		Objects:        objects,
		Events:         publisher,
	})

	// --- Signature Verification ---
	var verifier *webhook.Verifier
	if cfg.SigningKey != "" {
		var tokens webhook.TokenGuard
		if cfg.ReplayProtection {
			tokens = dedup.NewFilter(rdb, 2*cfg.SignatureMaxAge)
		}
		verifier = webhook.NewVerifier(cfg.SigningKey, cfg.SignatureMaxAge, tokens)
	} else {
		slog.Warn("webhook signing key not configured, signatures are not verified")
	}

	// --- Webhook Server ---
	handler := webhook.NewHandler(pipeline, verifier, cfg.MaxRequestBytes)
	router := webhook.NewRouter(handler,
		webhook.HealthCheck{Name: "postgres", Ping: docs.Ping},
		webhook.HealthCheck{Name: "redis", Ping: publisher.Ping},
	)

	done, err := webhook.Serve(ctx, cfg.Port, router, shutdownDrain)
	if err != nil {
		slog.Error("failed to start webhook server", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	slog.Info("received shutdown signal")
	<-done

	slog.Info("inbound email service stopped")
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
