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

// Package queue publishes ingested-email events to a Redis list so downstream
// workers can pick up new documents.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/inbound/internal/models"
)

// EventType names the envelope consumers dispatch on.
const EventType = "inbound.email.ingested"

// Publisher sends events to Redis.
type Publisher struct {
	rdb       *redis.Client
	queueName string
	now       func() time.Time
}

// NewPublisher creates a new Redis publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
		now:       time.Now,
	}
}

// envelope wraps an event for Redis transport.
type envelope struct {
	ID          string                `json:"id"`
	Type        string                `json:"type"`
	PublishedAt string                `json:"published_at"`
	Payload     *models.IngestedEvent `json:"payload"`
}

// encode builds the JSON envelope pushed to the queue.
func (p *Publisher) encode(event *models.IngestedEvent) (string, string, error) {
	id := uuid.New().String()
	msg := envelope{
		ID:          id,
		Type:        EventType,
		PublishedAt: p.now().UTC().Format(time.RFC3339),
		Payload:     event,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return "", "", fmt.Errorf("marshal event envelope: %w", err)
	}
	return id, string(b), nil
}

// PublishIngested pushes an ingested-email event. Consumers BRPOP the queue,
// so events are read in publish order.
func (p *Publisher) PublishIngested(ctx context.Context, event *models.IngestedEvent) error {
	id, msg, err := p.encode(event)
	if err != nil {
		return err
	}

	if err := p.rdb.LPush(ctx, p.queueName, msg).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published ingested event",
		"event_id", id,
		"document_id", event.DocumentID,
		"queue", p.queueName,
	)
	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
