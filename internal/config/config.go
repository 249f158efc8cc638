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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "/app/config/config.yaml"

// S3Config holds object storage settings.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// Config holds all configuration for the inbound service.
type Config struct {
	// Server
	Port            int
	LogLevel        string
	MaxRequestBytes int64

	// Storage
	DatabaseURL string
	S3          S3Config
	TempDir     string

	// Redis
	RedisURL    string
	EventsQueue string

	// Pipeline
	EmailEntity      string
	AttachmentEntity string
	ObjectPrefix     string // "recipient" or "date_recipient"
	DocumentOrdering string // "concurrent" or "after_uploads"

	// Webhook signature verification (disabled when SigningKey is empty)
	SigningKey       string
	ReplayProtection bool
	SignatureMaxAge  time.Duration
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Server struct {
		Port            int    `yaml:"port"`
		LogLevel        string `yaml:"log_level"`
		MaxRequestBytes int64  `yaml:"max_request_bytes"`
	} `yaml:"server"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Storage struct {
		Bucket          string `yaml:"bucket"`
		Region          string `yaml:"region"`
		Endpoint        string `yaml:"endpoint"`
		AccessKeyID     string `yaml:"access_key_id"`
		SecretAccessKey string `yaml:"secret_access_key"`
		UsePathStyle    *bool  `yaml:"use_path_style"`
		TempDir         string `yaml:"temp_dir"`
	} `yaml:"storage"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Events string `yaml:"events"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Pipeline struct {
		EmailEntity      string `yaml:"email_entity"`
		AttachmentEntity string `yaml:"attachment_entity"`
		ObjectPrefix     string `yaml:"object_prefix"`
		DocumentOrdering string `yaml:"document_ordering"`
	} `yaml:"pipeline"`
	Webhook struct {
		SigningKey       string `yaml:"signing_key"`
		ReplayProtection *bool  `yaml:"replay_protection"`
		SignatureMaxAge  string `yaml:"signature_max_age"`
	} `yaml:"webhook"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables. The file is optional unless CONFIG_PATH names it
// explicitly.
func Load() (*Config, error) {
	var raw rawConfig

	configPath, explicit := os.LookupEnv("CONFIG_PATH")
	if !explicit {
		configPath = defaultConfigPath
	}

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	case explicit || !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		Port:            firstPositive(raw.Server.Port, envOrDefaultInt("PORT", 8080)),
		LogLevel:        firstNonEmpty(raw.Server.LogLevel, envOrDefault("LOG_LEVEL", "info")),
		MaxRequestBytes: int64(firstPositive(int(raw.Server.MaxRequestBytes), envOrDefaultInt("MAX_REQUEST_BYTES", 50<<20))),
		DatabaseURL:     firstNonEmpty(raw.Database.URL, envOrDefault("DATABASE_URL", "postgres://localhost:5432/inbound")),
		S3: S3Config{
			Bucket:          firstNonEmpty(raw.Storage.Bucket, os.Getenv("S3_BUCKET")),
			Region:          firstNonEmpty(raw.Storage.Region, os.Getenv("S3_REGION")),
			Endpoint:        firstNonEmpty(raw.Storage.Endpoint, os.Getenv("S3_ENDPOINT")),
			AccessKeyID:     firstNonEmpty(raw.Storage.AccessKeyID, os.Getenv("S3_ACCESS_KEY_ID")),
			SecretAccessKey: firstNonEmpty(raw.Storage.SecretAccessKey, os.Getenv("S3_SECRET_ACCESS_KEY")),
			UsePathStyle:    boolOr(raw.Storage.UsePathStyle, envOrDefaultBool("S3_USE_PATH_STYLE", false)),
		},
		TempDir:          firstNonEmpty(raw.Storage.TempDir, envOrDefault("TEMP_DIR", os.TempDir())),
		RedisURL:         firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		EventsQueue:      firstNonEmpty(raw.Redis.Queues.Events, envOrDefault("EVENTS_QUEUE", "inbound-emails")),
		EmailEntity:      firstNonEmpty(raw.Pipeline.EmailEntity, envOrDefault("EMAIL_ENTITY", "InboundEmail")),
		AttachmentEntity: firstNonEmpty(raw.Pipeline.AttachmentEntity, envOrDefault("ATTACHMENT_ENTITY", "InboundEmailAttachment")),
		ObjectPrefix:     firstNonEmpty(raw.Pipeline.ObjectPrefix, envOrDefault("OBJECT_PREFIX", "recipient")),
		DocumentOrdering: firstNonEmpty(raw.Pipeline.DocumentOrdering, envOrDefault("DOCUMENT_ORDERING", "concurrent")),
		SigningKey:       firstNonEmpty(raw.Webhook.SigningKey, os.Getenv("MAILGUN_SIGNING_KEY")),
		ReplayProtection: boolOr(raw.Webhook.ReplayProtection, envOrDefaultBool("REPLAY_PROTECTION", false)),
		SignatureMaxAge:  envOrDefaultDuration("SIGNATURE_MAX_AGE", 15*time.Minute),
	}

	if raw.Webhook.SignatureMaxAge != "" {
		d, err := time.ParseDuration(raw.Webhook.SignatureMaxAge)
		if err != nil {
			return nil, fmt.Errorf("parse webhook.signature_max_age: %w", err)
		}
		cfg.SignatureMaxAge = d
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.S3.Bucket == "" {
		return fmt.Errorf("no attachment bucket configured (set storage.bucket or S3_BUCKET)")
	}
	switch c.ObjectPrefix {
	case "recipient", "date_recipient":
	default:
		return fmt.Errorf("invalid object prefix %q (want recipient or date_recipient)", c.ObjectPrefix)
	}
	switch c.DocumentOrdering {
	case "concurrent", "after_uploads":
	default:
		return fmt.Errorf("invalid document ordering %q (want concurrent or after_uploads)", c.DocumentOrdering)
	}
	if c.ReplayProtection && c.SigningKey == "" {
		return fmt.Errorf("replay protection requires a signing key")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func boolOr(v *bool, fallback bool) bool {
	if v != nil {
		return *v
	}
	return fallback
}
