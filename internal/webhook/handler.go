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

// Package webhook receives Mailgun inbound-route callbacks and hands each
// multipart form to the ingestion pipeline.
package webhook

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bcem/inbound/internal/form"
	"github.com/bcem/inbound/internal/ingest"
)

const successMessage = "Email received and processed successfully: "

// Handler serves the inbound webhook endpoint.
type Handler struct {
	pipeline *ingest.Pipeline
	verifier *Verifier // nil disables signature checks
	maxBytes int64
}

// NewHandler creates a webhook handler. maxBytes <= 0 leaves the request
// body unbounded.
func NewHandler(pipeline *ingest.Pipeline, verifier *Verifier, maxBytes int64) *Handler {
	return &Handler{
		pipeline: pipeline,
		verifier: verifier,
		maxBytes: maxBytes,
	}
}

// ServeInbound handles one inbound email.
//
//   - Non-POST requests get 405 with an empty body.
//   - A body that is not a readable multipart form gets 400.
//   - A bad or stale signature gets 406, which Mailgun treats as final.
//   - A failed document write gets 500 so Mailgun retries.
//
// Attachment failures do not change the response.
func (h *Handler) ServeInbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}

	req := h.pipeline.NewRequest()
	if err := form.Decode(r.Body, r.Header.Get("Content-Type"), req); err != nil {
		req.Discard()
		derr := &ingest.DecodeError{Err: err}
		slog.Warn("rejected inbound request",
			"remote", r.RemoteAddr,
			"error", derr,
		)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if h.verifier != nil {
		if err := h.verifier.Verify(r.Context(), req.Fields()); err != nil {
			req.Discard()
			slog.Warn("inbound signature rejected",
				"remote", r.RemoteAddr,
				"error", err,
			)
			http.Error(w, "Not acceptable", http.StatusNotAcceptable)
			return
		}
	}

	result, err := h.pipeline.Finalize(r.Context(), req)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, successMessage+result.DocumentID())
}
