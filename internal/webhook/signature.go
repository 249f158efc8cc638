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

package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/bcem/inbound/internal/fields"
)

var (
	// ErrBadSignature means the signature does not match timestamp+token.
	ErrBadSignature = errors.New("webhook signature mismatch")
	// ErrStaleTimestamp means the signed timestamp is outside the allowed window.
	ErrStaleTimestamp = errors.New("webhook timestamp outside allowed window")
	// ErrReplayedToken means the token has been used before.
	ErrReplayedToken = errors.New("webhook token already used")
)

// TokenGuard remembers tokens that have been accepted.
// Implemented by dedup.Filter.
type TokenGuard interface {
	IsNew(ctx context.Context, token string) (bool, error)
}

// Verifier checks Mailgun webhook signatures: the signature field must be the
// hex HMAC-SHA256 of timestamp+token under the account's signing key.
type Verifier struct {
	key    []byte
	maxAge time.Duration
	tokens TokenGuard
	now    func() time.Time
}

// NewVerifier creates a verifier. A zero maxAge disables the freshness check
// and a nil tokens disables replay protection.
func NewVerifier(signingKey string, maxAge time.Duration, tokens TokenGuard) *Verifier {
	return &Verifier{
		key:    []byte(signingKey),
		maxAge: maxAge,
		tokens: tokens,
		now:    time.Now,
	}
}

// Verify checks the timestamp, token and signature fields of an inbound form.
func (v *Verifier) Verify(ctx context.Context, form map[string]string) error {
	timestamp := form[fields.Timestamp]
	token := form[fields.Token]

	got, err := hex.DecodeString(form[fields.Signature])
	if err != nil || timestamp == "" || token == "" {
		return ErrBadSignature
	}
	if !hmac.Equal(got, v.sign(timestamp, token)) {
		return ErrBadSignature
	}

	if v.maxAge > 0 {
		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return ErrStaleTimestamp
		}
		age := v.now().Sub(time.Unix(ts, 0))
		if age > v.maxAge || age < -v.maxAge {
			return ErrStaleTimestamp
		}
	}

	if v.tokens != nil {
		isNew, err := v.tokens.IsNew(ctx, token)
		if err != nil {
			slog.Warn("token replay check failed, proceeding", "error", err)
		} else if !isNew {
			return ErrReplayedToken
		}
	}
	return nil
}

func (v *Verifier) sign(timestamp, token string) []byte {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(timestamp))
	mac.Write([]byte(token))
	return mac.Sum(nil)
}
