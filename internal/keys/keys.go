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

// Package keys builds hierarchical entity keys. A document key is a single
// path element carrying a random identifier; child keys extend the parent's
// path with an incomplete element whose ordinal is assigned by the store.
package keys

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Element is one segment of a key path.
type Element struct {
	Kind string
	Name string // set for named keys
	ID   int64  // set by the store for keys created incomplete
}

func (e Element) complete() bool {
	return e.Name != "" || e.ID != 0
}

func (e Element) String() string {
	switch {
	case e.Name != "":
		return url.QueryEscape(e.Kind) + ":" + url.QueryEscape(e.Name)
	case e.ID != 0:
		return url.QueryEscape(e.Kind) + "#" + strconv.FormatInt(e.ID, 10)
	default:
		return url.QueryEscape(e.Kind) + "#"
	}
}

// Key identifies an entity by its full ancestor path.
type Key struct {
	path []Element
}

// NewDocumentKey returns a fresh top-level key whose name is a random
// (version 4) UUID. Keys are never reused.
func NewDocumentKey(kind string) *Key {
	return &Key{path: []Element{{Kind: kind, Name: uuid.NewString()}}}
}

// Child appends an incomplete element of the given kind to parent's path.
// The returned key is only unique once the store assigns it an ID.
func Child(parent *Key, kind string) *Key {
	path := make([]Element, 0, len(parent.path)+1)
	path = append(path, parent.path...)
	path = append(path, Element{Kind: kind})
	return &Key{path: path}
}

// Path returns a copy of the key's path elements, root first.
func (k *Key) Path() []Element {
	out := make([]Element, len(k.path))
	copy(out, k.path)
	return out
}

func (k *Key) last() Element {
	return k.path[len(k.path)-1]
}

// Kind returns the kind of the key's final element.
func (k *Key) Kind() string { return k.last().Kind }

// Name returns the name of the key's final element. For a document key this
// is the document identifier.
func (k *Key) Name() string { return k.last().Name }

// ID returns the store-assigned ordinal of the key's final element.
func (k *Key) ID() int64 { return k.last().ID }

// Incomplete reports whether the final element still awaits an ID.
func (k *Key) Incomplete() bool { return !k.last().complete() }

// Parent returns the key one level up, or nil for a top-level key.
func (k *Key) Parent() *Key {
	if len(k.path) < 2 {
		return nil
	}
	return &Key{path: k.Path()[:len(k.path)-1]}
}

// WithID returns a completed copy of an incomplete key.
func (k *Key) WithID(id int64) *Key {
	path := k.Path()
	path[len(path)-1].ID = id
	return &Key{path: path}
}

// String encodes the key path, e.g. "InboundEmail:<uuid>/InboundEmailAttachment#7".
func (k *Key) String() string {
	parts := make([]string, len(k.path))
	for i, e := range k.path {
		parts[i] = e.String()
	}
	return strings.Join(parts, "/")
}
