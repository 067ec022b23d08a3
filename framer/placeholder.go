// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framer

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// PlaceholderPrefix starts every file placeholder.
const PlaceholderPrefix = "__file__:"

var entropy = struct {
	sync.Mutex
	r *ulid.MonotonicEntropy
}{
	r: ulid.Monotonic(rand.Reader, 0),
}

// NewPlaceholder returns a fresh file placeholder. Placeholders are built
// from a timestamp and monotonic random bits, and are unique across
// goroutines.
func NewPlaceholder() string {
	entropy.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy.r)
	entropy.Unlock()
	return PlaceholderPrefix + id.String()
}

// IsPlaceholder reports whether v is a file placeholder string.
func IsPlaceholder(v interface{}) bool {
	s, ok := v.(string)
	return ok && strings.HasPrefix(s, PlaceholderPrefix)
}
