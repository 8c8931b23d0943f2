// Copyright 2026 The Draftbridge Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import "sync"

// cappedBuffer is an io.Writer that retains the first limit bytes and
// discards the rest, keeping count of what was dropped. The engine's
// streams are diagnostic-only; a misbehaving engine spewing gigabytes
// must not grow service memory.
//
// Writes are serialized: the os/exec machinery may deliver stdout and
// stderr copies from separate goroutines when the same buffer is
// shared (it is not here, but the lock is cheap and removes the
// dependency on that detail).
type cappedBuffer struct {
	mu      sync.Mutex
	limit   int
	data    []byte
	dropped int64
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

// Write never returns an error: a full buffer silently discards,
// because a short-write error here would kill the engine's pipe and
// with it a possibly-succeeding conversion.
func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.limit - len(b.data)
	if room > len(p) {
		room = len(p)
	}
	if room > 0 {
		b.data = append(b.data, p[:room]...)
	}
	b.dropped += int64(len(p) - room)
	return len(p), nil
}

// Bytes returns the retained prefix of the stream.
func (b *cappedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

// Dropped returns how many bytes were discarded past the cap.
func (b *cappedBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
