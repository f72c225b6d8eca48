// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"crypto/subtle"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Buffer holds secret bytes in locked, non-dumpable memory. A Buffer
// must not be copied.
type Buffer struct {
	mu     sync.Mutex
	data   []byte
	closed bool
}

// New allocates a zero-filled Buffer of size bytes.
func New(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("secret: buffer size must be positive, got %d", size)
	}

	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap: %w", err)
	}
	if err := unix.Mlock(data); err != nil {
		unix.Munmap(data)
		return nil, fmt.Errorf("secret: mlock: %w", err)
	}
	if err := unix.Madvise(data, unix.MADV_DONTDUMP); err != nil {
		unix.Munlock(data)
		unix.Munmap(data)
		return nil, fmt.Errorf("secret: madvise(MADV_DONTDUMP): %w", err)
	}
	return &Buffer{data: data}, nil
}

// NewFromBytes copies source into a new Buffer and zeroes source.
func NewFromBytes(source []byte) (*Buffer, error) {
	if len(source) == 0 {
		return nil, fmt.Errorf("secret: cannot protect an empty value")
	}
	buffer, err := New(len(source))
	if err != nil {
		Zero(source)
		return nil, err
	}
	copy(buffer.data, source)
	Zero(source)
	return buffer, nil
}

// Bytes returns the protected bytes. The slice aliases the locked
// region and is invalid after Close.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		panic("secret: read from closed buffer")
	}
	return b.data
}

// String returns a heap copy of the contents, for APIs that only take
// strings.
func (b *Buffer) String() string {
	return string(b.Bytes())
}

// Len returns the size of the secret.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Equal compares the contents with other in constant time.
func (b *Buffer) Equal(other []byte) bool {
	return subtle.ConstantTimeCompare(b.Bytes(), other) == 1
}

// Close zeroes and releases the memory. It is idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	Zero(b.data)

	var firstErr error
	if err := unix.Munlock(b.data); err != nil {
		firstErr = fmt.Errorf("secret: munlock: %w", err)
	}
	if err := unix.Munmap(b.data); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("secret: munmap: %w", err)
	}
	b.data = nil
	return firstErr
}

// Zero overwrites data with zeros.
func Zero(data []byte) {
	for index := range data {
		data[index] = 0
	}
}
