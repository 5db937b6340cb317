package mmap

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrInvalidLength is returned when a mapping is requested with a negative
// length.
var ErrInvalidLength = errors.New("mmap: invalid mapping length")

// Mapping represents one anonymous memory mapping.
// It owns the underlying region and is responsible for unmapping it; there is
// exactly one owner per region, and ownership never transfers.
type Mapping struct {
	data   []byte
	closed atomic.Bool
	// unmap is the platform-specific function to release the region.
	unmap func([]byte) error
}

// MapAnon maps length bytes of anonymous, private, zero-initialized memory.
// The pages are demand-faulted, so a large mapping costs nothing until it is
// touched. length == 0 yields a valid empty mapping.
func MapAnon(length int) (*Mapping, error) {
	return mapAnon(length, false)
}

// MapHuge is MapAnon with huge-page backing requested where the platform has
// it (see HugePagesSupported). The kernel rejects the request when no huge
// pages are reserved; callers must treat the error as a signal to fall back.
// length should be a multiple of the system's huge page size.
func MapHuge(length int) (*Mapping, error) {
	return mapAnon(length, true)
}

func mapAnon(length int, huge bool) (*Mapping, error) {
	if length < 0 {
		return nil, ErrInvalidLength
	}
	if length == 0 {
		// OK to leave data nil; Close has nothing to unmap.
		return &Mapping{}, nil
	}

	data, unmapFunc, err := osMapAnon(length, huge)
	if err != nil {
		return nil, fmt.Errorf("mmap: map %d anonymous bytes (huge=%t): %w", length, huge, err)
	}

	return &Mapping{
		data:  data,
		unmap: unmapFunc,
	}, nil
}

// Close unmaps the region. It is idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil // Already closed
	}
	if m.unmap != nil && m.data != nil {
		if err := m.unmap(m.data); err != nil {
			return fmt.Errorf("mmap: unmap: %w", err)
		}
	}
	return nil
}

// Bytes returns the mapped region.
// Warning: the slice is valid only until Close() is called. Accessing it
// after Close() results in undefined behavior (likely a crash).
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Len returns the length of the mapping in bytes. An empty mapping has
// length 0.
func (m *Mapping) Len() int {
	return len(m.data)
}
