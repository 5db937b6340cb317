// Package mmap provides anonymous memory mappings for block storage outside
// the Go heap.
//
// # Overview
//
// Allocators in this module hold block memory for the whole lifetime of an
// arena. Backing large blocks with anonymous mappings keeps them out of the
// garbage collector's scan set and, on Linux, allows them to be served from
// huge pages to cut TLB pressure.
//
// # Usage
//
//	m, err := mmap.MapHuge(2 << 20)
//	if err != nil {
//	    // no huge pages reserved; fall back to MapAnon or make([]byte)
//	}
//	defer m.Close()
//
//	buf := m.Bytes()
//
// # Platform Support
//
//   - Linux: mmap(2) with MAP_ANON|MAP_PRIVATE; MapHuge adds MAP_HUGETLB.
//     HugePagesSupported is true.
//   - Other Unix (macOS, BSD): mmap(2) without a huge-page flag; MapHuge
//     behaves like MapAnon. HugePagesSupported is false.
//   - Windows: VirtualAlloc with MEM_RESERVE|MEM_COMMIT (demand-paged, like
//     Unix mmap). HugePagesSupported is false since large pages require the
//     SeLockMemoryPrivilege.
//
// # Failure Model
//
// Mapping failures are ordinary errors: a huge-page request on a machine with
// no reserved huge pages fails with ENOMEM, and the caller is expected to
// fall back to a normal allocation. A zero-length request succeeds and yields
// an empty mapping whose Close performs no unmap.
//
// # Thread Safety
//
// A Mapping is safe for concurrent reads of Bytes. Close is idempotent and
// protected by an atomic flag, but callers must ensure no goroutine touches
// the bytes after Close returns.
package mmap
