//go:build windows

package mmap

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// HugePagesSupported reports whether anonymous mappings can be backed by huge
// pages on this platform. Windows large pages require the
// SeLockMemoryPrivilege, so they are not requested here.
const HugePagesSupported = false

func osMapAnon(length int, huge bool) ([]byte, func([]byte) error, error) {
	// VirtualAlloc with MEM_COMMIT uses demand-paging: pages are only backed
	// by physical memory when first accessed, similar to Unix mmap behavior.
	_ = huge
	addr, err := windows.VirtualAlloc(0, uintptr(length),
		windows.MEM_RESERVE|windows.MEM_COMMIT, windows.PAGE_READWRITE)
	if err != nil {
		return nil, nil, err
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), length)

	return data, func([]byte) error {
		// VirtualFree with MEM_RELEASE frees the entire region.
		return windows.VirtualFree(addr, 0, windows.MEM_RELEASE)
	}, nil
}
