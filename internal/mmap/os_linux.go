//go:build linux

package mmap

import "golang.org/x/sys/unix"

// HugePagesSupported reports whether anonymous mappings can be backed by huge
// pages on this platform.
const HugePagesSupported = true

func osMapAnon(length int, huge bool) ([]byte, func([]byte) error, error) {
	prot := unix.PROT_READ | unix.PROT_WRITE
	flags := unix.MAP_ANON | unix.MAP_PRIVATE
	if huge {
		flags |= unix.MAP_HUGETLB
	}

	data, err := unix.Mmap(-1, 0, length, prot, flags)
	if err != nil {
		return nil, nil, err
	}

	return data, unix.Munmap, nil
}
