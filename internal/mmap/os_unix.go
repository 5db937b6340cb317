//go:build unix && !linux

package mmap

import "golang.org/x/sys/unix"

// HugePagesSupported reports whether anonymous mappings can be backed by huge
// pages on this platform. Non-Linux Unixes expose no MAP_HUGETLB equivalent
// through this package.
const HugePagesSupported = false

func osMapAnon(length int, huge bool) ([]byte, func([]byte) error, error) {
	prot := unix.PROT_READ | unix.PROT_WRITE
	flags := unix.MAP_ANON | unix.MAP_PRIVATE
	// huge is accepted but has no flag to map to here; the mapping is served
	// from normal pages.
	_ = huge

	data, err := unix.Mmap(-1, 0, length, prot, flags)
	if err != nil {
		return nil, nil, err
	}

	return data, unix.Munmap, nil
}
