//go:build linux

package corelocal

import "golang.org/x/sys/unix"

// cpuHint returns the id of the core the calling thread runs on, or a
// negative value when the query fails.
func cpuHint() int {
	cpu, _, err := unix.Getcpu()
	if err != nil {
		return -1
	}
	return cpu
}
