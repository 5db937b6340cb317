//go:build !linux

package corelocal

// cpuHint reports that no core id query is available on this platform,
// sending callers to the random fallback.
func cpuHint() int {
	return -1
}
