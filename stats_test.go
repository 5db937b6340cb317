package arenago

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStats_String(t *testing.T) {
	s := Stats{
		BlockSize:              4096,
		MemoryAllocatedBytes:   6144,
		AllocatedAndUnused:     2048,
		ApproximateMemoryUsage: 0,
		IrregularBlockNum:      1,
	}

	assert.Equal(t,
		"block_size=4.0 KiB allocated=6.0 KiB unused=2.0 KiB usage=0 B irregular_blocks=1",
		s.String())
}
