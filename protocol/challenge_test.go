package protocol_test

import (
	"testing"

	"github.com/karstnet/karst/protocol"
	"github.com/karstnet/karst/testing/assert"
	"github.com/karstnet/karst/testing/util"
)

func TestSelectBlockIndex_DeterministicAndBounded(t *testing.T) {
	fileRoot := util.Root32(0x11)
	client := util.Root32(0x22)

	first := protocol.SelectBlockIndex(4, fileRoot, client, 97)
	for i := 0; i < 50; i++ {
		idx := protocol.SelectBlockIndex(4, fileRoot, client, 97)
		assert.Equal(t, first, idx)
		if idx >= 97 {
			t.Fatalf("index %d out of range", idx)
		}
	}
}

func TestSelectBlockIndex_VariesWithInputs(t *testing.T) {
	fileRoot := util.Root32(0x11)
	client := util.Root32(0x22)
	const blocks = 1 << 32

	base := protocol.SelectBlockIndex(4, fileRoot, client, blocks)
	byEpoch := protocol.SelectBlockIndex(5, fileRoot, client, blocks)
	byClient := protocol.SelectBlockIndex(4, fileRoot, util.Root32(0x23), blocks)
	assert.NotEqual(t, base, byEpoch)
	assert.NotEqual(t, base, byClient)
}

func TestSelectBlockIndex_ZeroBlocks(t *testing.T) {
	assert.Equal(t, uint64(0), protocol.SelectBlockIndex(1, util.Root32(1), util.Root32(2), 0))
}
