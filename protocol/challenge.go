package protocol

import (
	"crypto/sha256"

	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/karstnet/karst/protocol/primitives"
)

// SelectBlockIndex deterministically picks which block of a file a client
// must be served for a spot check. Hosts cannot predict the choice without
// the epoch and client key, and every party derives the same index.
// Returns 0 when numBlocks is 0.
func SelectBlockIndex(epoch primitives.Epoch, fileRoot, clientPubkey [32]byte, numBlocks uint64) uint64 {
	if numBlocks == 0 {
		return 0
	}
	h := sha256.New()
	h.Write(bytesutil.Uint64ToBytesBigEndian(uint64(epoch)))
	h.Write(fileRoot[:])
	h.Write(clientPubkey[:])
	digest := h.Sum(nil)
	return bytesutil.BytesToUint64BigEndian(digest[:8]) % numBlocks
}
