// Package merkle implements the binary merkle tree used by gateway spot
// check challenges, so a coordinator, a host, and a client derive the same
// root and proofs over a file's block hashes.
package merkle

import (
	"crypto/sha256"

	"github.com/pkg/errors"
)

// Root folds a list of leaf hashes into a single root. A single leaf is
// its own root and an odd node on any level is promoted unhashed, so the
// root is sensitive to leaf order.
func Root(leaves [][32]byte) [32]byte {
	if len(leaves) == 0 {
		return [32]byte{}
	}
	level := make([][32]byte, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		level = fold(level)
	}
	return level[0]
}

// Proof collects the sibling hashes proving membership of the leaf at
// index. Levels where the node is promoted contribute no sibling.
func Proof(leaves [][32]byte, index uint64) ([][32]byte, error) {
	if index >= uint64(len(leaves)) {
		return nil, errors.Errorf("index %d out of range for %d leaves", index, len(leaves))
	}
	var proof [][32]byte
	level := make([][32]byte, len(leaves))
	copy(level, leaves)
	idx := index
	for len(level) > 1 {
		if sib := idx ^ 1; sib < uint64(len(level)) {
			proof = append(proof, level[sib])
		}
		level = fold(level)
		idx /= 2
	}
	return proof, nil
}

// VerifyProof replays a proof against the leaf count the root was
// computed over.
func VerifyProof(root, leaf [32]byte, proof [][32]byte, index, numLeaves uint64) bool {
	if numLeaves == 0 || index >= numLeaves {
		return false
	}
	node := leaf
	size := numLeaves
	used := 0
	for size > 1 {
		if sib := index ^ 1; sib < size {
			if used >= len(proof) {
				return false
			}
			if index&1 == 1 {
				node = parent(proof[used], node)
			} else {
				node = parent(node, proof[used])
			}
			used++
		}
		index /= 2
		size = (size + 1) / 2
	}
	return used == len(proof) && node == root
}

func fold(level [][32]byte) [][32]byte {
	next := make([][32]byte, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		if i+1 == len(level) {
			next = append(next, level[i])
			continue
		}
		next = append(next, parent(level[i], level[i+1]))
	}
	return next
}

func parent(l, r [32]byte) [32]byte {
	h := sha256.New()
	h.Write(l[:])
	h.Write(r[:])
	var root [32]byte
	copy(root[:], h.Sum(nil))
	return root
}
