package protocol

import (
	"crypto/sha256"

	"github.com/karstnet/karst/encoding/bytesutil"
)

// powDomain separates event proof of work preimages from every other use
// of SHA-256 in the protocol.
const powDomain = "EV1_POW"

// PowChallenge derives the static challenge an author grinds a nonce
// against. The body enters through its hash so challenges stay fixed size.
func PowChallenge(from [32]byte, ts int64, kind Kind, ref [32]byte, body []byte) [32]byte {
	bodyHash := sha256.Sum256(body)
	h := sha256.New()
	h.Write([]byte(powDomain))
	h.Write(from[:])
	h.Write(bytesutil.Uint64ToBytesBigEndian(uint64(ts)))
	h.Write([]byte{byte(kind)})
	h.Write(ref[:])
	h.Write(bodyHash[:])
	return bytesutil.ToBytes32(h.Sum(nil))
}

// PowDigest hashes a challenge with a candidate nonce.
func PowDigest(challenge [32]byte, nonce uint64) [32]byte {
	h := sha256.New()
	h.Write(challenge[:])
	h.Write(bytesutil.Uint64ToBytesBigEndian(nonce))
	return bytesutil.ToBytes32(h.Sum(nil))
}

// HashMeetsDifficulty reports whether the first bits of h are zero.
func HashMeetsDifficulty(h [32]byte, bits uint) bool {
	if bits > 256 {
		return false
	}
	fullBytes := bits / 8
	for i := uint(0); i < fullBytes; i++ {
		if h[i] != 0 {
			return false
		}
	}
	if rem := bits % 8; rem > 0 {
		if h[fullBytes]>>(8-rem) != 0 {
			return false
		}
	}
	return true
}

// VerifyPow checks the nonce and hash attached to an event against the
// given difficulty. Events without an attached proof always fail.
func (e *Event) VerifyPow(bits uint) bool {
	if e.Pow == nil {
		return false
	}
	challenge := PowChallenge(e.From, e.TS, e.Kind, e.Ref, e.Body)
	digest := PowDigest(challenge, e.Pow.Nonce)
	if digest != e.Pow.Hash {
		return false
	}
	return HashMeetsDifficulty(digest, bits)
}

// SolvePow grinds nonces until the difficulty is met. Used by client
// tooling and tests. The search is bounded only by the uint64 space.
func SolvePow(from [32]byte, ts int64, kind Kind, ref [32]byte, body []byte, bits uint) *ProofOfWork {
	challenge := PowChallenge(from, ts, kind, ref, body)
	for nonce := uint64(0); ; nonce++ {
		digest := PowDigest(challenge, nonce)
		if HashMeetsDifficulty(digest, bits) {
			return &ProofOfWork{Nonce: nonce, Hash: digest}
		}
	}
}
