// Package primitives defines the basic value types shared by the protocol
// and storage layers.
package primitives

// Epoch is a settlement period counter since genesis.
type Epoch uint64

// SubOrZero subtracts x from the epoch, clamping at zero instead of
// underflowing.
func (e Epoch) SubOrZero(x uint64) Epoch {
	if uint64(e) < x {
		return 0
	}
	return e - Epoch(x)
}
