// Package canonical wraps CBOR encoding configured for the RFC 8949 core
// deterministic profile. Every byte sequence that is hashed or signed in
// the protocol, and every row persisted by the coordinator database, goes
// through this package so that one value has exactly one encoding.
package canonical

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Core deterministic: definite lengths only, shortest integer forms,
	// map keys sorted by the bytewise order of their encodings.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Marshal returns the deterministic CBOR encoding of v.
func Marshal(v interface{}) ([]byte, error) {
	enc, err := encMode.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "could not encode canonical cbor")
	}
	return enc, nil
}

// Unmarshal decodes CBOR data into v, rejecting duplicate map keys.
func Unmarshal(data []byte, v interface{}) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "could not decode cbor")
	}
	return nil
}
