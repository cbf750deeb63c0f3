package chain

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest is a keyed BLAKE3 fingerprint of payload bytes, used to
// correlate payloads in logs without printing them.
type Digest [32]byte

// ASCII "poolwire.payload" zero-padded to 32 bytes.
var payloadDomainKey = [32]byte{
	'p', 'o', 'o', 'l', 'w', 'i', 'r', 'e', '.', 'p', 'a', 'y', 'l', 'o', 'a', 'd',
}

// Sum fingerprints the canonical bytes of a payload.
func Sum(b []byte) Digest {
	hasher, err := blake3.NewKeyed(payloadDomainKey[:])
	if err != nil {
		panic("chain: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(b)
	var d Digest
	copy(d[:], hasher.Sum(nil))
	return d
}

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Short returns the first eight hex characters.
func (d Digest) Short() string {
	return hex.EncodeToString(d[:4])
}
