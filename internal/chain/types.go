// Package chain holds the domain objects carried inside pool messages.
//
// The protocol layer treats every type here as opaque: it only needs each
// object's canonical byte codec (MarshalBinary / UnmarshalBinary) and,
// for fixed-size objects, the encoded size. Nothing in this package
// checks cryptographic validity.
package chain

import (
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	AddressSize    = 32
	NonceSize      = 32
	BlockHashSize  = 32
	SignatureSize  = 64
	CommitmentSize = 48
)

var (
	ErrInvalidLength = errors.New("chain: invalid length")
	ErrEmptyProof    = errors.New("chain: empty proof")
)

// Address is an account address in its 32-byte encoded form.
type Address [AddressSize]byte

func (a Address) MarshalBinary() ([]byte, error) {
	out := make([]byte, AddressSize)
	copy(out, a[:])
	return out, nil
}

func (a *Address) UnmarshalBinary(b []byte) error {
	return unmarshalFixed(a[:], b, "address")
}

func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Nonce is the proof-of-work nonce of a share.
type Nonce [NonceSize]byte

func (n Nonce) MarshalBinary() ([]byte, error) {
	out := make([]byte, NonceSize)
	copy(out, n[:])
	return out, nil
}

func (n *Nonce) UnmarshalBinary(b []byte) error {
	return unmarshalFixed(n[:], b, "nonce")
}

type BlockHash [BlockHashSize]byte

func (h BlockHash) MarshalBinary() ([]byte, error) {
	out := make([]byte, BlockHashSize)
	copy(out, h[:])
	return out, nil
}

func (h *BlockHash) UnmarshalBinary(b []byte) error {
	return unmarshalFixed(h[:], b, "block hash")
}

func (h BlockHash) String() string {
	return hex.EncodeToString(h[:])
}

// Signature is the pool's signature over an accepted connection.
type Signature [SignatureSize]byte

func (s Signature) MarshalBinary() ([]byte, error) {
	out := make([]byte, SignatureSize)
	copy(out, s[:])
	return out, nil
}

func (s *Signature) UnmarshalBinary(b []byte) error {
	return unmarshalFixed(s[:], b, "signature")
}

// Proof is an opaque proof blob. Its canonical form is the bytes themselves.
type Proof []byte

func (p Proof) MarshalBinary() ([]byte, error) {
	if len(p) == 0 {
		return nil, ErrEmptyProof
	}
	out := make([]byte, len(p))
	copy(out, p)
	return out, nil
}

func (p *Proof) UnmarshalBinary(b []byte) error {
	if len(b) == 0 {
		return ErrEmptyProof
	}
	*p = append(Proof(nil), b...)
	return nil
}

func (p Proof) Digest() Digest {
	return Sum(p)
}

func unmarshalFixed(dst, b []byte, what string) error {
	if len(b) != len(dst) {
		return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrInvalidLength, what, len(dst), len(b))
	}
	copy(dst, b)
	return nil
}
