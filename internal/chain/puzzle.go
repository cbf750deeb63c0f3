package chain

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// EpochChallengeSize is the encoded size of an EpochChallenge.
const EpochChallengeSize = 4 + BlockHashSize + 4

// EpochChallenge describes the puzzle workers solve during one epoch.
type EpochChallenge struct {
	EpochNumber    uint32
	EpochBlockHash BlockHash
	Degree         uint32
}

func (c EpochChallenge) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, EpochChallengeSize)
	out = binary.LittleEndian.AppendUint32(out, c.EpochNumber)
	out = append(out, c.EpochBlockHash[:]...)
	out = binary.LittleEndian.AppendUint32(out, c.Degree)
	return out, nil
}

func (c *EpochChallenge) UnmarshalBinary(b []byte) error {
	if len(b) != EpochChallengeSize {
		return fmt.Errorf("%w: epoch challenge needs %d bytes, got %d", ErrInvalidLength, EpochChallengeSize, len(b))
	}
	c.EpochNumber = binary.LittleEndian.Uint32(b[0:4])
	copy(c.EpochBlockHash[:], b[4:4+BlockHashSize])
	c.Degree = binary.LittleEndian.Uint32(b[4+BlockHashSize:])
	return nil
}

// solutionHeaderSize covers every Solution field ahead of the proof.
const solutionHeaderSize = AddressSize + 8 + CommitmentSize

// Solution is a worker's answer to an EpochChallenge. The proof runs to
// the end of the encoding.
type Solution struct {
	Address    Address
	Nonce      uint64
	Commitment [CommitmentSize]byte
	Proof      Proof
}

func (s Solution) MarshalBinary() ([]byte, error) {
	if len(s.Proof) == 0 {
		return nil, ErrEmptyProof
	}
	out := make([]byte, 0, solutionHeaderSize+len(s.Proof))
	out = append(out, s.Address[:]...)
	out = binary.LittleEndian.AppendUint64(out, s.Nonce)
	out = append(out, s.Commitment[:]...)
	out = append(out, s.Proof...)
	return out, nil
}

func (s *Solution) UnmarshalBinary(b []byte) error {
	if len(b) <= solutionHeaderSize {
		return fmt.Errorf("%w: solution needs more than %d bytes, got %d", ErrInvalidLength, solutionHeaderSize, len(b))
	}
	copy(s.Address[:], b[:AddressSize])
	s.Nonce = binary.LittleEndian.Uint64(b[AddressSize : AddressSize+8])
	copy(s.Commitment[:], b[AddressSize+8:solutionHeaderSize])
	s.Proof = append(Proof(nil), b[solutionHeaderSize:]...)
	return nil
}

func (s Solution) Equal(o Solution) bool {
	return s.Address == o.Address &&
		s.Nonce == o.Nonce &&
		s.Commitment == o.Commitment &&
		bytes.Equal(s.Proof, o.Proof)
}

// Digest fingerprints the canonical encoding. It returns the zero digest
// for a solution that cannot be encoded.
func (s Solution) Digest() Digest {
	b, err := s.MarshalBinary()
	if err != nil {
		return Digest{}
	}
	return Sum(b)
}
