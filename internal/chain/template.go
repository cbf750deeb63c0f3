package chain

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2) so the same
// template always encodes to the same bytes, which keeps a raw template
// and its re-encoded form interchangeable on the wire.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("chain: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic("chain: CBOR decoder initialization failed: " + err.Error())
	}
}

// BlockTemplate is the work a pool hands to a worker in the first
// protocol generation.
type BlockTemplate struct {
	PreviousBlockHash  BlockHash `cbor:"1,keyasint"`
	Height             uint32    `cbor:"2,keyasint"`
	Timestamp          int64     `cbor:"3,keyasint"`
	DifficultyTarget   uint64    `cbor:"4,keyasint"`
	CumulativeWeight   uint64    `cbor:"5,keyasint"`
	PreviousLedgerRoot [32]byte  `cbor:"6,keyasint"`
	Transactions       [][]byte  `cbor:"7,keyasint"`
	CoinbaseRecord     []byte    `cbor:"8,keyasint"`
}

func (t BlockTemplate) MarshalBinary() ([]byte, error) {
	type plain BlockTemplate
	b, err := encMode.Marshal(plain(t))
	if err != nil {
		return nil, fmt.Errorf("chain: encode block template: %w", err)
	}
	return b, nil
}

func (t *BlockTemplate) UnmarshalBinary(b []byte) error {
	type plain BlockTemplate
	var out plain
	if err := decMode.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("chain: decode block template: %w", err)
	}
	*t = BlockTemplate(out)
	return nil
}

// Equal compares templates field by field.
func (t BlockTemplate) Equal(o BlockTemplate) bool {
	if t.PreviousBlockHash != o.PreviousBlockHash ||
		t.Height != o.Height ||
		t.Timestamp != o.Timestamp ||
		t.DifficultyTarget != o.DifficultyTarget ||
		t.CumulativeWeight != o.CumulativeWeight ||
		t.PreviousLedgerRoot != o.PreviousLedgerRoot ||
		!bytes.Equal(t.CoinbaseRecord, o.CoinbaseRecord) ||
		len(t.Transactions) != len(o.Transactions) {
		return false
	}
	for i := range t.Transactions {
		if !bytes.Equal(t.Transactions[i], o.Transactions[i]) {
			return false
		}
	}
	return true
}
