package v1

import (
	"github.com/danmuck/poolwire/internal/chain"
	"github.com/danmuck/poolwire/internal/protocol/message"
	"github.com/danmuck/poolwire/internal/protocol/payload"
	"github.com/danmuck/poolwire/internal/protocol/wire"
)

const clientSchemaName = "v1.client"

// Client to server message ids.
const (
	IDConnect    message.ID = 128
	IDShareBlock message.ID = 129
	IDDisconnect message.ID = 130
)

type DeferredProof = payload.Deferred[chain.Proof, *chain.Proof]

// ClientMessage is a message sent by a worker or agent.
type ClientMessage interface {
	message.Message
	appendFields(w *wire.Writer) error
	clientMessage()
}

// Connect := (type, version(major, minor, patch), name)
type Connect struct {
	WorkerType message.WorkerType
	Major      uint8
	Minor      uint8
	Patch      uint8
	CustomName string
}

func (Connect) ID() message.ID { return IDConnect }
func (Connect) Name() string   { return "PoolConnect" }
func (Connect) clientMessage() {}

func (m Connect) appendFields(w *wire.Writer) error {
	w.U8(uint8(m.WorkerType))
	w.U8(m.Major)
	w.U8(m.Minor)
	w.U8(m.Patch)
	w.String(m.CustomName)
	return nil
}

// ShareBlock := (id, address, nonce, previous_block_hash, proof)
type ShareBlock struct {
	WorkerID          uint32
	Address           chain.Address
	Nonce             chain.Nonce
	PreviousBlockHash chain.BlockHash
	Proof             DeferredProof
}

func (ShareBlock) ID() message.ID { return IDShareBlock }
func (ShareBlock) Name() string   { return "PoolShareBlock" }
func (ShareBlock) clientMessage() {}

func (m ShareBlock) appendFields(w *wire.Writer) error {
	w.U32(m.WorkerID)
	w.Object(m.Address)
	w.Object(m.Nonce)
	w.Object(m.PreviousBlockHash)
	w.RestFunc(m.Proof.AppendTo)
	return nil
}

// Disconnect := (id)
type Disconnect struct {
	WorkerID uint32
}

func (Disconnect) ID() message.ID { return IDDisconnect }
func (Disconnect) Name() string   { return "PoolDisconnect" }
func (Disconnect) clientMessage() {}

func (m Disconnect) appendFields(w *wire.Writer) error {
	w.U32(m.WorkerID)
	return nil
}

var clientTable = message.Table[ClientMessage]{
	IDConnect:    {Name: "PoolConnect", Decode: decodeConnect},
	IDShareBlock: {Name: "PoolShareBlock", Decode: decodeShareBlock},
	IDDisconnect: {Name: "PoolDisconnect", Decode: decodeDisconnect},
}

func decodeConnect(r *wire.Reader) (ClientMessage, error) {
	m := Connect{
		WorkerType: message.WorkerType(r.U8()),
		Major:      r.U8(),
		Minor:      r.U8(),
		Patch:      r.U8(),
		CustomName: r.String(),
	}
	return m, r.Err()
}

func decodeShareBlock(r *wire.Reader) (ClientMessage, error) {
	m := ShareBlock{WorkerID: r.U32()}
	r.Object(chain.AddressSize, &m.Address)
	r.Object(chain.NonceSize, &m.Nonce)
	r.Object(chain.BlockHashSize, &m.PreviousBlockHash)
	proof := r.Rest()
	if err := r.Err(); err != nil {
		return nil, err
	}
	m.Proof = payload.Raw[chain.Proof, *chain.Proof](proof)
	return m, nil
}

func decodeDisconnect(r *wire.Reader) (ClientMessage, error) {
	m := Disconnect{WorkerID: r.U32()}
	return m, r.Err()
}

type clientSchema struct{}

// ClientToServer is the v1 schema for messages workers send.
var ClientToServer message.Schema[ClientMessage] = clientSchema{}

func (clientSchema) Name() string { return clientSchemaName }

func (s clientSchema) Append(dst []byte, m ClientMessage) ([]byte, error) {
	if m == nil {
		return dst, message.ErrNilMessage
	}
	return message.Append(s.Name(), dst, m, m.appendFields)
}

func (s clientSchema) Decode(body []byte) (ClientMessage, error) {
	return clientTable.Decode(s.Name(), body)
}
