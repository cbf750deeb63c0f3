package v2

import (
	"github.com/danmuck/poolwire/internal/chain"
	"github.com/danmuck/poolwire/internal/protocol/message"
	"github.com/danmuck/poolwire/internal/protocol/payload"
	"github.com/danmuck/poolwire/internal/protocol/wire"
)

const clientSchemaName = "v2.client"

// Client to server message ids.
const (
	IDConnect        message.ID = 128
	IDSubmitSolution message.ID = 129
	IDDisconnect     message.ID = 130
)

type DeferredSolution = payload.Deferred[chain.Solution, *chain.Solution]

type ClientMessage interface {
	message.Message
	appendFields(w *wire.Writer) error
	clientMessage()
}

// Connect := (type, protocol_version, version(major, minor, patch), address, worker_name)
type Connect struct {
	WorkerType      message.WorkerType
	ProtocolVersion uint16
	Major           uint8
	Minor           uint8
	Patch           uint8
	Address         chain.Address
	WorkerName      string
}

func (Connect) ID() message.ID { return IDConnect }
func (Connect) Name() string   { return "PoolConnect" }
func (Connect) clientMessage() {}

func (m Connect) appendFields(w *wire.Writer) error {
	w.U8(uint8(m.WorkerType))
	w.U16(m.ProtocolVersion)
	w.U8(m.Major)
	w.U8(m.Minor)
	w.U8(m.Patch)
	w.Object(m.Address)
	w.RestString(m.WorkerName)
	return nil
}

// SubmitSolution := (worker_id, job_id, solution)
type SubmitSolution struct {
	WorkerID uint32
	JobID    uint32
	Solution DeferredSolution
}

func (SubmitSolution) ID() message.ID { return IDSubmitSolution }
func (SubmitSolution) Name() string   { return "PoolSubmitSolution" }
func (SubmitSolution) clientMessage() {}

func (m SubmitSolution) appendFields(w *wire.Writer) error {
	w.U32(m.WorkerID)
	w.U32(m.JobID)
	w.RestFunc(m.Solution.AppendTo)
	return nil
}

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
	IDConnect:        {Name: "PoolConnect", Decode: decodeConnect},
	IDSubmitSolution: {Name: "PoolSubmitSolution", Decode: decodeSubmitSolution},
	IDDisconnect:     {Name: "PoolDisconnect", Decode: decodeDisconnect},
}

func decodeConnect(r *wire.Reader) (ClientMessage, error) {
	m := Connect{
		WorkerType:      message.WorkerType(r.U8()),
		ProtocolVersion: r.U16(),
		Major:           r.U8(),
		Minor:           r.U8(),
		Patch:           r.U8(),
	}
	r.Object(chain.AddressSize, &m.Address)
	m.WorkerName = r.RestString()
	return m, r.Err()
}

func decodeSubmitSolution(r *wire.Reader) (ClientMessage, error) {
	m := SubmitSolution{
		WorkerID: r.U32(),
		JobID:    r.U32(),
	}
	solution := r.Rest()
	if err := r.Err(); err != nil {
		return nil, err
	}
	m.Solution = payload.Raw[chain.Solution, *chain.Solution](solution)
	return m, nil
}

func decodeDisconnect(r *wire.Reader) (ClientMessage, error) {
	m := Disconnect{WorkerID: r.U32()}
	return m, r.Err()
}

type clientSchema struct{}

// ClientToServer is the v2 schema for messages workers send.
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
