// Package v1 is the first pool protocol generation: block-template work
// and proof shares.
package v1

import (
	"github.com/danmuck/poolwire/internal/chain"
	"github.com/danmuck/poolwire/internal/protocol/message"
	"github.com/danmuck/poolwire/internal/protocol/payload"
	"github.com/danmuck/poolwire/internal/protocol/wire"
)

const serverSchemaName = "v1.server"

// Server to client message ids.
const (
	IDConnectResponse message.ID = 0
	IDWorkerJob       message.ID = 1
	IDShutDown        message.ID = 2
)

type DeferredTemplate = payload.Deferred[chain.BlockTemplate, *chain.BlockTemplate]

// ServerMessage is a message sent by the pool.
type ServerMessage interface {
	message.Message
	appendFields(w *wire.Writer) error
	serverMessage()
}

// ConnectResponse := (accepted, [worker id])
type ConnectResponse struct {
	Accepted bool
	WorkerID *uint32
}

// AcceptConnection builds an accepted response carrying id.
func AcceptConnection(id uint32) ConnectResponse {
	return ConnectResponse{Accepted: true, WorkerID: &id}
}

func RejectConnection() ConnectResponse {
	return ConnectResponse{}
}

func (ConnectResponse) ID() message.ID { return IDConnectResponse }
func (ConnectResponse) Name() string   { return "PoolConnectResponse" }
func (ConnectResponse) serverMessage() {}

func (m ConnectResponse) appendFields(w *wire.Writer) error {
	switch {
	case m.Accepted && m.WorkerID == nil:
		return &message.ConstructionError{Schema: serverSchemaName, Name: m.Name(), Reason: "accepted without worker id"}
	case !m.Accepted && m.WorkerID != nil:
		return &message.ConstructionError{Schema: serverSchemaName, Name: m.Name(), Reason: "rejected with worker id"}
	}
	w.Bool(m.Accepted)
	if m.Accepted {
		w.U32(*m.WorkerID)
	}
	return nil
}

// WorkerJob := (share_difficulty, block_template)
type WorkerJob struct {
	ShareDifficulty uint64
	Template        DeferredTemplate
}

func (WorkerJob) ID() message.ID { return IDWorkerJob }
func (WorkerJob) Name() string   { return "PoolWorkerJob" }
func (WorkerJob) serverMessage() {}

func (m WorkerJob) appendFields(w *wire.Writer) error {
	w.U64(m.ShareDifficulty)
	w.RestFunc(m.Template.AppendTo)
	return nil
}

// ShutDown := ()
type ShutDown struct{}

func (ShutDown) ID() message.ID { return IDShutDown }
func (ShutDown) Name() string   { return "PoolShutDown" }
func (ShutDown) serverMessage() {}

func (ShutDown) appendFields(*wire.Writer) error {
	return nil
}

var serverTable = message.Table[ServerMessage]{
	IDConnectResponse: {Name: "PoolConnectResponse", Decode: decodeConnectResponse},
	IDWorkerJob:       {Name: "PoolWorkerJob", Decode: decodeWorkerJob},
	IDShutDown:        {Name: "PoolShutDown", Decode: decodeShutDown},
}

func decodeConnectResponse(r *wire.Reader) (ServerMessage, error) {
	if !r.Bool() {
		return RejectConnection(), r.Err()
	}
	id := r.U32()
	return AcceptConnection(id), r.Err()
}

func decodeWorkerJob(r *wire.Reader) (ServerMessage, error) {
	difficulty := r.U64()
	template := r.Rest()
	if err := r.Err(); err != nil {
		return nil, err
	}
	return WorkerJob{
		ShareDifficulty: difficulty,
		Template:        payload.Raw[chain.BlockTemplate, *chain.BlockTemplate](template),
	}, nil
}

func decodeShutDown(*wire.Reader) (ServerMessage, error) {
	return ShutDown{}, nil
}

type serverSchema struct{}

// ServerToClient is the v1 schema for messages the pool sends.
var ServerToClient message.Schema[ServerMessage] = serverSchema{}

func (serverSchema) Name() string { return serverSchemaName }

func (s serverSchema) Append(dst []byte, m ServerMessage) ([]byte, error) {
	if m == nil {
		return dst, message.ErrNilMessage
	}
	return message.Append(s.Name(), dst, m, m.appendFields)
}

func (s serverSchema) Decode(body []byte) (ServerMessage, error) {
	return serverTable.Decode(s.Name(), body)
}
