// Package v2 is the second pool protocol generation: epoch-challenge job
// notifications, signed connection grants and solution submissions.
//
// Free-form strings in this generation are always the last field of
// their message and run to the end of the frame body.
package v2

import (
	"github.com/danmuck/poolwire/internal/chain"
	"github.com/danmuck/poolwire/internal/protocol/message"
	"github.com/danmuck/poolwire/internal/protocol/payload"
	"github.com/danmuck/poolwire/internal/protocol/wire"
)

const serverSchemaName = "v2.server"

// Server to client message ids.
const (
	IDConnectAck  message.ID = 0
	IDNotify      message.ID = 1
	IDShutDown    message.ID = 2
	IDShareResult message.ID = 3
)

type DeferredChallenge = payload.Deferred[chain.EpochChallenge, *chain.EpochChallenge]

type ServerMessage interface {
	message.Message
	appendFields(w *wire.Writer) error
	serverMessage()
}

// Grant is what an accepted connection carries.
type Grant struct {
	WorkerID  uint32
	Signature chain.Signature
}

// ConnectAck := (accepted, [worker id, signature])
type ConnectAck struct {
	Accepted bool
	Grant    *Grant
}

func AcceptConnection(id uint32, sig chain.Signature) ConnectAck {
	return ConnectAck{Accepted: true, Grant: &Grant{WorkerID: id, Signature: sig}}
}

func RejectConnection() ConnectAck {
	return ConnectAck{}
}

func (ConnectAck) ID() message.ID { return IDConnectAck }
func (ConnectAck) Name() string   { return "PoolConnectAck" }
func (ConnectAck) serverMessage() {}

func (m ConnectAck) appendFields(w *wire.Writer) error {
	switch {
	case m.Accepted && m.Grant == nil:
		return &message.ConstructionError{Schema: serverSchemaName, Name: m.Name(), Reason: "accepted without worker id and signature"}
	case !m.Accepted && m.Grant != nil:
		return &message.ConstructionError{Schema: serverSchemaName, Name: m.Name(), Reason: "rejected with grant"}
	}
	w.Bool(m.Accepted)
	if m.Accepted {
		w.U32(m.Grant.WorkerID)
		w.Object(m.Grant.Signature)
	}
	return nil
}

// Notify := (job_id, epoch_number, proof_target, epoch_challenge)
type Notify struct {
	JobID       uint32
	EpochNumber uint32
	ProofTarget uint64
	Challenge   DeferredChallenge
}

func (Notify) ID() message.ID { return IDNotify }
func (Notify) Name() string   { return "PoolNotify" }
func (Notify) serverMessage() {}

func (m Notify) appendFields(w *wire.Writer) error {
	w.U32(m.JobID)
	w.U32(m.EpochNumber)
	w.U64(m.ProofTarget)
	w.RestFunc(m.Challenge.AppendTo)
	return nil
}

type ShutDown struct{}

func (ShutDown) ID() message.ID { return IDShutDown }
func (ShutDown) Name() string   { return "PoolShutDown" }
func (ShutDown) serverMessage() {}

func (ShutDown) appendFields(*wire.Writer) error {
	return nil
}

// ShareResult := (job_id, accepted, message)
type ShareResult struct {
	JobID    uint32
	Accepted bool
	Message  string
}

func (ShareResult) ID() message.ID { return IDShareResult }
func (ShareResult) Name() string   { return "PoolShareResult" }
func (ShareResult) serverMessage() {}

func (m ShareResult) appendFields(w *wire.Writer) error {
	w.U32(m.JobID)
	w.Bool(m.Accepted)
	w.RestString(m.Message)
	return nil
}

var serverTable = message.Table[ServerMessage]{
	IDConnectAck:  {Name: "PoolConnectAck", Decode: decodeConnectAck},
	IDNotify:      {Name: "PoolNotify", Decode: decodeNotify},
	IDShutDown:    {Name: "PoolShutDown", Decode: decodeShutDown},
	IDShareResult: {Name: "PoolShareResult", Decode: decodeShareResult},
}

func decodeConnectAck(r *wire.Reader) (ServerMessage, error) {
	if !r.Bool() {
		return RejectConnection(), r.Err()
	}
	g := Grant{WorkerID: r.U32()}
	r.Object(chain.SignatureSize, &g.Signature)
	if err := r.Err(); err != nil {
		return nil, err
	}
	return ConnectAck{Accepted: true, Grant: &g}, nil
}

func decodeNotify(r *wire.Reader) (ServerMessage, error) {
	m := Notify{
		JobID:       r.U32(),
		EpochNumber: r.U32(),
		ProofTarget: r.U64(),
	}
	challenge := r.Rest()
	if err := r.Err(); err != nil {
		return nil, err
	}
	m.Challenge = payload.Raw[chain.EpochChallenge, *chain.EpochChallenge](challenge)
	return m, nil
}

func decodeShutDown(*wire.Reader) (ServerMessage, error) {
	return ShutDown{}, nil
}

func decodeShareResult(r *wire.Reader) (ServerMessage, error) {
	m := ShareResult{
		JobID:    r.U32(),
		Accepted: r.Bool(),
		Message:  r.RestString(),
	}
	return m, r.Err()
}

type serverSchema struct{}

// ServerToClient is the v2 schema for messages the pool sends.
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
