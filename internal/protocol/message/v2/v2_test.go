package v2

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/danmuck/poolwire/internal/chain"
	"github.com/danmuck/poolwire/internal/protocol/message"
	"github.com/danmuck/poolwire/internal/protocol/payload"
	"github.com/danmuck/poolwire/internal/protocol/wire"
	"github.com/danmuck/poolwire/internal/testutil/testlog"
)

func roundTrip[M message.Message](t *testing.T, s message.Schema[M], m M) M {
	t.Helper()
	first, err := s.Append(nil, m)
	if err != nil {
		t.Fatalf("append %s: %v", m.Name(), err)
	}
	decoded, err := s.Decode(first)
	if err != nil {
		t.Fatalf("decode %s: %v", m.Name(), err)
	}
	second, err := s.Append(nil, decoded)
	if err != nil {
		t.Fatalf("re-append %s: %v", m.Name(), err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("round-trip mismatch for %s: %x != %x", m.Name(), first, second)
	}
	return decoded
}

func sampleChallenge() chain.EpochChallenge {
	return chain.EpochChallenge{EpochNumber: 3, EpochBlockHash: chain.BlockHash{0x44}, Degree: 8191}
}

func sampleSolution() chain.Solution {
	return chain.Solution{
		Address:    chain.Address{0x01},
		Nonce:      77,
		Commitment: [chain.CommitmentSize]byte{0x02},
		Proof:      chain.Proof("prover-proof"),
	}
}

func TestServerMessagesRoundTrip(t *testing.T) {
	testlog.Start(t)

	ack := AcceptConnection(9, chain.Signature{0x5a})
	if got := roundTrip(t, ServerToClient, ServerMessage(ack)); !reflect.DeepEqual(got, ack) {
		t.Fatalf("connect ack mismatch: %+v", got)
	}

	notify := Notify{
		JobID:       1,
		EpochNumber: 3,
		ProofTarget: 1 << 20,
		Challenge:   payload.Materialized[chain.EpochChallenge, *chain.EpochChallenge](sampleChallenge()),
	}
	decoded, ok := roundTrip(t, ServerToClient, ServerMessage(notify)).(Notify)
	if !ok {
		t.Fatalf("expected Notify")
	}
	challenge, err := decoded.Challenge.DeserializeBlocking()
	if err != nil {
		t.Fatalf("materialize challenge: %v", err)
	}
	if challenge != sampleChallenge() || decoded.ProofTarget != 1<<20 || decoded.JobID != 1 {
		t.Fatalf("notify mismatch: %+v %+v", decoded, challenge)
	}

	if _, ok := roundTrip(t, ServerToClient, ServerMessage(ShutDown{})).(ShutDown); !ok {
		t.Fatalf("expected ShutDown")
	}

	result := ShareResult{JobID: 1, Accepted: false, Message: "stale share: épоch moved"}
	if got := roundTrip(t, ServerToClient, ServerMessage(result)); !reflect.DeepEqual(got, result) {
		t.Fatalf("share result mismatch: %+v", got)
	}
}

func TestConnectAckRejectedCarriesNoGrant(t *testing.T) {
	testlog.Start(t)
	body, err := ServerToClient.Append(nil, RejectConnection())
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if !bytes.Equal(body, []byte{0, 0}) {
		t.Fatalf("unexpected body: %x", body)
	}
	decoded, err := ServerToClient.Decode(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ack, ok := decoded.(ConnectAck)
	if !ok || ack.Accepted || ack.Grant != nil {
		t.Fatalf("unexpected ack: %+v", decoded)
	}
}

func TestConnectAckConstructionErrors(t *testing.T) {
	testlog.Start(t)
	for _, m := range []ConnectAck{
		{Accepted: true},
		{Accepted: false, Grant: &Grant{WorkerID: 1}},
	} {
		if _, err := ServerToClient.Append(nil, m); !errors.Is(err, message.ErrInvalidMessage) {
			t.Fatalf("expected construction error for %+v, got %v", m, err)
		}
	}
}

func TestShareResultEmptyMessage(t *testing.T) {
	testlog.Start(t)
	got := roundTrip(t, ServerToClient, ServerMessage(ShareResult{JobID: 5, Accepted: true}))
	if r := got.(ShareResult); !r.Accepted || r.Message != "" || r.JobID != 5 {
		t.Fatalf("unexpected result: %+v", r)
	}
}

func TestClientMessagesRoundTrip(t *testing.T) {
	testlog.Start(t)

	connect := Connect{
		WorkerType:      message.WorkerTypeAgent,
		ProtocolVersion: 2,
		Major:           1,
		Minor:           4,
		Patch:           2,
		Address:         chain.Address{0xaa, 0xbb},
		WorkerName:      "rig-07",
	}
	if got := roundTrip(t, ClientToServer, ClientMessage(connect)); !reflect.DeepEqual(got, connect) {
		t.Fatalf("connect mismatch: %+v", got)
	}

	submit := SubmitSolution{
		WorkerID: 9,
		JobID:    1,
		Solution: payload.Materialized[chain.Solution, *chain.Solution](sampleSolution()),
	}
	decoded, ok := roundTrip(t, ClientToServer, ClientMessage(submit)).(SubmitSolution)
	if !ok {
		t.Fatalf("expected SubmitSolution")
	}
	solution, err := decoded.Solution.DeserializeAsync(context.Background(), nil).Wait(context.Background())
	if err != nil {
		t.Fatalf("materialize solution: %v", err)
	}
	if !solution.Equal(sampleSolution()) {
		t.Fatalf("solution mismatch: %+v", solution)
	}

	if got := roundTrip(t, ClientToServer, ClientMessage(Disconnect{WorkerID: 7})); !reflect.DeepEqual(got, Disconnect{WorkerID: 7}) {
		t.Fatalf("disconnect mismatch: %+v", got)
	}
}

func TestConnectWorkerNameIsTrailing(t *testing.T) {
	testlog.Start(t)
	body, err := ClientToServer.Append(nil, Connect{ProtocolVersion: 0x0201, WorkerName: "w"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(body) != 1+1+2+3+chain.AddressSize+1 {
		t.Fatalf("unexpected length: %d", len(body))
	}
	if body[2] != 0x01 || body[3] != 0x02 || body[len(body)-1] != 'w' {
		t.Fatalf("unexpected layout: %x", body)
	}
}

func TestSubmitSolutionDeferredStatesEncodeIdentically(t *testing.T) {
	testlog.Start(t)
	raw, err := sampleSolution().MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	a, err := ClientToServer.Append(nil, SubmitSolution{Solution: payload.Materialized[chain.Solution, *chain.Solution](sampleSolution())})
	if err != nil {
		t.Fatalf("append materialized: %v", err)
	}
	b, err := ClientToServer.Append(nil, SubmitSolution{Solution: payload.Raw[chain.Solution, *chain.Solution](raw)})
	if err != nil {
		t.Fatalf("append raw: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("deferred states diverge")
	}
}

func TestDecodeStructuralErrors(t *testing.T) {
	testlog.Start(t)
	connectHead := append([]byte{128, 0, 2, 0, 1, 0, 0}, make([]byte, chain.AddressSize)...)
	cases := []struct {
		name   string
		schema string
		body   []byte
		want   error
	}{
		{"server unknown id", "server", []byte{4}, message.ErrUnknownID},
		{"server empty", "server", []byte{}, message.ErrEmptyBody},
		{"ack short signature", "server", append([]byte{0, 1, 1, 0, 0, 0}, make([]byte, 10)...), wire.ErrShortBuffer},
		{"ack bad discriminant", "server", []byte{0, 7}, wire.ErrInvalidDiscriminant},
		{"notify short", "server", []byte{1, 1, 0, 0, 0, 3, 0}, wire.ErrShortBuffer},
		{"result invalid utf-8", "server", []byte{3, 1, 0, 0, 0, 1, 0xc3}, wire.ErrInvalidText},
		{"result bad discriminant", "server", []byte{3, 1, 0, 0, 0, 5}, wire.ErrInvalidDiscriminant},
		{"client unknown id", "client", []byte{127}, message.ErrUnknownID},
		{"connect short address", "client", []byte{128, 0, 2, 0, 1, 0, 0, 1, 2}, wire.ErrShortBuffer},
		{"connect invalid name", "client", append(connectHead, 0xff), wire.ErrInvalidText},
		{"submit short", "client", []byte{129, 1, 0, 0, 0}, wire.ErrShortBuffer},
		{"disconnect trailing", "client", []byte{130, 1, 0, 0, 0, 0}, wire.ErrTrailingBytes},
	}
	for _, tc := range cases {
		var err error
		if tc.schema == "server" {
			_, err = ServerToClient.Decode(tc.body)
		} else {
			_, err = ClientToServer.Decode(tc.body)
		}
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestRawPayloadDecodeIsDeferred(t *testing.T) {
	testlog.Start(t)
	// A garbage challenge is structurally fine; it only fails once materialized.
	body := []byte{1, 1, 0, 0, 0, 3, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xde, 0xad}
	decoded, err := ServerToClient.Decode(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	_, err = decoded.(Notify).Challenge.DeserializeBlocking()
	var de *payload.DeserializeError
	if !errors.As(err, &de) || !errors.Is(err, chain.ErrInvalidLength) {
		t.Fatalf("expected DeserializeError, got %v", err)
	}
}

func TestConnectInvalidNameRejectedAtEncode(t *testing.T) {
	testlog.Start(t)
	_, err := ClientToServer.Append(nil, Connect{WorkerName: string([]byte{0xff})})
	if !errors.Is(err, wire.ErrInvalidText) {
		t.Fatalf("expected ErrInvalidText, got %v", err)
	}
}
