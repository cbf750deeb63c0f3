// Package profile bundles what a connection needs to speak one protocol
// generation: the schemas for both directions and the frame size limit.
//
// A profile is chosen once, from configuration, before the first frame
// is read. There is no negotiation on the wire.
package profile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/poolwire/internal/protocol/frame"
	"github.com/danmuck/poolwire/internal/protocol/message"
	v1 "github.com/danmuck/poolwire/internal/protocol/message/v1"
	v2 "github.com/danmuck/poolwire/internal/protocol/message/v2"
)

type Version uint8

const (
	V1 Version = 1
	V2 Version = 2
)

// Frame limits. v1 jobs carry whole block templates; v2 messages are small.
const (
	V1MaxFrameSize uint32 = 128 << 20
	V2MaxFrameSize uint32 = 512
)

var ErrUnknownVersion = errors.New("profile: unknown protocol version")

func (v Version) String() string {
	return fmt.Sprintf("v%d", uint8(v))
}

// Profile is one protocol generation.
type Profile struct {
	Version        Version
	Name           string
	MaxFrameSize   uint32
	ServerToClient message.Schema[message.Message]
	ClientToServer message.Schema[message.Message]
}

// Link is the codec pair for one side of a connection.
type Link struct {
	Inbound  *frame.Codec[message.Message]
	Outbound *frame.Codec[message.Message]
}

var profiles = map[Version]Profile{
	V1: {
		Version:        V1,
		Name:           "v1",
		MaxFrameSize:   V1MaxFrameSize,
		ServerToClient: message.Erase(v1.ServerToClient),
		ClientToServer: message.Erase(v1.ClientToServer),
	},
	V2: {
		Version:        V2,
		Name:           "v2",
		MaxFrameSize:   V2MaxFrameSize,
		ServerToClient: message.Erase(v2.ServerToClient),
		ClientToServer: message.Erase(v2.ClientToServer),
	},
}

func Lookup(v Version) (Profile, error) {
	p, ok := profiles[v]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %d", ErrUnknownVersion, uint8(v))
	}
	return p, nil
}

// Parse accepts "v1", "1", "V2" and so on.
func Parse(s string) (Profile, error) {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "v")
	switch name {
	case "1":
		return Lookup(V1)
	case "2":
		return Lookup(V2)
	default:
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownVersion, s)
	}
}

// ForServer decodes what workers send and encodes what the pool sends.
func (p Profile) ForServer() Link {
	return Link{
		Inbound:  frame.New(p.ClientToServer, p.MaxFrameSize),
		Outbound: frame.New(p.ServerToClient, p.MaxFrameSize),
	}
}

// ForWorker is the mirror of ForServer.
func (p Profile) ForWorker() Link {
	return Link{
		Inbound:  frame.New(p.ServerToClient, p.MaxFrameSize),
		Outbound: frame.New(p.ClientToServer, p.MaxFrameSize),
	}
}
