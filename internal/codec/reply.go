package codec

import (
	"encoding/json"
	"fmt"
)

// Reply is a message the bridge sends to the game client.
type Reply interface {
	replyKey() string
	replyPayload() any
}

// ConnectedStatus tells the client whether the link is connected.
type ConnectedStatus bool

// PingReply echoes a client heartbeat.
type PingReply struct{}

// LinkAppInfo announces the bridge version. Options holds key/value pairs
// and is sent as an empty array when there are none.
type LinkAppInfo struct {
	Version string      `json:"version"`
	Options [][2]string `json:"options"`
}

// ShutdownNow asks the client to disconnect because the bridge is exiting.
type ShutdownNow struct{}

func (ConnectedStatus) replyKey() string { return "ConnectedStatus" }
func (PingReply) replyKey() string       { return "Ping" }
func (LinkAppInfo) replyKey() string     { return "LinkAppInfo" }
func (ShutdownNow) replyKey() string     { return "ShutdownNow" }

func (r ConnectedStatus) replyPayload() any { return bool(r) }
func (PingReply) replyPayload() any         { return []struct{}{} }
func (r LinkAppInfo) replyPayload() any {
	if r.Options == nil {
		r.Options = [][2]string{}
	}
	return r
}
func (ShutdownNow) replyPayload() any { return struct{}{} }

// EncodeReply encodes r as a single-key JSON envelope.
func EncodeReply(r Reply) ([]byte, error) {
	return marshalEnvelope(r.replyKey(), r.replyPayload())
}

// DecodeReply parses a server to client message. It is used by clients and
// tests.
func DecodeReply(data []byte) (Reply, error) {
	kind, raw, err := splitEnvelope(data)
	if err != nil {
		return nil, err
	}
	switch string(kind) {
	case "ConnectedStatus":
		var ok bool
		if err := json.Unmarshal(raw, &ok); err != nil {
			return nil, err
		}
		return ConnectedStatus(ok), nil
	case "Ping":
		if err := unmarshalUnit(raw); err != nil {
			return nil, err
		}
		return PingReply{}, nil
	case "LinkAppInfo":
		var info LinkAppInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			return nil, err
		}
		return info, nil
	case "ShutdownNow":
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, err
		}
		return ShutdownNow{}, nil
	}
	return nil, fmt.Errorf("unknown reply %q", kind)
}
