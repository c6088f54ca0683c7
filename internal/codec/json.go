package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tm-proximity/linkbridge/pkg/core"
)

// DecodeFrame decodes one transport frame. Frames starting with the
// position tag go through the binary path, everything else is parsed as a
// JSON envelope.
func DecodeFrame(data []byte) (core.Event, error) {
	if IsPositionFrame(data) {
		return DecodePositionFrame(data)
	}
	return DecodeMessage(data)
}

// DecodeMessage decodes a JSON control message envelope. Every failure is
// a *ProtocolError.
func DecodeMessage(data []byte) (core.Event, error) {
	text := strings.ToValidUTF8(string(data), "�")

	kind, raw, err := splitEnvelope(data)
	if err != nil {
		return nil, protocolErrorf(text, "%v", err)
	}

	var ev core.Event
	switch kind {
	case core.KindPositions:
		var w wirePositions
		if err = json.Unmarshal(raw, &w); err == nil {
			ev, err = w.positions()
		}
	case core.KindPlayerDetails:
		var pair [2]string
		err = unmarshalTuple(raw, &pair)
		ev = core.PlayerDetails{Name: pair[0], Login: pair[1]}
	case core.KindServerDetails:
		var pair [2]string
		err = unmarshalTuple(raw, &pair)
		ev = core.ServerDetails{Server: pair[0], Team: pair[1]}
	case core.KindLeftServer:
		err = unmarshalUnit(raw)
		ev = core.LeftServer{}
	case core.KindPing:
		err = unmarshalUnit(raw)
		ev = core.Ping{}
	case core.KindNetAccepted:
		var addr string
		err = json.Unmarshal(raw, &addr)
		ev = core.NetAccepted{Addr: addr}
	case core.KindNetDisconnected:
		var addr string
		err = json.Unmarshal(raw, &addr)
		ev = core.NetDisconnected{Addr: addr}
	case core.KindNetConnected:
		var pair []json.RawMessage
		if err = json.Unmarshal(raw, &pair); err == nil {
			ev, err = decodeNetConnected(pair)
		}
	default:
		return nil, protocolErrorf(text, "unknown variant %q", kind)
	}
	if err != nil {
		return nil, protocolErrorf(text, "%s: %v", kind, err)
	}
	return ev, nil
}

func splitEnvelope(data []byte) (core.Kind, json.RawMessage, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, err
	}
	if len(env) != 1 {
		return "", nil, fmt.Errorf("envelope must have exactly one key, got %d", len(env))
	}
	for k, v := range env {
		return core.Kind(k), v, nil
	}
	return "", nil, nil
}

func unmarshalTuple(raw json.RawMessage, pair *[2]string) error {
	var s []string
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	if len(s) != 2 {
		return fmt.Errorf("expected 2 elements, got %d", len(s))
	}
	pair[0], pair[1] = s[0], s[1]
	return nil
}

func unmarshalUnit(raw json.RawMessage) error {
	var s []json.RawMessage
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	if s == nil {
		return errors.New("expected empty array, got null")
	}
	if len(s) != 0 {
		return fmt.Errorf("expected empty array, got %d elements", len(s))
	}
	return nil
}

func decodeNetConnected(pair []json.RawMessage) (core.Event, error) {
	if len(pair) != 2 {
		return nil, fmt.Errorf("expected 2 elements, got %d", len(pair))
	}
	var ev core.NetConnected
	if err := json.Unmarshal(pair[0], &ev.Addr); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(pair[1], &ev.OK); err != nil {
		return nil, err
	}
	return ev, nil
}

// wireVec3 rejects arrays that do not have exactly three components.
type wireVec3 core.Vec3

func (v *wireVec3) UnmarshalJSON(b []byte) error {
	var f []float32
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	if len(f) != 3 {
		return fmt.Errorf("vector must have 3 components, got %d", len(f))
	}
	copy(v[:], f)
	return nil
}

// wirePosition fields are pointers so that absent and null fields can be
// told apart from zero vectors.
type wirePosition struct {
	Pos *wireVec3 `json:"pos"`
	Dir *wireVec3 `json:"dir"`
	Up  *wireVec3 `json:"up"`
}

func (w *wirePosition) position() (core.Position, error) {
	if w == nil {
		return core.Position{}, errors.New("missing position")
	}
	switch {
	case w.Pos == nil:
		return core.Position{}, errors.New("missing field `pos`")
	case w.Dir == nil:
		return core.Position{}, errors.New("missing field `dir`")
	case w.Up == nil:
		return core.Position{}, errors.New("missing field `up`")
	}
	return core.Position{Pos: core.Vec3(*w.Pos), Dir: core.Vec3(*w.Dir), Up: core.Vec3(*w.Up)}, nil
}

type wirePositions struct {
	P *wirePosition `json:"p"`
	C *wirePosition `json:"c"`
}

func (w wirePositions) positions() (core.Event, error) {
	p, err := w.P.position()
	if err != nil {
		return nil, fmt.Errorf("p: %w", err)
	}
	c, err := w.C.position()
	if err != nil {
		return nil, fmt.Errorf("c: %w", err)
	}
	return core.Positions{P: p, C: c}, nil
}

// MarshalEvent encodes ev as a single-key JSON envelope. It is the inverse
// of DecodeMessage.
func MarshalEvent(ev core.Event) ([]byte, error) {
	var payload any
	switch e := ev.(type) {
	case core.Positions:
		payload = e
	case core.PlayerDetails:
		payload = [2]string{e.Name, e.Login}
	case core.ServerDetails:
		payload = [2]string{e.Server, e.Team}
	case core.LeftServer, core.Ping:
		payload = []struct{}{}
	case core.NetAccepted:
		payload = e.Addr
	case core.NetDisconnected:
		payload = e.Addr
	case core.NetConnected:
		payload = [2]any{e.Addr, e.OK}
	default:
		return nil, fmt.Errorf("cannot encode event %T", ev)
	}
	return marshalEnvelope(string(ev.Kind()), payload)
}

func marshalEnvelope(key string, payload any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]any{key: payload}); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
