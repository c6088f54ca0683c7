package codec

import (
	"errors"
	"fmt"
)

// ErrMalformedFrame is returned when a binary position frame is too short.
var ErrMalformedFrame = errors.New("malformed frame")

// ErrProtocol matches every *ProtocolError via errors.Is.
var ErrProtocol = errors.New("protocol error")

// ProtocolError describes a control message that could not be decoded.
type ProtocolError struct {
	Reason string // parser or validation message
	Text   string // offending frame, lossily decoded
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s (in %q)", e.Reason, e.Text)
}

// Is reports whether target is ErrProtocol.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

func protocolErrorf(text string, format string, args ...any) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...), Text: text}
}
