// Package link manages the session with the positional-audio link.
package link

import (
	"errors"

	"github.com/tm-proximity/linkbridge/pkg/core"
)

var (
	// ErrNotConnected is returned by Adapter operations before Connect
	// succeeds.
	ErrNotConnected = errors.New("link not connected")

	// ErrAlreadyConnected is reported when a connect is requested on a live
	// session. The session is replaced anyway.
	ErrAlreadyConnected = errors.New("link already connected")
)

// Link is an open session with the positional-audio link.
type Link interface {
	Update(player, camera core.Position) error
	SetIdentity(identity string) error
	SetContext(context []byte) error
	Close() error
}

// Connector opens a new Link registered under appName.
type Connector interface {
	Connect(appName, description string) (Link, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(appName, description string) (Link, error)

// Connect calls f.
func (f ConnectorFunc) Connect(appName, description string) (Link, error) {
	return f(appName, description)
}
