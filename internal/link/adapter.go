package link

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"

	"github.com/tm-proximity/linkbridge/pkg/core"
)

// Stats is a point-in-time view of the adapter used by the status monitor.
type Stats struct {
	Connected  bool
	Reconnects int64
	Updates    int64
	Failures   int64
	Nonce      uint64
	Identity   string
	Context    string
	LastError  string
}

// Adapter owns the link session: the connection, the last identity and
// context pushed through it, and the update nonce. All fields are guarded
// by one lock so readers never see identity and context from different
// pushes.
type Adapter struct {
	mu        sync.RWMutex
	connector Connector
	log       zerolog.Logger

	link     Link
	lastErr  error
	identity string
	context  []byte
	nonce    uint64

	reconnects int64
	updates    int64
	failures   int64

	updateCounter  metric.Int64Counter
	failureCounter metric.Int64Counter
	connectCounter metric.Int64Counter
}

// NewAdapter creates an unconnected Adapter.
func NewAdapter(connector Connector, log zerolog.Logger) (*Adapter, error) {
	a := &Adapter{
		connector: connector,
		log:       log,
		lastErr:   ErrNotConnected,
	}

	m := meter()
	var err error
	a.updateCounter, err = m.Int64Counter("link.updates",
		metric.WithDescription("Position updates written to the link"))
	if err != nil {
		return nil, fmt.Errorf("create updates counter: %w", err)
	}
	a.failureCounter, err = m.Int64Counter("link.failures",
		metric.WithDescription("Failed link operations"))
	if err != nil {
		return nil, fmt.Errorf("create failures counter: %w", err)
	}
	a.connectCounter, err = m.Int64Counter("link.connects",
		metric.WithDescription("Link connection attempts"))
	if err != nil {
		return nil, fmt.Errorf("create connects counter: %w", err)
	}
	return a, nil
}

// Connect opens a new session, replacing any existing one. Identity and
// context are cleared on the new session; the nonce keeps counting so the
// same player reconnecting still produces a fresh identity string.
func (a *Adapter) Connect(appName, description string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.connectCounter.Add(context.Background(), 1)
	if a.link != nil {
		if err := a.link.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close previous link session")
		}
		a.link = nil
		a.reconnects++
	}

	l, err := a.connector.Connect(appName, description)
	if err != nil {
		a.lastErr = fmt.Errorf("connect %s: %w", appName, err)
		a.failures++
		a.failureCounter.Add(context.Background(), 1)
		return a.lastErr
	}

	a.link = l
	a.lastErr = nil
	a.identity = ""
	a.context = nil
	a.log.Info().Str("app", appName).Msg("Link connected")
	return nil
}

// IsConnected reports whether the last Connect succeeded.
func (a *Adapter) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.link != nil
}

// LastError returns the last connection error, or nil when connected.
func (a *Adapter) LastError() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastErr
}

// Update writes the player and camera transforms.
func (a *Adapter) Update(player, camera core.Position) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.link == nil {
		return ErrNotConnected
	}
	if err := a.link.Update(player, camera); err != nil {
		a.failures++
		a.failureCounter.Add(context.Background(), 1)
		return fmt.Errorf("update link: %w", err)
	}
	a.updates++
	a.updateCounter.Add(context.Background(), 1)
	return nil
}

// Nonce returns the value the next identity string should carry.
func (a *Adapter) Nonce() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.nonce
}

// SetIdentityAndContext writes both strings in one exclusive hold. The
// nonce advances on every call, even when nothing could be written.
func (a *Adapter) SetIdentityAndContext(identity string, ctx []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.nonce++
	if a.link == nil {
		return ErrNotConnected
	}
	if err := a.link.SetIdentity(identity); err != nil {
		a.failures++
		a.failureCounter.Add(context.Background(), 1)
		return fmt.Errorf("set identity: %w", err)
	}
	if err := a.link.SetContext(ctx); err != nil {
		a.failures++
		a.failureCounter.Add(context.Background(), 1)
		return fmt.Errorf("set context: %w", err)
	}
	a.identity = identity
	a.context = append(a.context[:0], ctx...)
	return nil
}

// LastIdentity returns the identity most recently written.
func (a *Adapter) LastIdentity() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.identity
}

// LastContext returns the context most recently written.
func (a *Adapter) LastContext() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return string(a.context)
}

// Stats returns a consistent snapshot of the session.
func (a *Adapter) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := Stats{
		Connected:  a.link != nil,
		Reconnects: a.reconnects,
		Updates:    a.updates,
		Failures:   a.failures,
		Nonce:      a.nonce,
		Identity:   a.identity,
		Context:    string(a.context),
	}
	if a.lastErr != nil {
		s.LastError = a.lastErr.Error()
	}
	return s
}

// Close releases the session.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.link == nil {
		return nil
	}
	err := a.link.Close()
	a.link = nil
	a.lastErr = ErrNotConnected
	return err
}
