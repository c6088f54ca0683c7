// Package poller drives the link from the game's shared memory telemetry.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"

	"github.com/tm-proximity/linkbridge/internal/events"
	"github.com/tm-proximity/linkbridge/internal/identity"
	"github.com/tm-proximity/linkbridge/internal/logging"
	"github.com/tm-proximity/linkbridge/internal/telemetry"
	"github.com/tm-proximity/linkbridge/pkg/core"
)

const (
	DefaultInterval       = 10 * time.Millisecond
	DefaultStaleAfter     = 2 * time.Second
	DefaultMaxStaleFrames = 10
)

// Config tunes the polling loop. Zero values take the defaults.
type Config struct {
	Interval       time.Duration
	Scale          float32
	StaleAfter     time.Duration
	RateLimit      time.Duration
	MaxStaleFrames int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Scale == 0 {
		c.Scale = DefaultScale
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	if c.RateLimit <= 0 {
		c.RateLimit = identity.DefaultHeartbeat
	}
	if c.MaxStaleFrames <= 0 {
		c.MaxStaleFrames = DefaultMaxStaleFrames
	}
	return c
}

// Link is the part of the link adapter the poller drives.
type Link interface {
	Update(player, camera core.Position) error
	identity.Pusher
}

// Dependencies holds everything the poller talks to. Details is optional
// and mirrors the pushed player and map for status readers.
type Dependencies struct {
	Reader  telemetry.Reader
	Link    Link
	Outbox  events.Sender
	Details *identity.Context
	Logger  zerolog.Logger
}

// contextTuple is what decides whether identity and context are re-pushed.
type contextTuple struct {
	MapID      string
	IsLocal    bool
	PlayerName string
	RaceState  uint32
}

// Poller is the shared memory pipeline.
type Poller struct {
	cfg     Config
	deps    Dependencies
	policy  identity.Policy
	log     zerolog.Logger
	sampled zerolog.Logger

	stale   *staleness
	limiter *identity.RateLimiter[contextTuple]

	snapshots metric.Int64Counter
	pushes    metric.Int64Counter
}

// New creates a Poller. The staleness clock and rate limiter start now.
func New(cfg Config, deps Dependencies) (*Poller, error) {
	if deps.Reader == nil || deps.Link == nil || deps.Outbox == nil {
		return nil, errors.New("poller: reader, link and outbox are required")
	}
	cfg = cfg.withDefaults()
	now := time.Now()

	log := deps.Logger.With().Str("component", "poller").Str("run", uuid.NewString()).Logger()
	p := &Poller{
		cfg:     cfg,
		deps:    deps,
		policy:  identity.Policy{ObfuscateServer: true},
		log:     log,
		sampled: logging.Sampled(log),
		stale:   newStaleness(cfg.StaleAfter, cfg.MaxStaleFrames, now),
		limiter: identity.NewRateLimiter[contextTuple](cfg.RateLimit, now),
	}

	var err error
	m := meter()
	p.snapshots, err = m.Int64Counter("poller.snapshots",
		metric.WithDescription("Telemetry snapshots processed"))
	if err != nil {
		return nil, fmt.Errorf("create snapshots counter: %w", err)
	}
	p.pushes, err = m.Int64Counter("poller.pushes",
		metric.WithDescription("Identity and context pushes from telemetry"))
	if err != nil {
		return nil, fmt.Errorf("create pushes counter: %w", err)
	}
	return p, nil
}

// Run polls until ctx is done, the region cannot be read or the observer
// is gone. Cancellation returns nil.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info().Dur("interval", p.cfg.Interval).Msg("Telemetry polling started")
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("Telemetry polling stopped")
			return nil
		case now := <-ticker.C:
			if err := p.Step(now); err != nil {
				p.log.Warn().Err(err).Msg("Telemetry polling ended")
				return err
			}
		}
	}
}

// Step processes one snapshot. Any returned error ends the pipeline.
func (p *Poller) Step(now time.Time) error {
	snap, err := p.deps.Reader.Read()
	if err != nil {
		p.log.Error().Err(err).Msg("Failed to read telemetry")
		if emitErr := events.Emit(p.deps.Outbox, events.TelemetryError{Message: err.Error()}); emitErr != nil {
			return errors.Join(err, emitErr)
		}
		return err
	}
	p.snapshots.Add(context.Background(), 1)

	if err := events.Emit(p.deps.Outbox, events.Telemetry{Snapshot: snap}); err != nil {
		return err
	}

	p.stale.observe(snap, now)

	tuple := contextTuple{
		MapID:      snap.MapID(),
		IsLocal:    snap.IsLocalPlayer(),
		PlayerName: snap.PlayerName(),
		RaceState:  snap.Race.State,
	}
	if p.limiter.Allow(tuple, now) {
		if err := p.push(tuple); err != nil {
			return err
		}
	}

	pos := core.NearOrigin
	if !p.stale.unspawned(tuple.IsLocal) {
		pos = Convert(snap.Object, p.cfg.Scale)
	}
	if err := p.deps.Link.Update(pos, pos); err != nil {
		p.sampled.Error().Err(err).Msg("Failed to update link positions")
	}
	return events.Emit(p.deps.Outbox, events.Game{Event: core.Positions{P: pos, C: pos}})
}

// push applies identity and context for t. Only observer loss is
// returned.
func (p *Poller) push(t contextTuple) error {
	d := identity.Details{
		PlayerName:  t.PlayerName,
		PlayerLogin: t.PlayerName,
		Server:      t.MapID,
		Team:        identity.DefaultTeam,
	}
	if p.deps.Details != nil {
		p.deps.Details.Set(d)
	}

	id, ctx, err := p.policy.Push(p.deps.Link, d)
	if err != nil {
		p.sampled.Error().Err(err).Msg("Failed to push identity and context")
	} else {
		p.pushes.Add(context.Background(), 1)
		p.log.Debug().Str("identity", id).Str("context", ctx).Msg("Pushed identity and context")
	}

	if err := events.Emit(p.deps.Outbox, events.Game{Event: core.PlayerDetails{Name: t.PlayerName, Login: t.PlayerName}}); err != nil {
		return err
	}
	return events.Emit(p.deps.Outbox, events.Game{Event: core.ServerDetails{Server: t.MapID, Team: identity.DefaultTeam}})
}
