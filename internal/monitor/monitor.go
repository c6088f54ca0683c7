// Package monitor samples bridge health on an interval. Each sample is
// written as JSON to a status file and as a point to influx.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"

	"github.com/tm-proximity/linkbridge/internal/identity"
	"github.com/tm-proximity/linkbridge/internal/influx"
	"github.com/tm-proximity/linkbridge/internal/link"
)

const DefaultInterval = time.Second

// StatsSource reports link counters.
type StatsSource interface {
	Stats() link.Stats
}

// SessionSource reports where the coordinator is.
type SessionSource interface {
	ID() string
	Method() string
	StateName() string
}

// PointWriter accepts influx points.
type PointWriter interface {
	WritePoint(point *influxdb2_write.Point) error
}

// Queue reports how many outward events are waiting.
type Queue interface {
	Len() int
}

// Dependencies of a Service. Details, Outbox and Influx are optional; an
// empty StatusFile disables the file.
type Dependencies struct {
	Link       StatsSource
	Session    SessionSource
	Details    *identity.Context
	Outbox     Queue
	Influx     PointWriter
	StatusFile string
	Interval   time.Duration
	Logger     zerolog.Logger
}

// Status is one sample of bridge health.
type Status struct {
	Time      time.Time        `json:"time"`
	Session   string           `json:"session"`
	State     string           `json:"state"`
	Method    string           `json:"method,omitempty"`
	Link      link.Stats       `json:"link"`
	Player    identity.Details `json:"player"`
	OutboxLen int              `json:"outboxLen"`
}

type Service struct {
	deps Dependencies
	log  zerolog.Logger
}

func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{
		deps: deps,
		log:  deps.Logger.With().Str("component", "monitor").Logger(),
	}
}

// Sample collects the current status.
func (s *Service) Sample(now time.Time) Status {
	st := Status{
		Time:    now,
		Session: s.deps.Session.ID(),
		State:   s.deps.Session.StateName(),
		Method:  s.deps.Session.Method(),
		Link:    s.deps.Link.Stats(),
	}
	if s.deps.Details != nil {
		st.Player = s.deps.Details.Snapshot()
	}
	if s.deps.Outbox != nil {
		st.OutboxLen = s.deps.Outbox.Len()
	}
	return st
}

// writeStatusFile replaces the status file in one rename so readers never
// see a partial sample.
func (s *Service) writeStatusFile(st Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	dir, name := filepath.Split(s.deps.StatusFile)
	tmp, err := os.CreateTemp(dir, name+".*")
	if err != nil {
		return fmt.Errorf("create status file: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write status file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.deps.StatusFile)
}

// Tick takes one sample and publishes it.
func (s *Service) Tick(now time.Time) Status {
	st := s.Sample(now)
	if s.deps.StatusFile != "" {
		if err := s.writeStatusFile(st); err != nil {
			s.log.Error().Err(err).Str("path", s.deps.StatusFile).Msg("Failed to write status file")
		}
	}
	if s.deps.Influx != nil {
		if err := s.deps.Influx.WritePoint(influx.LinkStatsPoint(st.Link, st.State, st.Session, now)); err != nil {
			s.log.Error().Err(err).Msg("Failed to write link stats")
		}
	}
	return st
}

// Run samples every Interval until ctx is done. A final sample is taken on
// the way out so the status file shows the terminal state.
func (s *Service) Run(ctx context.Context) {
	s.log.Debug().Dur("interval", s.deps.Interval).Str("statusFile", s.deps.StatusFile).Msg("Status monitor running")
	t := time.NewTicker(s.deps.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Tick(time.Now())
			return
		case now := <-t.C:
			s.Tick(now)
		}
	}
}
