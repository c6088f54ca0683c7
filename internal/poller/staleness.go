package poller

import (
	"time"

	"github.com/tm-proximity/linkbridge/internal/telemetry"
)

// staleness watches the update counter and the car timestamp to detect a
// game that stopped publishing or a car that is not being simulated.
type staleness struct {
	staleAfter time.Duration
	maxFrames  int

	lastUpdate  uint32
	lastChange  time.Time
	lastObjTS   uint32
	staleFrames int
	noUpdates   bool
}

func newStaleness(staleAfter time.Duration, maxFrames int, now time.Time) *staleness {
	return &staleness{staleAfter: staleAfter, maxFrames: maxFrames, lastChange: now}
}

// observe folds one snapshot in. The object counter only moves when the
// update number did.
func (s *staleness) observe(snap telemetry.Snapshot, now time.Time) {
	if snap.UpdateNumber != s.lastUpdate {
		s.lastUpdate = snap.UpdateNumber
		s.lastChange = now
		s.noUpdates = false
		if snap.Object.Timestamp == s.lastObjTS {
			s.staleFrames++
		} else {
			s.staleFrames = 0
		}
		s.lastObjTS = snap.Object.Timestamp
		return
	}
	if !s.noUpdates && now.Sub(s.lastChange) > s.staleAfter {
		s.noUpdates = true
	}
}

// unspawned reports whether the snapshot position must be replaced by the
// sentinel.
func (s *staleness) unspawned(local bool) bool {
	return !local || s.noUpdates || s.staleFrames > s.maxFrames
}
