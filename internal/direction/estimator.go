// Package direction infers movement direction and gate-line crossings from
// successive centers of a tracked vehicle.
package direction

import (
	"math"
	"time"

	"plate-gate/internal/domain/anpr"
)

const (
	AxisX = "x"
	AxisY = "y"
)

const DefaultTrackTimeout = 5 * time.Second

type Side int

const (
	SideUnknown Side = iota
	SideNegative
	SidePositive
)

func (s Side) String() string {
	switch s {
	case SideNegative:
		return "negative"
	case SidePositive:
		return "positive"
	default:
		return "unknown"
	}
}

type Config struct {
	Enabled          bool
	Axis             string
	Invert           bool
	MinDisplacement  float64
	GateLine         *float64
	RequireLineCross bool
	TrackTimeout     time.Duration
}

// Result is the direction outcome for one sighting. Label is for display;
// Gated is what notification filters must use.
type Result struct {
	Label   anpr.Direction
	Gated   anpr.Direction
	Crossed bool
}

type trackHistory struct {
	center   anpr.Point
	lastSeen time.Time
	side     Side
}

// Estimator keeps per-track history. It is not safe for concurrent use.
type Estimator struct {
	cfg       Config
	tracks    map[string]*trackHistory
	lastSweep time.Time
}

func NewEstimator(cfg Config) *Estimator {
	if cfg.TrackTimeout <= 0 {
		cfg.TrackTimeout = DefaultTrackTimeout
	}
	if cfg.Axis == "" {
		cfg.Axis = AxisY
	}
	return &Estimator{
		cfg:    cfg,
		tracks: make(map[string]*trackHistory),
	}
}

// Observe records a sighting of trackID at center and returns the inferred
// direction. Sightings without a track id carry no history.
func (e *Estimator) Observe(trackID string, center anpr.Point, now time.Time) Result {
	unknown := Result{Label: anpr.DirectionUnknown, Gated: anpr.DirectionUnknown}
	if trackID == "" {
		return unknown
	}
	e.sweep(now)

	coord := e.coordinate(center)
	side := e.side(coord)

	prev, ok := e.tracks[trackID]
	if ok && now.Sub(prev.lastSeen) > e.cfg.TrackTimeout {
		delete(e.tracks, trackID)
		ok = false
	}
	e.tracks[trackID] = &trackHistory{center: center, lastSeen: now, side: side}
	if !ok {
		return unknown
	}

	res := unknown
	displacement := coord - e.coordinate(prev.center)
	if e.cfg.Invert {
		displacement = -displacement
	}
	if math.Abs(displacement) >= e.cfg.MinDisplacement && displacement != 0 {
		res.Label = e.label(displacement > 0)
	}

	if prev.side != SideUnknown && side != SideUnknown && prev.side != side {
		res.Crossed = true
		positive := side == SidePositive
		if e.cfg.Invert {
			positive = !positive
		}
		res.Label = e.label(positive)
	}

	res.Gated = res.Label
	if e.cfg.RequireLineCross && !res.Crossed {
		res.Gated = anpr.DirectionUnknown
	}
	return res
}

// Tracks returns the number of live tracks.
func (e *Estimator) Tracks() int {
	return len(e.tracks)
}

func (e *Estimator) label(positive bool) anpr.Direction {
	if positive {
		return anpr.DirectionIn
	}
	return anpr.DirectionOut
}

func (e *Estimator) coordinate(p anpr.Point) float64 {
	if e.cfg.Axis == AxisX {
		return p.X
	}
	return p.Y
}

func (e *Estimator) side(coord float64) Side {
	if e.cfg.GateLine == nil {
		return SideUnknown
	}
	if coord < *e.cfg.GateLine {
		return SideNegative
	}
	return SidePositive
}

// sweep drops idle tracks at most once per timeout interval.
func (e *Estimator) sweep(now time.Time) {
	if now.Sub(e.lastSweep) < e.cfg.TrackTimeout {
		return
	}
	e.lastSweep = now
	for id, h := range e.tracks {
		if now.Sub(h.lastSeen) > e.cfg.TrackTimeout {
			delete(e.tracks, id)
		}
	}
}
