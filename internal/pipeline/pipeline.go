// Package pipeline turns detection events into gate and notification
// decisions.
package pipeline

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"plate-gate/internal/clock"
	"plate-gate/internal/dedup"
	"plate-gate/internal/direction"
	"plate-gate/internal/domain/anpr"
	"plate-gate/internal/geometry"
	"plate-gate/internal/rules"
	"plate-gate/internal/utils"
)

// State is everything the pipeline mutates between events. It has a single
// owner: only the goroutine calling Process may touch it.
type State struct {
	Tracks     *direction.Estimator
	Plates     *dedup.PlateDebouncer
	Unreadable *dedup.UnreadableDeduper
	Hits       *dedup.HitConfirmer
}

func NewState(cfg Config) *State {
	return &State{
		Tracks:     direction.NewEstimator(cfg.Direction),
		Plates:     dedup.NewPlateDebouncer(cfg.PlateDebounce),
		Unreadable: dedup.NewUnreadableDeduper(cfg.Unreadable),
		Hits:       dedup.NewHitConfirmer(cfg.Hits),
	}
}

type Pipeline struct {
	cfg   Config
	rules *rules.Store
	state *State
	clock clock.Clock
	log   zerolog.Logger
}

func New(cfg Config, store *rules.Store, state *State, clk clock.Clock, log zerolog.Logger) *Pipeline {
	if state == nil {
		state = NewState(cfg)
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Pipeline{
		cfg:   cfg,
		rules: store,
		state: state,
		clock: clk,
		log:   log,
	}
}

// Process runs one event to completion. Callers must serialize calls.
func (p *Pipeline) Process(event anpr.DetectionEvent) anpr.Decision {
	now := p.clock.Now()

	in := Inputs{Event: event}
	if ok, reason := geometry.Passes(event, p.cfg.ROI, p.cfg.Filters); !ok {
		in.Dropped = reason
		p.log.Debug().
			Str("camera_id", event.CameraID).
			Str("track_id", event.TrackID).
			Str("reason", string(reason)).
			Msg("detection dropped by geometry filter")
		return p.finish(Compose(p.cfg, in), now)
	}

	in.Direction = direction.Result{Label: anpr.DirectionUnknown, Gated: anpr.DirectionUnknown}
	if p.cfg.Direction.Enabled {
		in.Direction = p.state.Tracks.Observe(event.TrackID, event.Center(), now)
	}

	in.Plate = utils.NormalizePlate(event.PlateText)
	if len(in.Plate) < p.cfg.MinPlateLen {
		p.log.Debug().
			Str("camera_id", event.CameraID).
			Str("plate_text", event.PlateText).
			Msg("plate text too short, treating as unreadable")
		in.Plate = ""
	}
	if in.Plate == "" {
		in.Category = anpr.CategoryUnreadable
		in.Suppressed = p.gateUnreadable(event, in.Direction, now)
	} else {
		sets := p.rules.Load()
		in.Category = rules.Classify(in.Plate, sets)
		if in.Category == anpr.CategoryWatchlist {
			in.Group = sets.Group(in.Plate)
		}
		in.Suppressed = p.gateReadable(in.Category, in.Plate, in.Direction, now)
	}

	d := p.finish(Compose(p.cfg, in), now)
	p.log.Info().
		Str("decision_id", d.ID.String()).
		Str("plate", d.Plate).
		Str("category", string(d.Category)).
		Str("action", string(d.Action)).
		Str("direction", string(d.Direction)).
		Bool("notify", d.Notify).
		Str("suppressed", d.Suppressed).
		Msg("decision")
	return d
}

func (p *Pipeline) finish(d anpr.Decision, now time.Time) anpr.Decision {
	d.ID = uuid.New()
	d.DecidedAt = now
	return d
}

// gateReadable returns why a readable plate's notification is held back.
// Actuation is never affected.
func (p *Pipeline) gateReadable(category anpr.Category, plate string, dir direction.Result, now time.Time) string {
	if !wantsNotification(p.cfg, category) {
		return ""
	}
	if p.directionBlocks(dir) {
		return SuppressDirection
	}
	if !p.state.Plates.Allow(plate, now) {
		return SuppressDebounce
	}
	return ""
}

func (p *Pipeline) gateUnreadable(event anpr.DetectionEvent, dir direction.Result, now time.Time) string {
	if !p.cfg.NotifyUnreadable {
		return ""
	}
	if p.directionBlocks(dir) {
		return SuppressDirection
	}
	if p.cfg.Direction.Enabled && p.cfg.Direction.RequireLineCross && !dir.Crossed {
		return SuppressDirection
	}
	if !p.state.Hits.Observe(event.Center(), now) {
		return SuppressUnconfirmed
	}
	if v := p.state.Unreadable.Check(event.ROIHash, now); v != dedup.VerdictNotify {
		return string(v)
	}
	return ""
}

func (p *Pipeline) directionBlocks(dir direction.Result) bool {
	return p.cfg.Direction.Enabled && p.cfg.OnlyInDirection && dir.Gated != anpr.DirectionIn
}
