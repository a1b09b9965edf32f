package pipeline

import (
	"testing"
	"time"

	"github.com/corona10/goimagehash"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plate-gate/internal/clock"
	"plate-gate/internal/dedup"
	"plate-gate/internal/direction"
	"plate-gate/internal/domain/anpr"
	"plate-gate/internal/geometry"
	"plate-gate/internal/rules"
)

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func testRules() *rules.Store {
	sets, _ := rules.FromEntries([]rules.Entry{
		{Plate: "ABC123", Category: anpr.CategoryAllowed},
		{Plate: "XYZ999", Category: anpr.CategoryDenied},
		{Plate: "WAT777", Category: anpr.CategoryWatchlist, Group: "security"},
		{Plate: "IGN999", Category: anpr.CategoryIgnored},
	})
	return rules.NewStore(sets)
}

func baseConfig() Config {
	return Config{
		Filters:          geometry.Filters{MinBoxArea: 500},
		SendPhotos:       true,
		PlateDebounce:    10 * time.Second,
		NotifyUnreadable: true,
		Unreadable:       dedup.UnreadableConfig{Threshold: 6, Debounce: 10 * time.Second},
		Hits:             dedup.HitConfig{MinHits: 1},
	}
}

func newTestPipeline(cfg Config) (*Pipeline, *clock.Mock) {
	clk := clock.NewMock(t0)
	return New(cfg, testRules(), nil, clk, zerolog.Nop()), clk
}

// box returns a 50x20 (area 1000) detection centered on (cx, cy).
func box(cx, cy float64) anpr.BBox {
	return anpr.BBox{X1: cx - 25, Y1: cy - 10, X2: cx + 25, Y2: cy + 10}
}

func plateEvent(plate string) anpr.DetectionEvent {
	return anpr.DetectionEvent{CameraID: "cam-1", BBox: box(400, 400), PlateText: plate}
}

func unreadable(bits uint64, cx, cy float64) anpr.DetectionEvent {
	return anpr.DetectionEvent{
		CameraID: "cam-1",
		BBox:     box(cx, cy),
		ROIHash:  goimagehash.NewExtImageHash([]uint64{bits}, goimagehash.DHash, 64),
	}
}

func TestProcess_DeniedEndToEnd(t *testing.T) {
	p, clk := newTestPipeline(baseConfig())

	first := p.Process(plateEvent("XYZ999"))
	want := anpr.Decision{
		CameraID:  "cam-1",
		Plate:     "XYZ999",
		Action:    anpr.ActionTriggerAlarm,
		Category:  anpr.CategoryDenied,
		Direction: anpr.DirectionUnknown,
		Caption:   "Plate XYZ999 -> DENY",
		Notify:    true,
		SendPhoto: true,
		Route:     anpr.RouteMain,
		DecidedAt: t0,
	}
	if diff := cmp.Diff(want, first, cmpopts.IgnoreFields(anpr.Decision{}, "ID")); diff != "" {
		t.Errorf("first decision mismatch (-want +got):\n%s", diff)
	}

	clk.Advance(time.Second)
	second := p.Process(plateEvent("XYZ999"))
	assert.Equal(t, anpr.ActionTriggerAlarm, second.Action, "actuation is never debounced")
	assert.False(t, second.Notify)
	assert.False(t, second.SendPhoto)
	assert.Equal(t, SuppressDebounce, second.Suppressed)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestProcess_DebounceWindow(t *testing.T) {
	tests := []struct {
		name    string
		gap     time.Duration
		notices int
	}{
		{"within window", 5 * time.Second, 1},
		{"after window", 11 * time.Second, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, clk := newTestPipeline(baseConfig())
			notices := 0
			if p.Process(plateEvent("ABC123")).Notify {
				notices++
			}
			clk.Advance(tt.gap)
			d := p.Process(plateEvent("ABC123"))
			if d.Notify {
				notices++
			}
			assert.Equal(t, tt.notices, notices)
			assert.Equal(t, anpr.ActionOpenGate, d.Action)
		})
	}
}

func TestProcess_Categories(t *testing.T) {
	tests := []struct {
		plate    string
		category anpr.Category
		action   anpr.Action
		notify   bool
	}{
		{"abc 123", anpr.CategoryAllowed, anpr.ActionOpenGate, true},
		{"XYZ999", anpr.CategoryDenied, anpr.ActionTriggerAlarm, true},
		{"WAT777", anpr.CategoryWatchlist, anpr.ActionNotifyOnly, true},
		{"IGN999", anpr.CategoryIgnored, anpr.ActionNone, false},
		{"NEW111", anpr.CategoryUnknown, anpr.ActionNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.plate, func(t *testing.T) {
			p, _ := newTestPipeline(baseConfig())
			d := p.Process(plateEvent(tt.plate))
			assert.Equal(t, tt.category, d.Category)
			assert.Equal(t, tt.action, d.Action)
			assert.Equal(t, tt.notify, d.Notify)
		})
	}
}

func TestProcess_NotifyUnknownPolicy(t *testing.T) {
	cfg := baseConfig()
	cfg.NotifyUnknown = true
	p, _ := newTestPipeline(cfg)

	d := p.Process(plateEvent("NEW111"))
	assert.Equal(t, anpr.ActionNotifyOnly, d.Action)
	assert.True(t, d.Notify)
	assert.Equal(t, "Plate NEW111 -> UNKNOWN", d.Caption)
}

func TestProcess_ShortPlateTextIsUnreadable(t *testing.T) {
	cfg := baseConfig()
	cfg.NotifyUnknown = true
	cfg.MinPlateLen = 4
	p, _ := newTestPipeline(cfg)

	for _, text := range []string{"A", "1-", "AB", "ab 1"} {
		d := p.Process(plateEvent(text))
		assert.Equal(t, anpr.CategoryUnreadable, d.Category, text)
		assert.Empty(t, d.Plate, text)
		assert.Equal(t, "Plate unreadable", d.Caption, text)
	}
	assert.Zero(t, p.state.Plates.Len(), "fragments never enter the plate debounce")

	d := p.Process(plateEvent("ab-12"))
	assert.Equal(t, anpr.CategoryUnknown, d.Category)
	assert.Equal(t, "AB12", d.Plate)
	assert.Equal(t, "Plate AB12 -> UNKNOWN", d.Caption)
}

func TestProcess_WatchlistGroupAndDebounceDowngrade(t *testing.T) {
	p, clk := newTestPipeline(baseConfig())

	d := p.Process(plateEvent("WAT777"))
	assert.Equal(t, "security", d.Group)
	assert.Equal(t, "Plate WAT777 -> WATCH (security)", d.Caption)

	clk.Advance(2 * time.Second)
	d = p.Process(plateEvent("WAT777"))
	assert.Equal(t, anpr.ActionNone, d.Action, "notify-only with suppressed notification does nothing")
	assert.Equal(t, SuppressDebounce, d.Suppressed)
}

func TestProcess_GeometryDropHasNoSideEffects(t *testing.T) {
	cfg := baseConfig()
	cfg.ROI = geometry.RegionOfInterest{Enabled: true, Mode: geometry.ModeRectangle, Rect: [4]float64{200, 300, 600, 700}}
	cfg.Direction = direction.Config{Enabled: true, Axis: direction.AxisY}
	p, clk := newTestPipeline(cfg)

	outside := anpr.DetectionEvent{TrackID: "t1", BBox: box(900, 100), PlateText: "ABC123"}
	d := p.Process(outside)
	assert.Equal(t, anpr.ActionNone, d.Action)
	assert.Equal(t, string(geometry.ReasonOutsideROI), d.Dropped)
	assert.Empty(t, d.Category)
	assert.Equal(t, 0, p.state.Tracks.Tracks())
	assert.Equal(t, 0, p.state.Plates.Len())

	clk.Advance(time.Second)
	inside := p.Process(anpr.DetectionEvent{TrackID: "t1", BBox: box(400, 400), PlateText: "ABC123"})
	assert.True(t, inside.Notify, "dropped event must not consume the debounce window")

	small := p.Process(anpr.DetectionEvent{BBox: anpr.BBox{X1: 400, Y1: 400, X2: 410, Y2: 410}, PlateText: "ABC123"})
	assert.Equal(t, string(geometry.ReasonTooSmall), small.Dropped)
}

func TestProcess_OnlyInDirection(t *testing.T) {
	cfg := baseConfig()
	cfg.OnlyInDirection = true
	gate := 300.0
	cfg.Direction = direction.Config{Enabled: true, Axis: direction.AxisY, GateLine: &gate, RequireLineCross: true}
	p, clk := newTestPipeline(cfg)

	ev := func(y float64) anpr.DetectionEvent {
		return anpr.DetectionEvent{TrackID: "car-1", BBox: box(400, y), PlateText: "ABC123"}
	}

	d := p.Process(ev(280))
	assert.Equal(t, anpr.ActionOpenGate, d.Action, "direction never suppresses actuation")
	assert.False(t, d.Notify)
	assert.Equal(t, SuppressDirection, d.Suppressed)

	clk.Advance(200 * time.Millisecond)
	d = p.Process(ev(320))
	assert.True(t, d.Crossed)
	assert.Equal(t, anpr.DirectionIn, d.Direction)
	assert.True(t, d.Notify, "direction-suppressed frames do not consume debounce")
	assert.Equal(t, "Plate ABC123 -> ALLOW [in]", d.Caption)

	clk.Advance(200 * time.Millisecond)
	d = p.Process(ev(280))
	assert.Equal(t, anpr.DirectionOut, d.Direction)
	assert.False(t, d.Notify)
}

func TestProcess_UnreadableDedup(t *testing.T) {
	base := uint64(0x0123456789ABCDEF)

	t.Run("similar hash two seconds apart notifies once", func(t *testing.T) {
		p, clk := newTestPipeline(baseConfig())
		first := p.Process(unreadable(base, 400, 400))
		clk.Advance(2 * time.Second)
		second := p.Process(unreadable(base^0b111, 400, 400))

		assert.True(t, first.Notify)
		assert.Equal(t, anpr.CategoryUnreadable, first.Category)
		assert.Equal(t, anpr.ActionNotifyOnly, first.Action)
		assert.Equal(t, "Plate unreadable", first.Caption)
		assert.Equal(t, anpr.RouteDebug, first.Route)
		assert.False(t, second.Notify)
		assert.Equal(t, SuppressDuplicate, second.Suppressed)
		assert.Equal(t, anpr.ActionNone, second.Action)
	})
	t.Run("distant hash notifies twice", func(t *testing.T) {
		p, clk := newTestPipeline(baseConfig())
		first := p.Process(unreadable(base, 400, 400))
		clk.Advance(2 * time.Second)
		second := p.Process(unreadable(base^0xFF, 400, 400))

		assert.True(t, first.Notify)
		assert.True(t, second.Notify)
	})
	t.Run("global cooldown suppresses a new vehicle", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Unreadable.Cooldown = 30 * time.Second
		p, clk := newTestPipeline(cfg)
		p.Process(unreadable(base, 400, 400))
		clk.Advance(5 * time.Second)
		d := p.Process(unreadable(^base, 400, 400))

		assert.False(t, d.Notify)
		assert.Equal(t, SuppressCooldown, d.Suppressed)
	})
	t.Run("disabled unreadable notifications", func(t *testing.T) {
		cfg := baseConfig()
		cfg.NotifyUnreadable = false
		p, _ := newTestPipeline(cfg)
		d := p.Process(unreadable(base, 400, 400))

		assert.Equal(t, anpr.CategoryUnreadable, d.Category)
		assert.Equal(t, anpr.ActionNone, d.Action)
		assert.False(t, d.Notify)
		assert.Empty(t, d.Suppressed)
		assert.Equal(t, 0, p.state.Unreadable.Len())
	})
	t.Run("unreadable never actuates even with plate-like noise", func(t *testing.T) {
		p, _ := newTestPipeline(baseConfig())
		ev := unreadable(base, 400, 400)
		ev.PlateText = " -- "
		d := p.Process(ev)
		assert.Equal(t, anpr.CategoryUnreadable, d.Category)
		assert.False(t, d.Actuates())
	})
}

func TestProcess_UnreadableRequiresHits(t *testing.T) {
	cfg := baseConfig()
	cfg.Hits = dedup.HitConfig{MinHits: 2, TTL: time.Second, Tolerance: 40}
	p, clk := newTestPipeline(cfg)

	d := p.Process(unreadable(1, 400, 400))
	assert.Equal(t, SuppressUnconfirmed, d.Suppressed)

	clk.Advance(300 * time.Millisecond)
	d = p.Process(unreadable(1, 410, 405))
	assert.True(t, d.Notify)
}

func TestProcess_UnreadableRequiresCrossing(t *testing.T) {
	cfg := baseConfig()
	gate := 300.0
	cfg.Direction = direction.Config{Enabled: true, Axis: direction.AxisY, GateLine: &gate, RequireLineCross: true}
	p, clk := newTestPipeline(cfg)

	ev := unreadable(1, 400, 280)
	ev.TrackID = "car-9"
	d := p.Process(ev)
	assert.Equal(t, SuppressDirection, d.Suppressed)

	clk.Advance(200 * time.Millisecond)
	ev = unreadable(1, 400, 320)
	ev.TrackID = "car-9"
	d = p.Process(ev)
	assert.True(t, d.Notify)
	assert.Equal(t, "Plate unreadable [in]", d.Caption)
}

func TestProcess_RulesReloadTakesEffect(t *testing.T) {
	store := testRules()
	p := New(baseConfig(), store, nil, clock.NewMock(t0), zerolog.Nop())

	require.Equal(t, anpr.CategoryUnknown, p.Process(plateEvent("NEW111")).Category)

	sets, _ := rules.FromEntries([]rules.Entry{{Plate: "NEW111", Category: anpr.CategoryDenied}})
	store.Swap(sets)
	assert.Equal(t, anpr.CategoryDenied, p.Process(plateEvent("NEW111")).Category)
}
