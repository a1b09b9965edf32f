// Command simulator replays a scripted sequence of detections through the
// decision pipeline with dry-run actuators and prints what would happen.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"time"

	"github.com/corona10/goimagehash"
	"github.com/rs/zerolog"

	"plate-gate/internal/actuator"
	"plate-gate/internal/clock"
	"plate-gate/internal/dedup"
	"plate-gate/internal/domain/anpr"
	"plate-gate/internal/geometry"
	"plate-gate/internal/logger"
	"plate-gate/internal/notify"
	"plate-gate/internal/pipeline"
	"plate-gate/internal/rules"
)

type step struct {
	name  string
	box   anpr.BBox
	plate string
	// seed drives the synthetic crop used for unreadable hashing.
	seed int
	wait time.Duration
}

// xywh converts an (x, y, width, height) detector box.
func xywh(x, y, w, h float64) anpr.BBox {
	return anpr.BBox{X1: x, Y1: y, X2: x + w, Y2: y + h}
}

var script = []step{
	{name: "far car, tiny box", box: xywh(50, 600, 40, 15), seed: 1},
	{name: "allowed plate inside roi", box: xywh(300, 400, 160, 50), plate: "ABC123"},
	{name: "unreadable outside roi", box: xywh(900, 100, 150, 50), seed: 2},
	{name: "ignored plate inside roi", box: xywh(320, 420, 160, 50), plate: "IGN999"},
	{name: "unreadable inside roi", box: xywh(250, 500, 160, 50), seed: 3, wait: time.Second},
	{name: "same unreadable vehicle again", box: xywh(252, 502, 160, 50), seed: 3, wait: 500 * time.Millisecond},
}

type sent struct {
	route anpr.Route
	photo bool
	text  string
}

// recordingNotifier keeps notifications in memory instead of calling Telegram.
type recordingNotifier struct {
	sent []sent
}

func (n *recordingNotifier) SendText(_ context.Context, msg notify.Message) error {
	n.sent = append(n.sent, sent{route: msg.Route, text: msg.Text})
	return nil
}

func (n *recordingNotifier) SendPhoto(_ context.Context, _ []byte, msg notify.Message) error {
	n.sent = append(n.sent, sent{route: msg.Route, photo: true, text: msg.Text})
	return nil
}

func main() {
	verbose := flag.Bool("v", false, "log every pipeline step")
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log := logger.New(logger.Options{Level: level, Pretty: true})

	if err := run(log); err != nil {
		fmt.Fprintln(os.Stderr, "simulator:", err)
		os.Exit(1)
	}
}

func run(log zerolog.Logger) error {
	decisions, notifier, err := replay(log)
	if err != nil {
		return err
	}
	for i, d := range decisions {
		fmt.Printf("%d) %-32s action=%-13s category=%-10s dropped=%-13s suppressed=%s\n",
			i+1, script[i].name, d.Action, d.Category, d.Dropped, d.Suppressed)
	}

	fmt.Println()
	fmt.Println("notifications:")
	for _, n := range notifier.sent {
		kind := "text"
		if n.photo {
			kind = "photo"
		}
		fmt.Printf("  [%s/%s] %s\n", n.route, kind, n.text)
	}
	return nil
}

// replay runs the script through a fresh pipeline on a mock clock.
func replay(log zerolog.Logger) ([]anpr.Decision, *recordingNotifier, error) {
	cfg := pipeline.Config{
		ROI: geometry.RegionOfInterest{
			Enabled: true,
			Mode:    geometry.ModeRectangle,
			Rect:    [4]float64{200, 300, 600, 700},
		},
		Filters:          geometry.Filters{MinBoxArea: 5000},
		MinPlateLen:      4,
		NotifyUnknown:    true,
		NotifyUnreadable: true,
		SendPhotos:       true,
		Unreadable: dedup.UnreadableConfig{
			Threshold: 6,
			Debounce:  10 * time.Second,
		},
		Hits:            dedup.HitConfig{MinHits: 1, TTL: time.Second, Tolerance: 40},
		RouteReadable:   anpr.RouteMain,
		RouteUnreadable: anpr.RouteDebug,
	}

	sets, _ := rules.FromEntries([]rules.Entry{
		{Plate: "ABC123", Category: anpr.CategoryAllowed},
		{Plate: "IGN999", Category: anpr.CategoryIgnored},
	})
	store := rules.NewStore(sets)

	clk := clock.NewMock(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	p := pipeline.New(cfg, store, pipeline.NewState(cfg), clk, log)

	notifier := &recordingNotifier{}
	gate := actuator.NewGate(actuator.ModeDryRun, actuator.HTTPConfig{}, log)
	alarm := actuator.NewAlarm(actuator.ModeDryRun, actuator.HTTPConfig{}, log)
	dispatcher := pipeline.NewDispatcher(gate, alarm, notifier, nil, log)

	ctx := context.Background()
	decisions := make([]anpr.Decision, 0, len(script))
	for i, s := range script {
		clk.Advance(s.wait)

		ev := anpr.DetectionEvent{
			CameraID:  "sim",
			TrackID:   fmt.Sprintf("t%d", i+1),
			Timestamp: clk.Now(),
			BBox:      s.box,
			PlateText: s.plate,
		}
		crop := syntheticCrop(s.seed)
		if s.plate == "" {
			hash, err := goimagehash.ExtDifferenceHash(crop, 8, 8)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to hash crop: %w", err)
			}
			ev.ROIHash = hash
		}
		snapshot, err := encodeJPEG(crop)
		if err != nil {
			return nil, nil, err
		}
		ev.Snapshot = snapshot

		d := p.Process(ev)
		dispatcher.Dispatch(ctx, d, ev)
		decisions = append(decisions, d)
	}
	return decisions, notifier, nil
}

// syntheticCrop draws a deterministic gradient pattern; equal seeds give
// equal images.
func syntheticCrop(seed int) image.Image {
	img := image.NewGray(image.Rect(0, 0, 64, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 64; x++ {
			v := (x*seed*7 + y*(seed+3)*11) % 256
			img.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}
	return img
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}
