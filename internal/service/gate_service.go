package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/corona10/goimagehash"
	"github.com/rs/zerolog"

	"plate-gate/internal/actuator"
	"plate-gate/internal/clock"
	"plate-gate/internal/domain/anpr"
	"plate-gate/internal/repository"
	"plate-gate/internal/rules"
	"plate-gate/internal/utils"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("not found")
	ErrDatabaseDisabled = errors.New("database disabled")
)

// Submitter hands an event to the single decision consumer.
type Submitter interface {
	Submit(ctx context.Context, event anpr.DetectionEvent) (anpr.Decision, error)
}

type Repository interface {
	LoadRuleEntries(ctx context.Context) ([]rules.Entry, error)
	AddPlateToList(ctx context.Context, category anpr.Category, group, normalized, original, note string) error
	FindDecisions(ctx context.Context, filter repository.DecisionFilter) ([]repository.GateDecision, error)
}

type Options struct {
	CameraID  string
	RuleFiles rules.Files
}

type GateService struct {
	submitter Submitter
	store     *rules.Store
	repo      Repository
	gate      actuator.Gate
	clock     clock.Clock
	opts      Options
	log       zerolog.Logger
}

// NewGateService wires the service. repo may be nil when running without a
// database.
func NewGateService(
	submitter Submitter,
	store *rules.Store,
	repo Repository,
	gate actuator.Gate,
	clk clock.Clock,
	opts Options,
	log zerolog.Logger,
) *GateService {
	return &GateService{
		submitter: submitter,
		store:     store,
		repo:      repo,
		gate:      gate,
		clock:     clk,
		opts:      opts,
		log:       log,
	}
}

// ProcessIncomingEvent validates a detector payload and runs it through the
// pipeline. A roi_hash that cannot be parsed is dropped, so the event is
// never matched against earlier unreadable vehicles.
func (s *GateService) ProcessIncomingEvent(ctx context.Context, payload anpr.EventPayload) (anpr.Decision, error) {
	if payload.BBox.X2 < payload.BBox.X1 || payload.BBox.Y2 < payload.BBox.Y1 {
		return anpr.Decision{}, fmt.Errorf("%w: bbox corners are inverted", ErrInvalidInput)
	}

	event := anpr.DetectionEvent{
		CameraID:  payload.CameraID,
		TrackID:   strings.TrimSpace(payload.TrackID),
		Timestamp: payload.EventTime,
		BBox:      payload.BBox,
		PlateText: payload.Plate,
		Snapshot:  payload.Snapshot,
	}
	if event.CameraID == "" {
		event.CameraID = s.opts.CameraID
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}
	if payload.ROIHash != "" {
		hash, err := goimagehash.ExtImageHashFromString(payload.ROIHash)
		if err != nil {
			s.log.Warn().
				Err(err).
				Str("camera_id", event.CameraID).
				Str("roi_hash", payload.ROIHash).
				Msg("ignoring malformed roi_hash")
		} else {
			event.ROIHash = hash
		}
	}

	decision, err := s.submitter.Submit(ctx, event)
	if err != nil {
		return anpr.Decision{}, fmt.Errorf("failed to process detection: %w", err)
	}
	return decision, nil
}

// ReloadRules rebuilds the rule sets from the CSV datasets and, when enabled,
// the database lists, then swaps them in atomically. Plates listed in more
// than one dataset are logged.
func (s *GateService) ReloadRules(ctx context.Context) (map[anpr.Category]int, error) {
	entries, err := rules.LoadCSV(s.opts.RuleFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule files: %w", err)
	}
	if s.repo != nil {
		dbEntries, err := s.repo.LoadRuleEntries(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load rule lists: %w", err)
		}
		entries = append(entries, dbEntries...)
	}

	sets, conflicts := rules.FromEntries(entries)
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Plate < conflicts[j].Plate })
	for _, c := range conflicts {
		cats := make([]string, 0, len(c.Categories))
		for _, cat := range c.Categories {
			cats = append(cats, string(cat))
		}
		s.log.Warn().
			Str("plate", c.Plate).
			Strs("categories", cats).
			Msg("plate listed in more than one dataset")
	}

	s.store.Swap(sets)
	sizes := sets.Size()
	s.log.Info().
		Int("ignored", sizes[anpr.CategoryIgnored]).
		Int("allowed", sizes[anpr.CategoryAllowed]).
		Int("denied", sizes[anpr.CategoryDenied]).
		Int("watchlist", sizes[anpr.CategoryWatchlist]).
		Int("conflicts", len(conflicts)).
		Msg("rules loaded")
	return sizes, nil
}

// AddListEntry stores a plate in the list named by listType and reloads the
// rules so the change applies to the next detection.
func (s *GateService) AddListEntry(ctx context.Context, listType, plate, group, note string) (map[anpr.Category]int, error) {
	category, ok := rules.ParseCategory(listType)
	if !ok {
		return nil, fmt.Errorf("%w: unknown list type %q", ErrNotFound, listType)
	}
	normalized := utils.NormalizePlate(plate)
	if normalized == "" {
		return nil, fmt.Errorf("%w: plate cannot be empty after normalization", ErrInvalidInput)
	}
	if category != anpr.CategoryWatchlist {
		group = ""
	}
	if s.repo == nil {
		return nil, ErrDatabaseDisabled
	}

	if err := s.repo.AddPlateToList(ctx, category, strings.TrimSpace(group), normalized, plate, note); err != nil {
		s.log.Error().
			Err(err).
			Str("plate", normalized).
			Str("list_type", string(category)).
			Msg("failed to add plate to list")
		return nil, fmt.Errorf("failed to add plate to list: %w", err)
	}
	s.log.Info().
		Str("plate", normalized).
		Str("list_type", string(category)).
		Str("group", group).
		Msg("plate added to list")

	return s.ReloadRules(ctx)
}

func (s *GateService) FindDecisions(ctx context.Context, plateQuery, categoryQuery, from, to *string, limit, offset int) ([]repository.GateDecision, error) {
	if s.repo == nil {
		return nil, ErrDatabaseDisabled
	}

	var filter repository.DecisionFilter
	if plateQuery != nil {
		normalized := utils.NormalizePlate(*plateQuery)
		if normalized != "" {
			filter.Plate = &normalized
		}
	}
	if categoryQuery != nil && *categoryQuery != "" {
		category, ok := parseDecisionCategory(*categoryQuery)
		if !ok {
			return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, *categoryQuery)
		}
		filter.Category = &category
	}
	if from != nil && *from != "" {
		t, err := time.Parse(time.RFC3339, *from)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid from time format", ErrInvalidInput)
		}
		filter.From = &t
	}
	if to != nil && *to != "" {
		t, err := time.Parse(time.RFC3339, *to)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid to time format", ErrInvalidInput)
		}
		filter.To = &t
	}
	filter.Limit, filter.Offset = repository.ClampPage(limit, offset)

	decisions, err := s.repo.FindDecisions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find decisions: %w", err)
	}
	return decisions, nil
}

// OpenGate opens the gate on operator request.
func (s *GateService) OpenGate(ctx context.Context, reason string) error {
	s.log.Info().Str("reason", reason).Msg("manual gate open")
	if err := s.gate.OpenGate(ctx, manualPlate(reason)); err != nil {
		return fmt.Errorf("failed to open gate: %w", err)
	}
	return nil
}

func (s *GateService) CloseGate(ctx context.Context, reason string) error {
	s.log.Info().Str("reason", reason).Msg("manual gate close")
	if err := s.gate.CloseGate(ctx, manualPlate(reason)); err != nil {
		return fmt.Errorf("failed to close gate: %w", err)
	}
	return nil
}

func manualPlate(reason string) string {
	if reason == "" {
		return "manual"
	}
	return "manual:" + reason
}

func parseDecisionCategory(s string) (anpr.Category, bool) {
	switch c := anpr.Category(strings.ToLower(strings.TrimSpace(s))); c {
	case anpr.CategoryUnknown, anpr.CategoryUnreadable:
		return c, true
	}
	return rules.ParseCategory(s)
}

// RuleSizes reports the number of plates in each loaded dataset.
func (s *GateService) RuleSizes() map[anpr.Category]int {
	return s.store.Load().Size()
}
