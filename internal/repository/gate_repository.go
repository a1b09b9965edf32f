package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"plate-gate/internal/domain/anpr"
	"plate-gate/internal/rules"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

type GateRepository struct {
	db *gorm.DB
}

func NewGateRepository(db *gorm.DB) *GateRepository {
	return &GateRepository{db: db}
}

type Plate struct {
	ID         int64     `gorm:"primaryKey"`
	Number     string    `gorm:"not null"`
	Normalized string    `gorm:"not null;uniqueIndex"`
	CreatedAt  time.Time
}

type List struct {
	ID          int64     `gorm:"primaryKey"`
	Name        string    `gorm:"not null;uniqueIndex"`
	Type        string    `gorm:"not null"`
	GroupName   *string
	Description *string
	CreatedAt   time.Time
}

type ListItem struct {
	ListID    int64     `gorm:"primaryKey"`
	PlateID   int64     `gorm:"primaryKey"`
	Note      *string
	CreatedAt time.Time
}

// GateDecision is one row of the decision log.
type GateDecision struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CameraID   *string        `json:"camera_id,omitempty"`
	TrackID    *string        `json:"track_id,omitempty"`
	Plate      *string        `json:"plate,omitempty"`
	Action     string         `gorm:"not null" json:"action"`
	Category   *string        `json:"category,omitempty"`
	Direction  string         `gorm:"not null" json:"direction"`
	Crossed    bool           `json:"crossed"`
	Notified   bool           `json:"notified"`
	Suppressed *string        `json:"suppressed,omitempty"`
	Dropped    *string        `json:"dropped,omitempty"`
	GroupName  *string        `json:"group,omitempty"`
	Route      *string        `json:"route,omitempty"`
	Caption    *string        `json:"caption,omitempty"`
	EventTime  *time.Time     `json:"event_time,omitempty"`
	DecidedAt  time.Time      `gorm:"not null" json:"decided_at"`
	RawEvent   datatypes.JSON `gorm:"type:jsonb" json:"raw_event,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// DecisionFilter narrows FindDecisions. Nil fields are not applied.
type DecisionFilter struct {
	Plate    *string
	Category *anpr.Category
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// rawEvent is the stored copy of the detection; the snapshot is omitted.
type rawEvent struct {
	CameraID    string    `json:"camera_id,omitempty"`
	TrackID     string    `json:"track_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	BBox        anpr.BBox `json:"bbox"`
	PlateText   string    `json:"plate_text,omitempty"`
	ROIHash     string    `json:"roi_hash,omitempty"`
	HasSnapshot bool      `json:"has_snapshot"`
}

func (r *GateRepository) GetOrCreatePlate(ctx context.Context, normalized, original string) (int64, error) {
	var plate Plate
	err := r.db.WithContext(ctx).Where("normalized = ?", normalized).First(&plate).Error
	if err == nil {
		return plate.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	plate = Plate{
		Number:     original,
		Normalized: normalized,
		CreatedAt:  time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&plate).Error; err != nil {
		return 0, err
	}
	return plate.ID, nil
}

// ListName is the list a category (and watchlist group) is stored under.
func ListName(category anpr.Category, group string) string {
	if category == anpr.CategoryWatchlist && group != "" {
		return "watchlist_" + group
	}
	return "default_" + string(category)
}

func (r *GateRepository) getOrCreateList(ctx context.Context, category anpr.Category, group string) (int64, error) {
	name := ListName(category, group)

	var list List
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&list).Error
	if err == nil {
		return list.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	list = List{
		Name:      name,
		Type:      string(category),
		CreatedAt: time.Now(),
	}
	if group != "" {
		list.GroupName = &group
	}
	if err := r.db.WithContext(ctx).Create(&list).Error; err != nil {
		return 0, err
	}
	return list.ID, nil
}

// AddPlateToList stores a plate under the category's list. Adding a plate
// that is already listed is a no-op.
func (r *GateRepository) AddPlateToList(ctx context.Context, category anpr.Category, group, normalized, original, note string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &GateRepository{db: tx}
		listID, err := txRepo.getOrCreateList(ctx, category, group)
		if err != nil {
			return fmt.Errorf("failed to get list: %w", err)
		}
		plateID, err := txRepo.GetOrCreatePlate(ctx, normalized, original)
		if err != nil {
			return fmt.Errorf("failed to get plate: %w", err)
		}

		item := ListItem{ListID: listID, PlateID: plateID, CreatedAt: time.Now()}
		if note != "" {
			item.Note = &note
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&item).Error
	})
}

type listRow struct {
	Normalized string
	ListType   string
	GroupName  *string
}

// LoadRuleEntries returns every listed plate. Lists with an unknown type are
// skipped.
func (r *GateRepository) LoadRuleEntries(ctx context.Context) ([]rules.Entry, error) {
	var rows []listRow
	err := r.db.WithContext(ctx).
		Table("list_items").
		Select("plates.normalized as normalized, lists.type as list_type, lists.group_name as group_name").
		Joins("JOIN lists ON list_items.list_id = lists.id").
		Joins("JOIN plates ON list_items.plate_id = plates.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	entries := make([]rules.Entry, 0, len(rows))
	for _, row := range rows {
		category, ok := rules.ParseCategory(row.ListType)
		if !ok {
			continue
		}
		e := rules.Entry{Plate: row.Normalized, Category: category}
		if row.GroupName != nil {
			e.Group = *row.GroupName
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// RecordDecision appends a decision to the log.
func (r *GateRepository) RecordDecision(ctx context.Context, decision anpr.Decision, event anpr.DetectionEvent) error {
	row, err := NewDecisionRow(decision, event)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func NewDecisionRow(decision anpr.Decision, event anpr.DetectionEvent) (GateDecision, error) {
	raw := rawEvent{
		CameraID:    event.CameraID,
		TrackID:     event.TrackID,
		Timestamp:   event.Timestamp,
		BBox:        event.BBox,
		PlateText:   event.PlateText,
		HasSnapshot: len(event.Snapshot) > 0,
	}
	if event.ROIHash != nil {
		raw.ROIHash = event.ROIHash.ToString()
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		return GateDecision{}, fmt.Errorf("failed to encode event: %w", err)
	}

	id := decision.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	row := GateDecision{
		ID:         id,
		CameraID:   optional(decision.CameraID),
		TrackID:    optional(decision.TrackID),
		Plate:      optional(decision.Plate),
		Action:     string(decision.Action),
		Category:   optional(string(decision.Category)),
		Direction:  string(decision.Direction),
		Crossed:    decision.Crossed,
		Notified:   decision.Notify,
		Suppressed: optional(decision.Suppressed),
		Dropped:    optional(decision.Dropped),
		GroupName:  optional(decision.Group),
		Route:      optional(string(decision.Route)),
		Caption:    optional(decision.Caption),
		DecidedAt:  decision.DecidedAt,
		RawEvent:   datatypes.JSON(payload),
		CreatedAt:  time.Now(),
	}
	if !event.Timestamp.IsZero() {
		ts := event.Timestamp
		row.EventTime = &ts
	}
	return row, nil
}

func (r *GateRepository) FindDecisions(ctx context.Context, filter DecisionFilter) ([]GateDecision, error) {
	query := r.db.WithContext(ctx).Model(&GateDecision{})

	if filter.Plate != nil {
		query = query.Where("plate = ?", *filter.Plate)
	}
	if filter.Category != nil {
		query = query.Where("category = ?", string(*filter.Category))
	}
	if filter.From != nil {
		query = query.Where("decided_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("decided_at <= ?", *filter.To)
	}

	limit, offset := ClampPage(filter.Limit, filter.Offset)
	query = query.Order("decided_at DESC").Limit(limit).Offset(offset)

	var decisions []GateDecision
	err := query.Find(&decisions).Error
	return decisions, err
}

// ClampPage applies the default page size and the upper bound.
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (GateDecision) TableName() string { return "gate_decisions" }

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
