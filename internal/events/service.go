package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultUpcomingLimit = 20
	maxUpcomingLimit     = 100
)

var (
	errMissingDatabase = errors.New("events: database handle is required")
	// ErrInvalidEvent indicates an incoming event record missing its upsert key.
	ErrInvalidEvent = errors.New("events: invalid event record")
	// ErrMissingCalendarID indicates a bridge call without a calendar identifier.
	ErrMissingCalendarID = errors.New("events: calendar id is required")

	noOpLogger = zap.NewNop()
)

// EventInput is one normalized event record delivered by the sync process.
type EventInput struct {
	ExternalCalendarID string
	Title              string
	Description        string
	Location           string
	StartTime          time.Time
	EndTime            time.Time
	Timezone           string
	AllDay             bool
	Status             string
}

// ServiceConfig describes the dependencies of the sync bridge.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service is the bridge the external calendar-sync process writes through.
// Delivery is at-least-once; upsert idempotency keyed by the external
// calendar id is the correctness mechanism.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the sync bridge.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// GetSyncCursor returns the stored cursor for a calendar, or nil if the
// calendar has never been synced.
func (s *Service) GetSyncCursor(ctx context.Context, calendarID string) (*SyncCursor, error) {
	if strings.TrimSpace(calendarID) == "" {
		return nil, ErrMissingCalendarID
	}

	var cursor SyncCursor
	err := s.db.WithContext(ctx).
		Where("calendar_id = ?", calendarID).
		Take(&cursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cursor, nil
}

// SubmitEvents upserts a batch of normalized events and advances the sync
// cursor in a single transaction. Partial application would cause duplicate
// delivery on the next sync, so either everything lands or nothing does.
func (s *Service) SubmitEvents(ctx context.Context, calendarID string, inputs []EventInput, newCursorToken *string) (int, error) {
	if strings.TrimSpace(calendarID) == "" {
		return 0, ErrMissingCalendarID
	}
	for _, input := range inputs {
		if strings.TrimSpace(input.ExternalCalendarID) == "" {
			return 0, fmt.Errorf("%w: missing external calendar id", ErrInvalidEvent)
		}
	}

	now := s.clock().UTC()
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, input := range inputs {
			record := newEventRecord(input, now)
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "external_calendar_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"title", "description", "location", "start_time", "end_time",
					"timezone", "all_day", "status", "deleted_at", "updated_at",
				}),
			}).Create(&record).Error
			if err != nil {
				return err
			}
		}

		successAt := now
		cursor := SyncCursor{
			CalendarID:    calendarID,
			CursorToken:   newCursorToken,
			LastSyncAt:    now,
			LastSuccessAt: &successAt,
			ErrorCount:    0,
			LastError:     nil,
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "calendar_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"cursor_token", "last_sync_at", "last_success_at", "error_count", "last_error",
			}),
		}).Create(&cursor).Error
	})
	if txErr != nil {
		s.logger.Error("event sync failed",
			zap.String("calendar_id", calendarID),
			zap.Int("event_count", len(inputs)),
			zap.Error(txErr))
		return 0, txErr
	}

	s.logger.Info("events synced",
		zap.String("calendar_id", calendarID),
		zap.Int("event_count", len(inputs)))
	return len(inputs), nil
}

// RecordSyncError notes a failed sync attempt without touching the cursor
// token, so the next sync reuses the last known-good cursor.
func (s *Service) RecordSyncError(ctx context.Context, calendarID, message string) error {
	if strings.TrimSpace(calendarID) == "" {
		return ErrMissingCalendarID
	}

	now := s.clock().UTC()
	cursor := SyncCursor{
		CalendarID: calendarID,
		LastSyncAt: now,
		ErrorCount: 1,
		LastError:  &message,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "calendar_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_sync_at": now,
			"error_count":  gorm.Expr("error_count + 1"),
			"last_error":   message,
		}),
	}).Create(&cursor).Error
	if err != nil {
		s.logger.Error("recording sync error failed",
			zap.String("calendar_id", calendarID),
			zap.Error(err))
		return err
	}

	s.logger.Warn("sync error recorded",
		zap.String("calendar_id", calendarID),
		zap.String("sync_error", message))
	return nil
}

// GetUpcoming lists non-deleted confirmed or tentative events starting at or
// after now, ascending by start time. The limit is clamped to 1..100 and
// defaults to 20.
func (s *Service) GetUpcoming(ctx context.Context, limit int, includeAllDay bool) ([]Event, error) {
	if limit <= 0 {
		limit = defaultUpcomingLimit
	}
	if limit > maxUpcomingLimit {
		limit = maxUpcomingLimit
	}

	query := s.db.WithContext(ctx).
		Where("deleted_at IS NULL").
		Where("status IN ?", []string{StatusConfirmed, StatusTentative}).
		Where("start_time >= ?", s.clock().UTC())
	if !includeAllDay {
		query = query.Where("all_day = ?", false)
	}

	var upcoming []Event
	err := query.Order("start_time ASC").Limit(limit).Find(&upcoming).Error
	if err != nil {
		return nil, err
	}
	return upcoming, nil
}

func newEventRecord(input EventInput, now time.Time) Event {
	timezone := strings.TrimSpace(input.Timezone)
	if timezone == "" {
		timezone = "UTC"
	}

	var deletedAt *time.Time
	if input.Status == StatusCancelled {
		cancelled := now
		deletedAt = &cancelled
	}

	return Event{
		ExternalCalendarID: input.ExternalCalendarID,
		Title:              input.Title,
		Description:        input.Description,
		Location:           input.Location,
		StartTime:          input.StartTime.UTC(),
		EndTime:            input.EndTime.UTC(),
		Timezone:           timezone,
		AllDay:             input.AllDay,
		Status:             input.Status,
		DeletedAt:          deletedAt,
	}
}
