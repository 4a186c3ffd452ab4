package events

import "time"

// Event statuses mirror the values delivered by the calendar source.
const (
	StatusConfirmed = "confirmed"
	StatusTentative = "tentative"
	StatusCancelled = "cancelled"
)

// Event is a calendar event mirrored from an external calendar. The external
// calendar id is the upsert key; cancelled events are soft-deleted so repeated
// deliveries stay idempotent.
type Event struct {
	ID                 int64      `gorm:"column:id;primaryKey;autoIncrement"`
	ExternalCalendarID string     `gorm:"column:external_calendar_id;size:190;not null;uniqueIndex:idx_events_external_id"`
	Title              string     `gorm:"column:title;size:320;not null"`
	Description        string     `gorm:"column:description;type:text"`
	Location           string     `gorm:"column:location;size:320"`
	StartTime          time.Time  `gorm:"column:start_time;not null;index:idx_events_start"`
	EndTime            time.Time  `gorm:"column:end_time;not null"`
	Timezone           string     `gorm:"column:timezone;size:64;not null"`
	AllDay             bool       `gorm:"column:all_day;not null;default:false"`
	Status             string     `gorm:"column:status;size:32;not null"`
	DeletedAt          *time.Time `gorm:"column:deleted_at"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Event) TableName() string {
	return "calendar_events"
}

// SyncCursor tracks the incremental sync position of one external calendar.
// A NULL cursor token means the next sync is a full resync.
type SyncCursor struct {
	CalendarID    string     `gorm:"column:calendar_id;primaryKey;size:190;not null"`
	CursorToken   *string    `gorm:"column:cursor_token;size:512"`
	LastSyncAt    time.Time  `gorm:"column:last_sync_at"`
	LastSuccessAt *time.Time `gorm:"column:last_success_at"`
	ErrorCount    int64      `gorm:"column:error_count;not null;default:0"`
	LastError     *string    `gorm:"column:last_error;type:text"`
}

// TableName provides the explicit table binding for GORM.
func (SyncCursor) TableName() string {
	return "calendar_sync_cursors"
}
