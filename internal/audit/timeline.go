package audit

import (
	"time"

	"github.com/google/uuid"
)

// TimelineFilters narrows the audit timeline query.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	SchoolID uuid.UUID
	ActorID  uuid.UUID
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one entry of the audit timeline.
type TimelineRow struct {
	At       time.Time
	ActorID  uuid.UUID
	SchoolID uuid.UUID
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
}

// PagingInfo carries simple pagination metadata.
type PagingInfo struct {
	Page     int
	HasNext  bool
	PageSize int
	PrevPage int
	NextPage int
}
