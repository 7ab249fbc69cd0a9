package domain

import "time"

type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventStatus  EventType = "status_changed"
	EventDeleted EventType = "deleted"
)

// ListingEvent describes one change applied to the content store.
type ListingEvent struct {
	Type        EventType `json:"type"`
	RecordID    int64     `json:"record_id"`
	UUID        string    `json:"uuid"`
	Title       string    `json:"title,omitempty"`
	ListingType string    `json:"listing_type,omitempty"`
	Status      Status    `json:"status"`
	Modified    time.Time `json:"modified,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Report compares the remote active set with local published records.
type Report struct {
	RemoteActive     int       `json:"remote_active"`
	RemoteDuplicates []string  `json:"remote_duplicates"`
	LocalPublished   int       `json:"local_published"`
	MissingLocally   []string  `json:"missing_locally"`
	MissingRemotely  []string  `json:"missing_remotely"`
	GeneratedAt      time.Time `json:"generated_at"`
}
