package store

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrBadTransition is returned when a status update would violate the
	// post lifecycle.
	ErrBadTransition = errors.New("store: illegal status transition")
	ErrPastTrigger   = errors.New("store: trigger time is not in the future")
)

// Status is the post lifecycle state.
//
//	draft -> pending -> in_flight -> sent | failed
//	draft, pending -> cancelled
//	sent -> self_deleted
//
// cancelled is reachable from draft and pending only; sent, failed and
// cancelled are terminal except for the sent -> self_deleted hop.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusPending     Status = "pending"
	StatusInFlight    Status = "in_flight"
	StatusSent        Status = "sent"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
	StatusSelfDeleted Status = "self_deleted"
)

// transitionsInto lists the states a post may be in immediately before
// entering the keyed state. Claiming (pending -> in_flight) is excluded:
// it only happens through Claim, never through UpdateStatus.
var transitionsInto = map[Status][]Status{
	StatusPending:     {StatusDraft},
	StatusSent:        {StatusInFlight},
	StatusFailed:      {StatusInFlight},
	StatusCancelled:   {StatusDraft, StatusPending},
	StatusSelfDeleted: {StatusSent},
	// in_flight -> pending happens only through ReleaseStale.
}

// ContentType describes what the post payload refers to.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentPhoto    ContentType = "photo"
	ContentVideo    ContentType = "video"
	ContentDocument ContentType = "document"
)

func (c ContentType) Valid() bool {
	switch c {
	case ContentText, ContentPhoto, ContentVideo, ContentDocument:
		return true
	}
	return false
}

// Channel is a registered destination channel, unique per (user, channel).
type Channel struct {
	ID          int64
	UserID      int64
	ChannelID   int64
	DisplayName string
	Tag         string
	Thumbnail   string
	CreatedAt   time.Time
}

// Post is one user-authored post.
//
// Payload carries message text or a platform file handle, depending on
// Type. TriggerAt is zero until the post is scheduled. MessageID is set
// once the post has been delivered.
type Post struct {
	ID        int64
	UserID    int64
	ChannelID int64
	Index     int64

	Type        ContentType
	Payload     string
	Caption     string
	Buttons     string // JSON-encoded URL button set
	Reactions   string // JSON-encoded reaction set
	PayloadSize int64

	Status          Status
	TriggerAt       time.Time
	DestructSeconds int

	MessageID  int64
	ClaimToken string
	ClaimedAt  time.Time
	LastError  string
	CreatedAt  time.Time
}

// Destruction is an armed self-deletion, persisted so a restart can
// re-arm pending timers.
type Destruction struct {
	PostID int64
	FireAt time.Time
}

// Fixed destruct duration presets offered to users. The scheduler itself
// accepts any positive value.
const (
	Destruct5Min    = 5 * 60
	Destruct30Min   = 30 * 60
	Destruct1Hour   = 60 * 60
	Destruct6Hours  = 6 * 60 * 60
	Destruct24Hours = 24 * 60 * 60
)
