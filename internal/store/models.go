package store

import "time"

type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Trip struct {
	ID          string
	OwnerID     string
	Name        string
	Destination string
	StartsOn    *time.Time
	EndsOn      *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type TripParticipant struct {
	TripID     string
	UserID     string
	Status     string // invited, accepted
	InvitedAt  time.Time
	AcceptedAt *time.Time
	// Joined fields for API responses
	Email       string
	DisplayName string
}

// Checklist is a named, ordered collection of to-do items scoped to a trip.
// OwnerID is nil for group checklists, which are shared by all accepted
// participants of the trip.
type Checklist struct {
	ID        string
	TripID    string
	OwnerID   *string
	Name      string
	Type      string // personal, group
	CreatedAt time.Time
	UpdatedAt time.Time
	Items     []ChecklistItem
}

// ChecklistItem carries item_order, a dense zero-based sort key per
// checklist. Deleting an item leaves a gap; only an explicit reorder
// compacts the sequence again.
type ChecklistItem struct {
	ID          string
	ChecklistID string
	Content     string
	IsChecked   bool
	ItemOrder   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type TripAttachment struct {
	ID          string
	TripID      string
	FileName    string
	ContentType string
	SizeBytes   int64
	ObjectKey   string
	UploadedBy  string
	CreatedAt   time.Time
}

const (
	ChecklistTypePersonal = "personal"
	ChecklistTypeGroup    = "group"

	ParticipantInvited  = "invited"
	ParticipantAccepted = "accepted"
)
