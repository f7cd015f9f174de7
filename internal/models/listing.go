package models

import (
	"time"

	"greendrake/marketdesk/internal/utils"
)

// ListingStatus is the moderation state of a listing.
type ListingStatus string

const (
	ListingStatusPending  ListingStatus = "pending"
	ListingStatusApproved ListingStatus = "approved"
	ListingStatusRejected ListingStatus = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s ListingStatus) Valid() bool {
	switch s {
	case ListingStatusPending, ListingStatusApproved, ListingStatusRejected:
		return true
	}
	return false
}

// Listing is a marketplace submission. RejectionReason is only set while
// Status is rejected.
type Listing struct {
	Base            `bson:",inline"`
	OwnerID         *utils.SixID  `bson:"owner_id,omitempty" json:"owner_id,omitempty"`
	OwnerName       string        `bson:"owner_name" json:"owner_name"`
	ContactEmail    string        `bson:"contact_email" json:"-"`
	Title           string        `bson:"title" json:"title"`
	Description     string        `bson:"description" json:"description"`
	Category        string        `bson:"category,omitempty" json:"category,omitempty"`
	Price           *float64      `bson:"price,omitempty" json:"price,omitempty"`
	Images          []string      `bson:"images" json:"images"` // object storage keys
	Status          ListingStatus `bson:"status" json:"status"`
	RejectionReason *string       `bson:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`
	ModeratedBy     *utils.SixID  `bson:"moderated_by,omitempty" json:"moderated_by,omitempty"`
	ModeratedAt     *time.Time    `bson:"moderated_at,omitempty" json:"moderated_at,omitempty"`
	CreatedAt       time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `bson:"updated_at" json:"updated_at"`
}

// IsOwnedBy reports whether the identity is the recorded owner.
func (l *Listing) IsOwnedBy(who *Identity) bool {
	return l.OwnerID != nil && who.Authenticated() && *l.OwnerID == who.UserID
}

// ListingStats is the admin dashboard summary.
type ListingStats struct {
	Total    int64 `json:"total"`
	Pending  int64 `json:"pending"`
	Approved int64 `json:"approved"`
	Rejected int64 `json:"rejected"`
}
