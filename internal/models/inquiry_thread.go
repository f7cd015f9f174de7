package models

import (
	"time"

	"greendrake/marketdesk/internal/utils"
)

// SenderInfo identifies the inquiring party of a thread: a registered user,
// free-form contact details, or both.
type SenderInfo struct {
	UserID  *utils.SixID `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Name    string       `bson:"name" json:"name"`
	Email   string       `bson:"email" json:"email"`
	Phone   string       `bson:"phone,omitempty" json:"phone,omitempty"`
	Company string       `bson:"company,omitempty" json:"company,omitempty"`
}

// InquiryThread binds a listing, its owner and one sender.
type InquiryThread struct {
	Base         `bson:",inline"`
	ListingID    utils.SixID  `bson:"listing_id" json:"listing_id"`
	ListingTitle string       `bson:"listing_title" json:"listing_title"`
	OwnerID      *utils.SixID `bson:"owner_id,omitempty" json:"owner_id,omitempty"`
	Sender       SenderInfo   `bson:"sender" json:"sender"`
	SenderKey    string       `bson:"sender_key" json:"-"`
	IsRead       bool         `bson:"is_read" json:"is_read"`
	CreatedAt    time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `bson:"updated_at" json:"updated_at"`
}

// ParticipantRole is how an identity relates to a thread.
type ParticipantRole string

const (
	ParticipantNone   ParticipantRole = ""
	ParticipantSender ParticipantRole = "sender"
	ParticipantOwner  ParticipantRole = "owner"
	ParticipantAdmin  ParticipantRole = "admin"
)
