package models

import (
	"time"

	"greendrake/marketdesk/internal/utils"
)

type NotificationKind string

const (
	NotificationNewInquiry         NotificationKind = "new-inquiry"
	NotificationModerationDecision NotificationKind = "moderation-decision"
)

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
	NotificationLogged  NotificationStatus = "logged"
)

// NotificationRecord tracks one dispatch attempt for one event.
type NotificationRecord struct {
	Base        `bson:",inline"`
	UserID      utils.SixID        `bson:"user_id" json:"user_id"`
	SubjectRef  utils.SixID        `bson:"subject_ref" json:"subject_ref"`
	SubjectType string             `bson:"subject_type" json:"subject_type"`
	Kind        NotificationKind   `bson:"kind" json:"kind"`
	Status      NotificationStatus `bson:"status" json:"status"`
	Recipient   string             `bson:"recipient" json:"-"`
	Subject     string             `bson:"subject" json:"subject"`
	Body        string             `bson:"body" json:"-"`
	Data        map[string]string  `bson:"data,omitempty" json:"data,omitempty"`
	Provider    string             `bson:"provider,omitempty" json:"-"`
	Error       *string            `bson:"error,omitempty" json:"-"`
	Dismissed   bool               `bson:"dismissed" json:"-"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	SentAt      *time.Time         `bson:"sent_at,omitempty" json:"sent_at,omitempty"`
}

// NotificationEvent is what lifecycle operations hand to the dispatcher.
type NotificationEvent struct {
	Kind        NotificationKind
	RecipientID *utils.SixID
	SubjectRef  utils.SixID
	SubjectType string
	Data        map[string]string
}
