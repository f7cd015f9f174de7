package models

import (
	"time"
)

// NotificationPreferences controls which emails a user receives.
type NotificationPreferences struct {
	Enquiry    bool `bson:"enquiry" json:"enquiry"`
	Moderation bool `bson:"moderation" json:"moderation"`
}

// User is the read-only view of the external user directory.
type User struct {
	Base                    `bson:",inline"`
	Name                    string                   `bson:"name" json:"name"`
	Email                   string                   `bson:"email" json:"email"`
	IsAdmin                 bool                     `bson:"is_admin" json:"is_admin"`
	Suspended               bool                     `bson:"suspended" json:"-"`
	Deleted                 bool                     `bson:"deleted" json:"-"`
	NotificationPreferences *NotificationPreferences `bson:"notification_preferences,omitempty" json:"notification_preferences,omitempty"`
	CreatedAt               time.Time                `bson:"created_at" json:"created_at"`
}

// Wants reports whether the user accepts notifications of the given kind.
// Users without stored preferences get everything.
func (u *User) Wants(kind NotificationKind) bool {
	if u.NotificationPreferences == nil {
		return true
	}
	switch kind {
	case NotificationNewInquiry:
		return u.NotificationPreferences.Enquiry
	case NotificationModerationDecision:
		return u.NotificationPreferences.Moderation
	}
	return true
}
