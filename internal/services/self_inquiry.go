package services

import (
	"strings"

	"greendrake/marketdesk/internal/models"
)

// isSelfInquiry reports whether sender is the owner of listing. Account ids
// decide when both sides have one. Otherwise the sender's name and email are
// compared with the listing's contact details, so two people sharing a name
// are treated as the same party.
func isSelfInquiry(listing *models.Listing, sender models.SenderInfo) bool {
	if listing.OwnerID != nil && sender.UserID != nil {
		return *listing.OwnerID == *sender.UserID
	}
	if sameName(listing.OwnerName, sender.Name) {
		return true
	}
	return sender.Email != "" && listing.ContactEmail != "" &&
		strings.EqualFold(strings.TrimSpace(listing.ContactEmail), strings.TrimSpace(sender.Email))
}

func sameName(a, b string) bool {
	a, b = collapseSpaces(a), collapseSpaces(b)
	return a != "" && strings.EqualFold(a, b)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
