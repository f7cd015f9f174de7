package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"greendrake/marketdesk/internal/apperrors"
	"greendrake/marketdesk/internal/config"
	"greendrake/marketdesk/internal/models"
	"greendrake/marketdesk/internal/storage"
	"greendrake/marketdesk/internal/utils"
)

// IModerationService drives the listing status machine. Every method is
// admin only.
type IModerationService interface {
	Approve(ctx context.Context, listingID utils.SixID, actor *models.Identity) (*models.Listing, error)
	Reject(ctx context.Context, listingID utils.SixID, actor *models.Identity, reason *string) (*models.Listing, error)
	Delete(ctx context.Context, listingID utils.SixID, actor *models.Identity) error
}

const maxReasonLength = 2000

type moderationService struct {
	db       *mongo.Database
	cfg      *config.Config
	listings IListingService
	notifier INotifier
	storage  storage.IObjectStorage
	log      *zap.Logger
}

func NewModerationService(db *mongo.Database, cfg *config.Config, listings IListingService, notifier INotifier, objects storage.IObjectStorage, log *zap.Logger) IModerationService {
	return &moderationService{
		db:       db,
		cfg:      cfg,
		listings: listings,
		notifier: notifier,
		storage:  objects,
		log:      log,
	}
}

func requireAdmin(actor *models.Identity) error {
	if !actor.Authenticated() {
		return apperrors.ErrUnauthenticated
	}
	if !actor.IsAdmin() {
		return apperrors.Forbidden("admin role required")
	}
	return nil
}

// Approve moves a pending or rejected listing to approved and clears any
// rejection reason. Approving an approved listing changes nothing and
// notifies nobody.
func (s *moderationService) Approve(ctx context.Context, listingID utils.SixID, actor *models.Identity) (*models.Listing, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	now := models.Now()
	filter := bson.M{
		"_id":    listingID,
		"status": bson.M{"$in": []models.ListingStatus{models.ListingStatusPending, models.ListingStatusRejected}},
	}
	update := bson.M{
		"$set": bson.M{
			"status":       models.ListingStatusApproved,
			"moderated_by": actor.UserID,
			"moderated_at": now,
			"updated_at":   now,
		},
		"$unset": bson.M{"rejection_reason": ""},
	}

	listing, err := s.transition(ctx, filter, update)
	if errors.Is(err, mongo.ErrNoDocuments) {
		existing, ferr := s.listings.FindListingByID(ctx, listingID)
		if ferr != nil {
			return nil, ferr
		}
		if existing.Status == models.ListingStatusApproved {
			return existing, nil
		}
		// The listing changed status between the two reads.
		return nil, apperrors.InvalidOperation("listing %s cannot be approved from status %s", listingID, existing.Status)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("Listing approved", zap.Stringer("listing_id", listingID), zap.Stringer("admin_id", actor.UserID))
	s.notifyDecision(ctx, listing)
	return listing, nil
}

// Reject marks a listing rejected with an optional reason. It is allowed from
// any status, and rejecting again replaces the reason.
func (s *moderationService) Reject(ctx context.Context, listingID utils.SixID, actor *models.Identity, reason *string) (*models.Listing, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if reason != nil {
		trimmed := strings.TrimSpace(*reason)
		if len(trimmed) > maxReasonLength {
			return nil, apperrors.Validation("reason must be at most %d characters", maxReasonLength)
		}
		reason = &trimmed
		if trimmed == "" {
			reason = nil
		}
	}

	now := models.Now()
	set := bson.M{
		"status":       models.ListingStatusRejected,
		"moderated_by": actor.UserID,
		"moderated_at": now,
		"updated_at":   now,
	}
	update := bson.M{"$set": set}
	if reason != nil {
		set["rejection_reason"] = *reason
	} else {
		update["$unset"] = bson.M{"rejection_reason": ""}
	}

	listing, err := s.transition(ctx, bson.M{"_id": listingID}, update)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NotFound("listing %s", listingID)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("Listing rejected", zap.Stringer("listing_id", listingID), zap.Stringer("admin_id", actor.UserID))
	s.notifyDecision(ctx, listing)
	return listing, nil
}

func (s *moderationService) transition(ctx context.Context, filter, update bson.M) (*models.Listing, error) {
	var listing models.Listing
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := s.db.Collection(listingsCollection).FindOneAndUpdate(ctx, filter, update, opts).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update listing: %w", err)
	}
	return &listing, nil
}

// Delete removes a listing together with its threads, their messages and
// the notification records about any of them, in one transaction. Stored
// objects are removed after the commit; failures there are only logged.
func (s *moderationService) Delete(ctx context.Context, listingID utils.SixID, actor *models.Identity) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}

	session, err := s.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	var (
		listing     models.Listing
		attachments []storedAttachment
	)
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		listing = models.Listing{}
		attachments = nil

		if err := s.db.Collection(listingsCollection).FindOneAndDelete(sc, bson.M{"_id": listingID}).Decode(&listing); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, apperrors.NotFound("listing %s", listingID)
			}
			return nil, fmt.Errorf("delete listing: %w", err)
		}

		threadIDs, err := s.threadIDs(sc, listingID)
		if err != nil {
			return nil, err
		}
		if len(threadIDs) > 0 {
			attachments, err = s.attachmentKeys(sc, threadIDs)
			if err != nil {
				return nil, err
			}
			if _, err := s.db.Collection(messagesCollection).DeleteMany(sc, bson.M{"thread_id": bson.M{"$in": threadIDs}}); err != nil {
				return nil, fmt.Errorf("delete messages: %w", err)
			}
			if _, err := s.db.Collection(threadsCollection).DeleteMany(sc, bson.M{"listing_id": listingID}); err != nil {
				return nil, fmt.Errorf("delete threads: %w", err)
			}
		}

		subjects := append([]utils.SixID{listingID}, threadIDs...)
		if _, err := s.db.Collection(notificationsCollection).DeleteMany(sc, bson.M{"subject_ref": bson.M{"$in": subjects}}); err != nil {
			return nil, fmt.Errorf("delete notifications: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	s.log.Info("Listing deleted",
		zap.Stringer("listing_id", listingID),
		zap.Stringer("admin_id", actor.UserID),
		zap.Int("attachments", len(attachments)),
	)

	keys := ownedObjectKeys(listingID, listing.Images, attachments)
	if dropped := len(listing.Images) + len(attachments) - len(keys); dropped > 0 {
		s.log.Warn("Skipping stored keys outside the listing's prefixes",
			zap.Stringer("listing_id", listingID),
			zap.Int("skipped", dropped),
		)
	}
	if len(keys) > 0 {
		if err := s.storage.DeleteObjects(context.WithoutCancel(ctx), keys); err != nil {
			s.log.Warn("Failed to delete stored objects of deleted listing",
				zap.Stringer("listing_id", listingID),
				zap.Strings("keys", keys),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *moderationService) threadIDs(ctx context.Context, listingID utils.SixID) ([]utils.SixID, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cursor, err := s.db.Collection(threadsCollection).Find(ctx, bson.M{"listing_id": listingID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find threads: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID utils.SixID `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode threads: %w", err)
	}
	ids := make([]utils.SixID, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	return ids, nil
}

type storedAttachment struct {
	ThreadID utils.SixID `bson:"thread_id"`
	Key      string      `bson:"attachment"`
}

func (s *moderationService) attachmentKeys(ctx context.Context, threadIDs []utils.SixID) ([]storedAttachment, error) {
	filter := bson.M{"thread_id": bson.M{"$in": threadIDs}, "attachment": bson.M{"$exists": true}}
	opts := options.Find().SetProjection(bson.M{"thread_id": 1, "attachment": 1})
	cursor, err := s.db.Collection(messagesCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find attachments: %w", err)
	}
	defer cursor.Close(ctx)

	rows := []storedAttachment{}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode attachments: %w", err)
	}
	return rows, nil
}

// ownedObjectKeys keeps the keys this listing is allowed to remove from the
// bucket: images under its own prefix and attachments under their thread's.
func ownedObjectKeys(listingID utils.SixID, images []string, attachments []storedAttachment) []string {
	keys := make([]string, 0, len(images)+len(attachments))
	for _, key := range images {
		if storage.IsListingImage(listingID, key) {
			keys = append(keys, key)
		}
	}
	for _, a := range attachments {
		if storage.IsThreadAttachment(a.ThreadID, a.Key) {
			keys = append(keys, a.Key)
		}
	}
	return keys
}

func (s *moderationService) notifyDecision(ctx context.Context, listing *models.Listing) {
	reason := ""
	if listing.RejectionReason != nil {
		reason = *listing.RejectionReason
	}
	s.notifier.Submit(ctx, models.NotificationEvent{
		Kind:        models.NotificationModerationDecision,
		RecipientID: listing.OwnerID,
		SubjectRef:  listing.ID,
		SubjectType: "listing",
		Data: map[string]string{
			"listing_id":    listing.ID.String(),
			"listing_title": listing.Title,
			"decision":      string(listing.Status),
			"reason":        reason,
			"listing_url":   fmt.Sprintf("%s/listing/%s", s.cfg.PublicBaseURL, listing.ID),
		},
	})
}
