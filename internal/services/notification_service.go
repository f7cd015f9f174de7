package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"greendrake/marketdesk/internal/apperrors"
	"greendrake/marketdesk/internal/config"
	"greendrake/marketdesk/internal/db"
	"greendrake/marketdesk/internal/models"
	"greendrake/marketdesk/internal/utils"
)

// INotifier accepts lifecycle events. Submit never fails the caller.
type INotifier interface {
	Submit(ctx context.Context, ev models.NotificationEvent)
}

// NotificationScheduler hands a pending record to the background worker.
type NotificationScheduler interface {
	Schedule(ctx context.Context, recordID utils.SixID) error
}

// INotificationService is the dispatcher's store and the user-facing feed.
type INotificationService interface {
	INotifier
	FindByID(ctx context.Context, id utils.SixID) (*models.NotificationRecord, error)
	RecordOutcome(ctx context.Context, id utils.SixID, status models.NotificationStatus, provider string, sendErr error) error
	ListForUser(ctx context.Context, actor *models.Identity, limit int) ([]models.NotificationRecord, error)
	Dismiss(ctx context.Context, id utils.SixID, actor *models.Identity) error
	AbandonStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

const (
	notificationsCollection = "notifications"

	submitTimeout      = 5 * time.Second
	defaultFeedLimit   = 50
	maxFeedLimit       = 200
	abandonedRecordMsg = "abandoned: no delivery attempt was recorded"
)

type notificationService struct {
	db        *mongo.Database
	cfg       *config.Config
	users     IUserService
	templates IEmailTemplateService
	scheduler NotificationScheduler
	log       *zap.Logger
}

func NewNotificationService(db *mongo.Database, cfg *config.Config, users IUserService, templates IEmailTemplateService, scheduler NotificationScheduler, log *zap.Logger) INotificationService {
	return &notificationService{
		db:        db,
		cfg:       cfg,
		users:     users,
		templates: templates,
		scheduler: scheduler,
		log:       log,
	}
}

func (s *notificationService) coll() *mongo.Collection {
	return s.db.Collection(notificationsCollection)
}

// Submit creates the record for ev and schedules its delivery. It runs
// detached from ctx's cancellation so an aborted request still leaves a
// record behind.
func (s *notificationService) Submit(ctx context.Context, ev models.NotificationEvent) {
	log := s.log.With(zap.String("kind", string(ev.Kind)), zap.Stringer("subject", ev.SubjectRef))
	if ev.RecipientID == nil {
		log.Debug("Notification has no recipient, skipping")
		return
	}
	log = log.With(zap.Stringer("user_id", *ev.RecipientID))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), submitTimeout)
	defer cancel()

	user, err := s.users.FindByID(ctx, *ev.RecipientID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			log.Debug("Notification recipient not found, skipping")
		} else {
			log.Error("Failed to resolve notification recipient", zap.Error(err))
		}
		return
	}
	if user.Email == "" || user.Suspended || !user.Wants(ev.Kind) {
		log.Debug("Recipient does not receive this notification")
		return
	}

	data := make(map[string]string, len(ev.Data)+1)
	for k, v := range ev.Data {
		data[k] = v
	}
	data["app_name"] = s.cfg.AppName

	rec := &models.NotificationRecord{
		UserID:      user.ID,
		SubjectRef:  ev.SubjectRef,
		SubjectType: ev.SubjectType,
		Kind:        ev.Kind,
		Status:      models.NotificationPending,
		Recipient:   user.Email,
		Data:        ev.Data,
		CreatedAt:   models.Now(),
	}

	subject, body, renderErr := s.templates.Render(ctx, string(ev.Kind), s.cfg.NotificationLocale, data)
	if renderErr != nil {
		log.Error("Failed to render notification", zap.Error(renderErr))
		msg := renderErr.Error()
		rec.Status = models.NotificationFailed
		rec.Error = &msg
	}
	rec.Subject, rec.Body = subject, body

	if err := db.InsertOne(ctx, s.coll(), rec); err != nil {
		log.Error("Failed to create notification record", zap.Error(err))
		return
	}
	if renderErr != nil {
		return
	}

	if err := s.scheduler.Schedule(ctx, rec.ID); err != nil {
		log.Error("Failed to schedule notification delivery", zap.Stringer("record_id", rec.ID), zap.Error(err))
		if err := s.RecordOutcome(ctx, rec.ID, models.NotificationFailed, "", fmt.Errorf("enqueue: %w", err)); err != nil {
			log.Error("Failed to mark notification as failed", zap.Stringer("record_id", rec.ID), zap.Error(err))
		}
		return
	}
	log.Debug("Notification scheduled", zap.Stringer("record_id", rec.ID))
}

func (s *notificationService) FindByID(ctx context.Context, id utils.SixID) (*models.NotificationRecord, error) {
	var rec models.NotificationRecord
	if err := s.coll().FindOne(ctx, bson.M{"_id": id}).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NotFound("notification %s", id)
		}
		return nil, fmt.Errorf("failed to find notification %s: %w", id, err)
	}
	return &rec, nil
}

// RecordOutcome moves a pending record to its terminal status. A record that
// already left pending is not touched again.
func (s *notificationService) RecordOutcome(ctx context.Context, id utils.SixID, status models.NotificationStatus, provider string, sendErr error) error {
	set := bson.M{"status": status}
	if provider != "" {
		set["provider"] = provider
	}
	if sendErr != nil {
		set["error"] = sendErr.Error()
	}
	if status == models.NotificationSent || status == models.NotificationLogged {
		set["sent_at"] = models.Now()
	}

	res, err := s.coll().UpdateOne(ctx,
		bson.M{"_id": id, "status": models.NotificationPending},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome for notification %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFound("pending notification %s", id)
	}
	return nil
}

// ListForUser returns the caller's feed, newest first.
func (s *notificationService) ListForUser(ctx context.Context, actor *models.Identity, limit int) ([]models.NotificationRecord, error) {
	if !actor.Authenticated() {
		return nil, apperrors.ErrUnauthenticated
	}
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	limit = min(limit, maxFeedLimit)

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.coll().Find(ctx, bson.M{"user_id": actor.UserID, "dismissed": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer cursor.Close(ctx)

	records := []models.NotificationRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}
	return records, nil
}

// Dismiss hides a record from its owner's feed. Records of other users are
// reported as not found.
func (s *notificationService) Dismiss(ctx context.Context, id utils.SixID, actor *models.Identity) error {
	if !actor.Authenticated() {
		return apperrors.ErrUnauthenticated
	}
	res, err := s.coll().UpdateOne(ctx,
		bson.M{"_id": id, "user_id": actor.UserID},
		bson.M{"$set": bson.M{"dismissed": true}},
	)
	if err != nil {
		return fmt.Errorf("failed to dismiss notification %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFound("notification %s", id)
	}
	return nil
}

// AbandonStale fails records that have been pending for longer than
// olderThan. Such records lost their delivery task (a crash between insert
// and enqueue, or a flushed queue) and are not attempted again.
func (s *notificationService) AbandonStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.coll().UpdateMany(ctx,
		bson.M{
			"status":     models.NotificationPending,
			"created_at": bson.M{"$lt": models.Now().Add(-olderThan)},
		},
		bson.M{"$set": bson.M{"status": models.NotificationFailed, "error": abandonedRecordMsg}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to abandon stale notifications: %w", err)
	}
	return res.ModifiedCount, nil
}
