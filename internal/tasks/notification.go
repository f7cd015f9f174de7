package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"greendrake/marketdesk/internal/apperrors"
	"greendrake/marketdesk/internal/email"
	"greendrake/marketdesk/internal/models"
	"greendrake/marketdesk/internal/utils"
)

const defaultSendTimeout = 10 * time.Second

// NotificationRecords is what the worker needs from the notification store.
type NotificationRecords interface {
	FindByID(ctx context.Context, id utils.SixID) (*models.NotificationRecord, error)
	RecordOutcome(ctx context.Context, id utils.SixID, status models.NotificationStatus, provider string, sendErr error) error
	AbandonStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// NotificationTaskPayload identifies the record to deliver.
type NotificationTaskPayload struct {
	RecordID utils.SixID `json:"record_id"`
}

// NewNotificationDeliveryTask builds the delivery task for a record. It is
// attempted exactly once.
func NewNotificationDeliveryTask(recordID utils.SixID) (*asynq.Task, error) {
	payload, err := json.Marshal(NotificationTaskPayload{RecordID: recordID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeNotificationDelivery, payload,
		asynq.Queue(QueueNotifications),
		asynq.MaxRetry(0),
	), nil
}

// IAsynqClient is the part of *asynq.Client the scheduler uses.
type IAsynqClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NotificationScheduler enqueues delivery tasks on behalf of the
// notification service.
type NotificationScheduler struct {
	client IAsynqClient
}

func NewNotificationScheduler(client IAsynqClient) *NotificationScheduler {
	return &NotificationScheduler{client: client}
}

func (s *NotificationScheduler) Schedule(ctx context.Context, recordID utils.SixID) error {
	task, err := NewNotificationDeliveryTask(recordID)
	if err != nil {
		return err
	}
	_, err = s.client.EnqueueContext(ctx, task)
	return err
}

// HandleNotificationDeliveryTask makes the single delivery attempt for a
// record and stores the outcome. Transport failures are recorded, never
// returned, so asynq does not retry them.
func (p *TaskProcessor) HandleNotificationDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload NotificationTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal notification task payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.RecordID.IsZero() {
		return fmt.Errorf("notification task without record id: %w", asynq.SkipRetry)
	}
	log := p.log.With(zap.Stringer("record_id", payload.RecordID))

	rec, err := p.records.FindByID(ctx, payload.RecordID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			log.Warn("Notification record vanished before delivery")
			return fmt.Errorf("notification record %s not found: %w", payload.RecordID, asynq.SkipRetry)
		}
		return err
	}
	if rec.Status != models.NotificationPending {
		log.Info("Notification already handled, skipping", zap.String("status", string(rec.Status)))
		return nil
	}
	log = log.With(zap.String("kind", string(rec.Kind)))

	msg := email.Message{
		From:    p.cfg.SmtpFromAddress,
		To:      rec.Recipient,
		Subject: rec.Subject,
		Body:    rec.Body,
		Kind:    string(rec.Kind),
	}
	raw := msg.Raw()
	to := []string{rec.Recipient}

	if !p.sender.Configured() {
		_ = p.logSender.Send(ctx, to, rec.Subject, raw)
		p.record(ctx, log, rec.ID, models.NotificationLogged, "log", nil)
		return nil
	}

	timeout := p.cfg.NotificationSendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	provider, err := p.sender.SendVia(sendCtx, to, rec.Subject, raw)
	if err != nil {
		log.Warn("Notification delivery failed", zap.Error(err))
		p.record(ctx, log, rec.ID, models.NotificationFailed, "", fmt.Errorf("%w: %v", apperrors.ErrTransientTransport, err))
		return nil
	}

	log.Info("Notification delivered", zap.String("provider", provider))
	p.record(ctx, log, rec.ID, models.NotificationSent, provider, nil)
	return nil
}

func (p *TaskProcessor) record(ctx context.Context, log *zap.Logger, id utils.SixID, status models.NotificationStatus, provider string, sendErr error) {
	if err := p.records.RecordOutcome(context.WithoutCancel(ctx), id, status, provider, sendErr); err != nil {
		log.Error("Failed to record notification outcome", zap.String("status", string(status)), zap.Error(err))
	}
}

// HandleNotificationSweepTask fails records whose delivery task was lost.
func (p *TaskProcessor) HandleNotificationSweepTask(ctx context.Context, t *asynq.Task) error {
	if p.cfg.NotificationStaleAfter <= 0 {
		return nil
	}
	n, err := p.records.AbandonStale(ctx, p.cfg.NotificationStaleAfter)
	if err != nil {
		return err
	}
	if n > 0 {
		p.log.Warn("Abandoned stale notifications", zap.Int64("count", n))
	}
	return nil
}
