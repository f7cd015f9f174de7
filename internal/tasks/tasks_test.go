package tasks_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"greendrake/marketdesk/internal/apperrors"
	"greendrake/marketdesk/internal/config"
	"greendrake/marketdesk/internal/email"
	"greendrake/marketdesk/internal/models"
	"greendrake/marketdesk/internal/tasks"
	"greendrake/marketdesk/internal/utils"
)

// --- Mocks ---

type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	args := m.Called(ctx, to, subject, rawMessage)
	return args.Error(0)
}

type MockNotificationRecords struct {
	mock.Mock
}

func (m *MockNotificationRecords) FindByID(ctx context.Context, id utils.SixID) (*models.NotificationRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.NotificationRecord), args.Error(1)
}

func (m *MockNotificationRecords) RecordOutcome(ctx context.Context, id utils.SixID, status models.NotificationStatus, provider string, sendErr error) error {
	args := m.Called(ctx, id, status, provider, sendErr)
	return args.Error(0)
}

func (m *MockNotificationRecords) AbandonStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

type MockAsynqClient struct {
	mock.Mock
}

func (m *MockAsynqClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task)
	info, _ := args.Get(0).(*asynq.TaskInfo)
	return info, args.Error(1)
}

// --- Helpers ---

func pendingRecord() *models.NotificationRecord {
	return &models.NotificationRecord{
		Base:      models.Base{ID: utils.NewSixID()},
		Kind:      models.NotificationNewInquiry,
		Status:    models.NotificationPending,
		Recipient: "owner@example.com",
		Subject:   "New inquiry about \"Canoe\"",
		Body:      "Bob asked: still available?",
	}
}

func deliveryTask(t *testing.T, id utils.SixID) *asynq.Task {
	task, err := tasks.NewNotificationDeliveryTask(id)
	require.NoError(t, err)
	return task
}

func newProcessor(sender tasks.Dispatcher, records tasks.NotificationRecords) *tasks.TaskProcessor {
	cfg := &config.Config{
		SmtpFromAddress:         "noreply@market.example",
		NotificationSendTimeout: time.Second,
		NotificationStaleAfter:  time.Hour,
	}
	return tasks.NewTaskProcessor(cfg, sender, records, zap.NewNop())
}

func rawHas(parts ...string) interface{} {
	return mock.MatchedBy(func(raw []byte) bool {
		for _, p := range parts {
			if !strings.Contains(string(raw), p) {
				return false
			}
		}
		return true
	})
}

// --- Tests ---

func TestHandleNotificationDelivery_PrimarySucceeds(t *testing.T) {
	primary, secondary := new(MockEmailSender), new(MockEmailSender)
	chain := email.NewFallbackSender(zap.NewNop()).Add("smtp", primary).Add("file", secondary)
	records := new(MockNotificationRecords)
	rec := pendingRecord()

	records.On("FindByID", mock.Anything, rec.ID).Return(rec, nil)
	primary.On("Send", mock.Anything, []string{"owner@example.com"}, rec.Subject,
		rawHas("To: owner@example.com", "From: noreply@market.example", "X-Notification-Kind: new-inquiry", "Bob asked")).
		Return(nil)
	records.On("RecordOutcome", mock.Anything, rec.ID, models.NotificationSent, "smtp", nil).Return(nil)

	err := newProcessor(chain, records).HandleNotificationDeliveryTask(context.Background(), deliveryTask(t, rec.ID))
	assert.NoError(t, err)

	primary.AssertExpectations(t)
	secondary.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	records.AssertExpectations(t)
}

func TestHandleNotificationDelivery_FallsBackToSecondary(t *testing.T) {
	primary, secondary := new(MockEmailSender), new(MockEmailSender)
	chain := email.NewFallbackSender(zap.NewNop()).Add("smtp", primary).Add("file", secondary)
	records := new(MockNotificationRecords)
	rec := pendingRecord()

	records.On("FindByID", mock.Anything, rec.ID).Return(rec, nil)
	primary.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("connection refused"))
	secondary.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	records.On("RecordOutcome", mock.Anything, rec.ID, models.NotificationSent, "file", nil).Return(nil)

	err := newProcessor(chain, records).HandleNotificationDeliveryTask(context.Background(), deliveryTask(t, rec.ID))
	assert.NoError(t, err)
	records.AssertExpectations(t)
}

func TestHandleNotificationDelivery_AllTransportsFail(t *testing.T) {
	primary, secondary := new(MockEmailSender), new(MockEmailSender)
	chain := email.NewFallbackSender(zap.NewNop()).Add("smtp", primary).Add("file", secondary)
	records := new(MockNotificationRecords)
	rec := pendingRecord()

	records.On("FindByID", mock.Anything, rec.ID).Return(rec, nil)
	primary.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("connection refused"))
	secondary.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("disk full"))
	records.On("RecordOutcome", mock.Anything, rec.ID, models.NotificationFailed, "", mock.MatchedBy(func(err error) bool {
		return errors.Is(err, apperrors.ErrTransientTransport) &&
			strings.Contains(err.Error(), "connection refused") &&
			strings.Contains(err.Error(), "disk full")
	})).Return(nil)

	err := newProcessor(chain, records).HandleNotificationDeliveryTask(context.Background(), deliveryTask(t, rec.ID))
	assert.NoError(t, err, "failures are recorded, not retried")
	records.AssertExpectations(t)
	primary.AssertNumberOfCalls(t, "Send", 1)
}

func TestHandleNotificationDelivery_TimeoutIsAFailure(t *testing.T) {
	slow := new(MockEmailSender)
	chain := email.NewFallbackSender(zap.NewNop()).Add("smtp", slow)
	records := new(MockNotificationRecords)
	rec := pendingRecord()

	records.On("FindByID", mock.Anything, rec.ID).Return(rec, nil)
	slow.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(context.DeadlineExceeded)
	records.On("RecordOutcome", mock.Anything, rec.ID, models.NotificationFailed, "", mock.MatchedBy(func(err error) bool {
		return errors.Is(err, apperrors.ErrTransientTransport)
	})).Return(nil)

	start := time.Now()
	err := newProcessor(chain, records).HandleNotificationDeliveryTask(context.Background(), deliveryTask(t, rec.ID))
	assert.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	records.AssertExpectations(t)
}

func TestHandleNotificationDelivery_NoTransportIsLogged(t *testing.T) {
	records := new(MockNotificationRecords)
	rec := pendingRecord()

	records.On("FindByID", mock.Anything, rec.ID).Return(rec, nil)
	records.On("RecordOutcome", mock.Anything, rec.ID, models.NotificationLogged, "log", nil).Return(nil)

	err := newProcessor(email.NewFallbackSender(zap.NewNop()), records).
		HandleNotificationDeliveryTask(context.Background(), deliveryTask(t, rec.ID))
	assert.NoError(t, err)
	records.AssertExpectations(t)
}

func TestHandleNotificationDelivery_SkipsHandledRecords(t *testing.T) {
	primary := new(MockEmailSender)
	records := new(MockNotificationRecords)
	rec := pendingRecord()
	rec.Status = models.NotificationSent

	records.On("FindByID", mock.Anything, rec.ID).Return(rec, nil)

	err := newProcessor(email.NewFallbackSender(zap.NewNop()).Add("smtp", primary), records).
		HandleNotificationDeliveryTask(context.Background(), deliveryTask(t, rec.ID))
	assert.NoError(t, err)
	primary.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	records.AssertNotCalled(t, "RecordOutcome", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleNotificationDelivery_BadPayloads(t *testing.T) {
	records := new(MockNotificationRecords)
	p := newProcessor(email.NewFallbackSender(zap.NewNop()), records)
	missing := utils.NewSixID()
	records.On("FindByID", mock.Anything, missing).Return(nil, apperrors.NotFound("notification"))

	for _, task := range []*asynq.Task{
		asynq.NewTask(tasks.TypeNotificationDelivery, []byte("{not json")),
		asynq.NewTask(tasks.TypeNotificationDelivery, []byte(`{}`)),
		deliveryTask(t, missing),
	} {
		err := p.HandleNotificationDeliveryTask(context.Background(), task)
		assert.True(t, errors.Is(err, asynq.SkipRetry), "expected SkipRetry, got %v", err)
	}
}

func TestNotificationScheduler_EnqueuesSingleAttempt(t *testing.T) {
	client := new(MockAsynqClient)
	id := utils.NewSixID()

	client.On("EnqueueContext", mock.Anything, mock.MatchedBy(func(task *asynq.Task) bool {
		return task.Type() == tasks.TypeNotificationDelivery &&
			strings.Contains(string(task.Payload()), id.String())
	})).Return(&asynq.TaskInfo{ID: "1"}, nil).Once()
	client.On("EnqueueContext", mock.Anything, mock.Anything).Return(nil, errors.New("redis down")).Once()

	s := tasks.NewNotificationScheduler(client)
	assert.NoError(t, s.Schedule(context.Background(), id))
	assert.EqualError(t, s.Schedule(context.Background(), id), "redis down")
}

func TestHandleNotificationSweep(t *testing.T) {
	records := new(MockNotificationRecords)
	records.On("AbandonStale", mock.Anything, time.Hour).Return(int64(2), nil)

	err := newProcessor(email.NewFallbackSender(zap.NewNop()), records).
		HandleNotificationSweepTask(context.Background(), asynq.NewTask(tasks.TypeNotificationSweep, nil))
	assert.NoError(t, err)
	records.AssertExpectations(t)
}
