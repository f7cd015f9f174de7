package handlers_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"greendrake/marketdesk/internal/captcha"
	"greendrake/marketdesk/internal/models"
	"greendrake/marketdesk/internal/services"
	"greendrake/marketdesk/internal/utils"
)

// --- Mocks ---

type MockInquiryService struct {
	mock.Mock
}

func (m *MockInquiryService) SubmitInquiry(ctx context.Context, req services.SubmitInquiryRequest, actor *models.Identity) (*services.InquiryResult, error) {
	args := m.Called(ctx, req, actor)
	res, _ := args.Get(0).(*services.InquiryResult)
	return res, args.Error(1)
}

func (m *MockInquiryService) OpenOrCreateThread(ctx context.Context, listingID utils.SixID, sender models.SenderInfo, actor *models.Identity) (*models.InquiryThread, bool, error) {
	args := m.Called(ctx, listingID, sender, actor)
	thread, _ := args.Get(0).(*models.InquiryThread)
	return thread, args.Bool(1), args.Error(2)
}

func (m *MockInquiryService) PostMessage(ctx context.Context, threadID utils.SixID, actor *models.Identity, body string, attachment *string) (*models.Message, error) {
	args := m.Called(ctx, threadID, actor, body, attachment)
	msg, _ := args.Get(0).(*models.Message)
	return msg, args.Error(1)
}

func (m *MockInquiryService) MarkThreadRead(ctx context.Context, threadID utils.SixID, actor *models.Identity) error {
	return m.Called(ctx, threadID, actor).Error(0)
}

func (m *MockInquiryService) MarkMessageRead(ctx context.Context, messageID utils.SixID, actor *models.Identity) error {
	return m.Called(ctx, messageID, actor).Error(0)
}

func (m *MockInquiryService) SoftDeleteMessage(ctx context.Context, messageID utils.SixID, actor *models.Identity) error {
	return m.Called(ctx, messageID, actor).Error(0)
}

func (m *MockInquiryService) ListMessages(ctx context.Context, threadID utils.SixID, actor *models.Identity) ([]models.Message, error) {
	args := m.Called(ctx, threadID, actor)
	msgs, _ := args.Get(0).([]models.Message)
	return msgs, args.Error(1)
}

func (m *MockInquiryService) GetThread(ctx context.Context, threadID utils.SixID, actor *models.Identity) (*models.InquiryThread, error) {
	args := m.Called(ctx, threadID, actor)
	thread, _ := args.Get(0).(*models.InquiryThread)
	return thread, args.Error(1)
}

func (m *MockInquiryService) AuthorizeThread(ctx context.Context, threadID utils.SixID, actor *models.Identity) (models.ParticipantRole, error) {
	args := m.Called(ctx, threadID, actor)
	role, _ := args.Get(0).(models.ParticipantRole)
	return role, args.Error(1)
}

func (m *MockInquiryService) ListInbox(ctx context.Context, actor *models.Identity, limit int) ([]models.InquiryThread, error) {
	args := m.Called(ctx, actor, limit)
	threads, _ := args.Get(0).([]models.InquiryThread)
	return threads, args.Error(1)
}

type MockListingService struct {
	mock.Mock
}

func (m *MockListingService) CreateListing(ctx context.Context, req services.SubmitListingRequest, actor *models.Identity) (*models.Listing, error) {
	args := m.Called(ctx, req, actor)
	listing, _ := args.Get(0).(*models.Listing)
	return listing, args.Error(1)
}

func (m *MockListingService) FindListingByID(ctx context.Context, id utils.SixID) (*models.Listing, error) {
	args := m.Called(ctx, id)
	listing, _ := args.Get(0).(*models.Listing)
	return listing, args.Error(1)
}

func (m *MockListingService) GetListing(ctx context.Context, id utils.SixID, actor *models.Identity) (*models.Listing, error) {
	args := m.Called(ctx, id, actor)
	listing, _ := args.Get(0).(*models.Listing)
	return listing, args.Error(1)
}

func (m *MockListingService) ListApproved(ctx context.Context, limit, skip int) ([]models.Listing, error) {
	args := m.Called(ctx, limit, skip)
	listings, _ := args.Get(0).([]models.Listing)
	return listings, args.Error(1)
}

func (m *MockListingService) ListByStatus(ctx context.Context, status models.ListingStatus, limit, skip int) ([]models.Listing, error) {
	args := m.Called(ctx, status, limit, skip)
	listings, _ := args.Get(0).([]models.Listing)
	return listings, args.Error(1)
}

func (m *MockListingService) Stats(ctx context.Context) (*models.ListingStats, error) {
	args := m.Called(ctx)
	stats, _ := args.Get(0).(*models.ListingStats)
	return stats, args.Error(1)
}

func (m *MockListingService) AuthorizeEdit(ctx context.Context, id utils.SixID, actor *models.Identity) (*models.Listing, error) {
	args := m.Called(ctx, id, actor)
	listing, _ := args.Get(0).(*models.Listing)
	return listing, args.Error(1)
}

func (m *MockListingService) AddImage(ctx context.Context, id utils.SixID, actor *models.Identity, key string) (*models.Listing, error) {
	args := m.Called(ctx, id, actor, key)
	listing, _ := args.Get(0).(*models.Listing)
	return listing, args.Error(1)
}

type MockModerationService struct {
	mock.Mock
}

func (m *MockModerationService) Approve(ctx context.Context, listingID utils.SixID, actor *models.Identity) (*models.Listing, error) {
	args := m.Called(ctx, listingID, actor)
	listing, _ := args.Get(0).(*models.Listing)
	return listing, args.Error(1)
}

func (m *MockModerationService) Reject(ctx context.Context, listingID utils.SixID, actor *models.Identity, reason *string) (*models.Listing, error) {
	args := m.Called(ctx, listingID, actor, reason)
	listing, _ := args.Get(0).(*models.Listing)
	return listing, args.Error(1)
}

func (m *MockModerationService) Delete(ctx context.Context, listingID utils.SixID, actor *models.Identity) error {
	return m.Called(ctx, listingID, actor).Error(0)
}

type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) Submit(ctx context.Context, ev models.NotificationEvent) {
	m.Called(ctx, ev)
}

func (m *MockNotificationService) FindByID(ctx context.Context, id utils.SixID) (*models.NotificationRecord, error) {
	args := m.Called(ctx, id)
	rec, _ := args.Get(0).(*models.NotificationRecord)
	return rec, args.Error(1)
}

func (m *MockNotificationService) RecordOutcome(ctx context.Context, id utils.SixID, status models.NotificationStatus, provider string, sendErr error) error {
	return m.Called(ctx, id, status, provider, sendErr).Error(0)
}

func (m *MockNotificationService) ListForUser(ctx context.Context, actor *models.Identity, limit int) ([]models.NotificationRecord, error) {
	args := m.Called(ctx, actor, limit)
	recs, _ := args.Get(0).([]models.NotificationRecord)
	return recs, args.Error(1)
}

func (m *MockNotificationService) Dismiss(ctx context.Context, id utils.SixID, actor *models.Identity) error {
	return m.Called(ctx, id, actor).Error(0)
}

func (m *MockNotificationService) AbandonStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

type MockObjectStorage struct {
	mock.Mock
}

func (m *MockObjectStorage) PresignAttachmentPut(ctx context.Context, threadID utils.SixID, filename, contentType string) (string, string, error) {
	args := m.Called(ctx, threadID, filename, contentType)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockObjectStorage) PresignListingImagePut(ctx context.Context, listingID utils.SixID, filename, contentType string) (string, string, error) {
	args := m.Called(ctx, listingID, filename, contentType)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockObjectStorage) DeleteObjects(ctx context.Context, keys []string) error {
	return m.Called(ctx, keys).Error(0)
}

type MockTurnstileVerifier struct {
	mock.Mock
}

func (m *MockTurnstileVerifier) Verify(ctx context.Context, challenge string, who captcha.Submitter) (bool, error) {
	args := m.Called(ctx, challenge, who)
	return args.Bool(0), args.Error(1)
}

func (m *MockTurnstileVerifier) IssuePass(who captcha.Submitter, ttl time.Duration) (string, error) {
	args := m.Called(who, ttl)
	return args.String(0), args.Error(1)
}

func (m *MockTurnstileVerifier) CheckPass(pass string, who captcha.Submitter) bool {
	args := m.Called(pass, who)
	return args.Bool(0)
}
