package services

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"greendrake/marketdesk/internal/models"
	"greendrake/marketdesk/internal/presence"
	"greendrake/marketdesk/internal/utils"
)

type MockListingService struct {
	mock.Mock
}

func (m *MockListingService) CreateListing(ctx context.Context, req SubmitListingRequest, actor *models.Identity) (*models.Listing, error) {
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

type MockThreadStore struct {
	mock.Mock
}

func (m *MockThreadStore) FindByID(ctx context.Context, id utils.SixID) (*models.InquiryThread, error) {
	args := m.Called(ctx, id)
	thread, _ := args.Get(0).(*models.InquiryThread)
	return thread, args.Error(1)
}

func (m *MockThreadStore) Create(ctx context.Context, thread *models.InquiryThread) error {
	args := m.Called(ctx, thread)
	if args.Error(0) == nil {
		thread.GenIDIfEmpty()
	}
	return args.Error(0)
}

func (m *MockThreadStore) FindOrCreateForUser(ctx context.Context, thread *models.InquiryThread) (*models.InquiryThread, bool, error) {
	args := m.Called(ctx, thread)
	stored, _ := args.Get(0).(*models.InquiryThread)
	return stored, args.Bool(1), args.Error(2)
}

func (m *MockThreadStore) MarkUnread(ctx context.Context, id utils.SixID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *MockThreadStore) MarkRead(ctx context.Context, id utils.SixID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockThreadStore) ListForOwner(ctx context.Context, ownerID utils.SixID, limit int) ([]models.InquiryThread, error) {
	args := m.Called(ctx, ownerID, limit)
	threads, _ := args.Get(0).([]models.InquiryThread)
	return threads, args.Error(1)
}

type MockMessageLog struct {
	mock.Mock
}

func (m *MockMessageLog) Append(ctx context.Context, msg *models.Message) error {
	args := m.Called(ctx, msg)
	if args.Error(0) == nil {
		msg.GenIDIfEmpty()
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = models.Now()
		}
	}
	return args.Error(0)
}

func (m *MockMessageLog) List(ctx context.Context, threadID utils.SixID) ([]models.Message, error) {
	args := m.Called(ctx, threadID)
	messages, _ := args.Get(0).([]models.Message)
	return messages, args.Error(1)
}

func (m *MockMessageLog) FindByID(ctx context.Context, id utils.SixID) (*models.Message, error) {
	args := m.Called(ctx, id)
	msg, _ := args.Get(0).(*models.Message)
	return msg, args.Error(1)
}

func (m *MockMessageLog) MarkRead(ctx context.Context, id utils.SixID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockMessageLog) SoftDelete(ctx context.Context, id utils.SixID) error {
	return m.Called(ctx, id).Error(0)
}

type MockDeliveryFanout struct {
	mock.Mock
}

func (m *MockDeliveryFanout) Publish(ctx context.Context, thread *models.InquiryThread, msg *models.Message) error {
	args := m.Called(ctx, thread, msg)
	if args.Error(0) == nil {
		msg.ThreadID = thread.ID
		msg.GenIDIfEmpty()
		msg.CreatedAt = models.Now()
	}
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Submit(ctx context.Context, ev models.NotificationEvent) {
	m.Called(ctx, ev)
}

type MockScheduler struct {
	mock.Mock
}

func (m *MockScheduler) Schedule(ctx context.Context, recordID utils.SixID) error {
	return m.Called(ctx, recordID).Error(0)
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

// recordingRoom is a presence.Room that remembers broadcasts.
type recordingRoom struct {
	mu     sync.Mutex
	events []presence.Event
	panics bool
}

func (r *recordingRoom) Join(string, presence.Conn) int  { return 0 }
func (r *recordingRoom) Leave(string, presence.Conn) int { return 0 }
func (r *recordingRoom) LeaveAll(presence.Conn)          {}
func (r *recordingRoom) Count(string) int                { return 0 }

func (r *recordingRoom) Broadcast(room string, ev presence.Event) int {
	if r.panics {
		panic("broadcast exploded")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return 1
}

func (r *recordingRoom) Events() []presence.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]presence.Event(nil), r.events...)
}
