package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"greendrake/marketdesk/internal/apperrors"
	"greendrake/marketdesk/internal/config"
	"greendrake/marketdesk/internal/models"
	"greendrake/marketdesk/internal/storage"
	"greendrake/marketdesk/internal/utils"
)

// SubmitInquiryRequest is the public inquiry form.
type SubmitInquiryRequest struct {
	ListingID     utils.SixID `json:"listingId"`
	SenderName    string      `json:"senderName"`
	SenderContact string      `json:"senderContact"`
	Message       string      `json:"message"`
	Phone         string      `json:"phone,omitempty"`
	Company       string      `json:"company,omitempty"`
}

// InquiryResult is returned by SubmitInquiry. SenderKey is only set for a
// new anonymous thread and is never shown again.
type InquiryResult struct {
	Thread    *models.InquiryThread `json:"thread"`
	Message   *models.Message       `json:"message"`
	Created   bool                  `json:"created"`
	SenderKey string                `json:"sender_key,omitempty"`
}

// IInquiryService defines the interface for inquiry threads and their messages.
type IInquiryService interface {
	SubmitInquiry(ctx context.Context, req SubmitInquiryRequest, actor *models.Identity) (*InquiryResult, error)
	OpenOrCreateThread(ctx context.Context, listingID utils.SixID, sender models.SenderInfo, actor *models.Identity) (*models.InquiryThread, bool, error)
	PostMessage(ctx context.Context, threadID utils.SixID, actor *models.Identity, body string, attachment *string) (*models.Message, error)
	MarkThreadRead(ctx context.Context, threadID utils.SixID, actor *models.Identity) error
	MarkMessageRead(ctx context.Context, messageID utils.SixID, actor *models.Identity) error
	SoftDeleteMessage(ctx context.Context, messageID utils.SixID, actor *models.Identity) error
	ListMessages(ctx context.Context, threadID utils.SixID, actor *models.Identity) ([]models.Message, error)
	GetThread(ctx context.Context, threadID utils.SixID, actor *models.Identity) (*models.InquiryThread, error)
	AuthorizeThread(ctx context.Context, threadID utils.SixID, actor *models.Identity) (models.ParticipantRole, error)
	ListInbox(ctx context.Context, actor *models.Identity, limit int) ([]models.InquiryThread, error)
}

const (
	maxNameLength    = 200
	maxContactLength = 320
	inquiryPreview   = 500
)

type inquiryService struct {
	cfg      *config.Config
	listings IListingService
	threads  IThreadStore
	messages IMessageLog
	fanout   IDeliveryFanout
	notifier INotifier
	log      *zap.Logger
}

func NewInquiryService(cfg *config.Config, listings IListingService, threads IThreadStore, messages IMessageLog, fanout IDeliveryFanout, notifier INotifier, log *zap.Logger) IInquiryService {
	return &inquiryService{
		cfg:      cfg,
		listings: listings,
		threads:  threads,
		messages: messages,
		fanout:   fanout,
		notifier: notifier,
		log:      log,
	}
}

// SubmitInquiry opens (or reuses) the sender's thread on a listing and posts
// the first message into it. The owner is notified only when a new thread
// was created.
func (s *inquiryService) SubmitInquiry(ctx context.Context, req SubmitInquiryRequest, actor *models.Identity) (*InquiryResult, error) {
	name := strings.TrimSpace(req.SenderName)
	contact := strings.TrimSpace(req.SenderContact)
	body := strings.TrimSpace(req.Message)

	switch {
	case req.ListingID.IsZero():
		return nil, apperrors.Validation("listingId is required")
	case name == "":
		return nil, apperrors.Validation("senderName is required")
	case len(name) > maxNameLength:
		return nil, apperrors.Validation("senderName must be at most %d characters", maxNameLength)
	case contact == "":
		return nil, apperrors.Validation("senderContact is required")
	case len(contact) > maxContactLength:
		return nil, apperrors.Validation("senderContact must be at most %d characters", maxContactLength)
	}
	if err := s.validateBody(body); err != nil {
		return nil, err
	}

	sender := models.SenderInfo{
		Name:    name,
		Phone:   strings.TrimSpace(req.Phone),
		Company: strings.TrimSpace(req.Company),
	}
	if strings.Contains(contact, "@") {
		addr, err := mail.ParseAddress(contact)
		if err != nil {
			return nil, apperrors.Validation("senderContact is not a valid email address")
		}
		sender.Email = addr.Address
	} else if sender.Phone == "" {
		sender.Phone = contact
	}

	thread, created, err := s.OpenOrCreateThread(ctx, req.ListingID, sender, actor)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		Sender: models.SenderRef{
			UserID: thread.Sender.UserID,
			Name:   sender.Name,
			Email:  sender.Email,
			Role:   models.ParticipantSender,
		},
		Body: body,
	}
	if err := s.fanout.Publish(ctx, thread, msg); err != nil {
		return nil, err
	}

	result := &InquiryResult{Thread: thread, Message: msg, Created: created}
	if created {
		if thread.Sender.UserID == nil {
			result.SenderKey = thread.SenderKey
		}
		s.notifyNewInquiry(ctx, thread, msg)
	}
	return result, nil
}

// OpenOrCreateThread resolves the thread a sender writes to. Authenticated
// senders have one thread per listing; anonymous senders start a new thread
// on every submission and receive its sender key.
func (s *inquiryService) OpenOrCreateThread(ctx context.Context, listingID utils.SixID, sender models.SenderInfo, actor *models.Identity) (*models.InquiryThread, bool, error) {
	listing, err := s.listings.FindListingByID(ctx, listingID)
	if err != nil {
		return nil, false, err
	}
	if listing.Status != models.ListingStatusApproved {
		return nil, false, apperrors.NotFound("listing %s", listingID)
	}

	if actor.Authenticated() {
		sender.UserID = actor.UserID.Ptr()
	} else {
		sender.UserID = nil
	}
	if isSelfInquiry(listing, sender) {
		return nil, false, apperrors.InvalidOperation("cannot send an inquiry about your own listing")
	}

	now := models.Now()
	thread := &models.InquiryThread{
		ListingID:    listing.ID,
		ListingTitle: listing.Title,
		OwnerID:      listing.OwnerID,
		Sender:       sender,
		IsRead:       false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if sender.UserID != nil {
		return s.threads.FindOrCreateForUser(ctx, thread)
	}

	thread.SenderKey = uuid.NewString()
	if err := s.threads.Create(ctx, thread); err != nil {
		return nil, false, err
	}
	return thread, true, nil
}

func (s *inquiryService) PostMessage(ctx context.Context, threadID utils.SixID, actor *models.Identity, body string, attachment *string) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if err := s.validateBody(body); err != nil {
		return nil, err
	}

	thread, role, err := s.authorize(ctx, threadID, actor)
	if err != nil {
		return nil, err
	}

	if attachment != nil {
		key := strings.TrimSpace(*attachment)
		switch {
		case key == "":
			attachment = nil
		case !storage.IsThreadAttachment(thread.ID, key):
			return nil, apperrors.Validation("attachment does not belong to this thread")
		default:
			attachment = &key
		}
	}

	msg := &models.Message{
		Sender:     s.senderRef(thread, role, actor),
		Body:       body,
		Attachment: attachment,
	}
	if err := s.fanout.Publish(ctx, thread, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// MarkThreadRead clears the unread flag. Only the listing side reads the
// flag, so only the owner and admins may clear it.
func (s *inquiryService) MarkThreadRead(ctx context.Context, threadID utils.SixID, actor *models.Identity) error {
	_, role, err := s.authorize(ctx, threadID, actor)
	if err != nil {
		return err
	}
	if role != models.ParticipantOwner && role != models.ParticipantAdmin {
		return apperrors.Forbidden("only the listing owner can mark the thread read")
	}
	return s.threads.MarkRead(ctx, threadID)
}

// MarkMessageRead sets the read flag. Like SoftDeleteMessage it succeeds
// without a write when there is nothing to change, which includes messages
// that were already deleted.
func (s *inquiryService) MarkMessageRead(ctx context.Context, messageID utils.SixID, actor *models.Identity) error {
	msg, _, err := s.authorizeMessage(ctx, messageID, actor)
	if err != nil {
		return err
	}
	if msg.Deleted || msg.IsRead {
		return nil
	}
	return s.messages.MarkRead(ctx, messageID)
}

// SoftDeleteMessage hides a message from every read path. Senders may only
// delete what they wrote themselves.
func (s *inquiryService) SoftDeleteMessage(ctx context.Context, messageID utils.SixID, actor *models.Identity) error {
	msg, role, err := s.authorizeMessage(ctx, messageID, actor)
	if err != nil {
		return err
	}
	if role == models.ParticipantSender && msg.Sender.Role != models.ParticipantSender {
		return apperrors.Forbidden("only the author can delete this message")
	}
	if msg.Deleted {
		return nil
	}
	return s.messages.SoftDelete(ctx, messageID)
}

func (s *inquiryService) ListMessages(ctx context.Context, threadID utils.SixID, actor *models.Identity) ([]models.Message, error) {
	if _, _, err := s.authorize(ctx, threadID, actor); err != nil {
		return nil, err
	}
	return s.messages.List(ctx, threadID)
}

func (s *inquiryService) GetThread(ctx context.Context, threadID utils.SixID, actor *models.Identity) (*models.InquiryThread, error) {
	thread, _, err := s.authorize(ctx, threadID, actor)
	if err != nil {
		return nil, err
	}
	return thread, nil
}

func (s *inquiryService) AuthorizeThread(ctx context.Context, threadID utils.SixID, actor *models.Identity) (models.ParticipantRole, error) {
	_, role, err := s.authorize(ctx, threadID, actor)
	return role, err
}

// ListInbox returns the threads on the caller's listings.
func (s *inquiryService) ListInbox(ctx context.Context, actor *models.Identity, limit int) ([]models.InquiryThread, error) {
	if !actor.Authenticated() {
		return nil, apperrors.ErrUnauthenticated
	}
	return s.threads.ListForOwner(ctx, actor.UserID, limit)
}

func (s *inquiryService) validateBody(body string) error {
	if body == "" {
		return apperrors.Validation("message body is required")
	}
	if s.cfg.MaxMessageSize > 0 && utf8.RuneCountInString(body) > s.cfg.MaxMessageSize {
		return apperrors.Validation("message body must be at most %d characters", s.cfg.MaxMessageSize)
	}
	return nil
}

// authorize loads the thread and resolves the caller's role in it. Callers
// without any credential are unauthenticated; callers with credentials that
// do not match the thread are forbidden.
func (s *inquiryService) authorize(ctx context.Context, threadID utils.SixID, actor *models.Identity) (*models.InquiryThread, models.ParticipantRole, error) {
	if !actor.Present() {
		return nil, models.ParticipantNone, apperrors.ErrUnauthenticated
	}
	thread, err := s.threads.FindByID(ctx, threadID)
	if err != nil {
		return nil, models.ParticipantNone, err
	}
	role := ParticipantRoleOf(thread, actor)
	if role == models.ParticipantNone {
		return nil, models.ParticipantNone, apperrors.Forbidden("not a participant of thread %s", threadID)
	}
	return thread, role, nil
}

func (s *inquiryService) authorizeMessage(ctx context.Context, messageID utils.SixID, actor *models.Identity) (*models.Message, models.ParticipantRole, error) {
	if !actor.Present() {
		return nil, models.ParticipantNone, apperrors.ErrUnauthenticated
	}
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, models.ParticipantNone, err
	}
	_, role, err := s.authorize(ctx, msg.ThreadID, actor)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, models.ParticipantNone, apperrors.NotFound("message %s", messageID)
		}
		return nil, models.ParticipantNone, err
	}
	return msg, role, nil
}

// ParticipantRoleOf resolves how actor relates to thread. Admin wins over
// owner, and owner over sender.
func ParticipantRoleOf(thread *models.InquiryThread, actor *models.Identity) models.ParticipantRole {
	switch {
	case actor.IsAdmin():
		return models.ParticipantAdmin
	case actor.Authenticated() && thread.OwnerID != nil && *thread.OwnerID == actor.UserID:
		return models.ParticipantOwner
	case actor.Authenticated() && thread.Sender.UserID != nil && *thread.Sender.UserID == actor.UserID:
		return models.ParticipantSender
	case actor != nil && actor.ThreadKey != "" && thread.SenderKey != "" &&
		subtle.ConstantTimeCompare([]byte(actor.ThreadKey), []byte(thread.SenderKey)) == 1:
		return models.ParticipantSender
	}
	return models.ParticipantNone
}

func (s *inquiryService) senderRef(thread *models.InquiryThread, role models.ParticipantRole, actor *models.Identity) models.SenderRef {
	ref := models.SenderRef{Role: role}
	if actor.Authenticated() {
		ref.UserID = actor.UserID.Ptr()
		ref.Name = actor.Name
		ref.Email = actor.Email
	}
	switch role {
	case models.ParticipantSender:
		ref.Name = thread.Sender.Name
		ref.Email = thread.Sender.Email
		ref.UserID = thread.Sender.UserID
	case models.ParticipantOwner:
		if ref.Name == "" {
			ref.Name = "Listing owner"
		}
	case models.ParticipantAdmin:
		if ref.Name == "" {
			ref.Name = s.cfg.AppName + " team"
		}
	}
	return ref
}

func (s *inquiryService) notifyNewInquiry(ctx context.Context, thread *models.InquiryThread, msg *models.Message) {
	preview := msg.Body
	if utf8.RuneCountInString(preview) > inquiryPreview {
		preview = string([]rune(preview)[:inquiryPreview]) + "..."
	}
	s.notifier.Submit(ctx, models.NotificationEvent{
		Kind:        models.NotificationNewInquiry,
		RecipientID: thread.OwnerID,
		SubjectRef:  thread.ID,
		SubjectType: "inquiry",
		Data: map[string]string{
			"listing_id":    thread.ListingID.String(),
			"listing_title": thread.ListingTitle,
			"thread_id":     thread.ID.String(),
			"sender_name":   thread.Sender.Name,
			"message":       preview,
			"thread_url":    fmt.Sprintf("%s/inbox/%s", s.cfg.PublicBaseURL, thread.ID),
		},
	})
}
