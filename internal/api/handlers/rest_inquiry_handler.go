package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"greendrake/marketdesk/internal/api/middleware"
	"greendrake/marketdesk/internal/services"
	"greendrake/marketdesk/internal/storage"
)

// RestInquiryHandler serves inquiry submission, thread and message routes.
type RestInquiryHandler struct {
	inquiries services.IInquiryService
	objects   storage.IObjectStorage
	log       *zap.Logger
}

func NewRestInquiryHandler(inquiries services.IInquiryService, objects storage.IObjectStorage, log *zap.Logger) *RestInquiryHandler {
	return &RestInquiryHandler{inquiries: inquiries, objects: objects, log: log}
}

// SubmitInquiry handles POST /v1/inquiry
func (h *RestInquiryHandler) SubmitInquiry(c *gin.Context) {
	var req services.SubmitInquiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	result, err := h.inquiries.SubmitInquiry(c.Request.Context(), req, middleware.GetIdentity(c))
	if err != nil {
		respondError(c, h.log, err, "Failed to submit inquiry")
		return
	}
	c.JSON(http.StatusCreated, result)
}

// GetThread handles GET /v1/thread/:id
func (h *RestInquiryHandler) GetThread(c *gin.Context) {
	threadID, ok := pathID(c, "id", "thread")
	if !ok {
		return
	}
	thread, err := h.inquiries.GetThread(c.Request.Context(), threadID, middleware.GetIdentity(c))
	if err != nil {
		respondError(c, h.log, err, "Failed to retrieve thread")
		return
	}
	c.JSON(http.StatusOK, thread)
}

// ListMessages handles GET /v1/thread/:id/messages
func (h *RestInquiryHandler) ListMessages(c *gin.Context) {
	threadID, ok := pathID(c, "id", "thread")
	if !ok {
		return
	}
	messages, err := h.inquiries.ListMessages(c.Request.Context(), threadID, middleware.GetIdentity(c))
	if err != nil {
		respondError(c, h.log, err, "Failed to retrieve messages")
		return
	}
	c.JSON(http.StatusOK, messages)
}

type postMessageRequest struct {
	Body       string  `json:"body"`
	Attachment *string `json:"attachment,omitempty"`
}

// PostMessage handles POST /v1/thread/:id/messages
func (h *RestInquiryHandler) PostMessage(c *gin.Context) {
	threadID, ok := pathID(c, "id", "thread")
	if !ok {
		return
	}
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	msg, err := h.inquiries.PostMessage(c.Request.Context(), threadID, middleware.GetIdentity(c), req.Body, req.Attachment)
	if err != nil {
		respondError(c, h.log, err, "Failed to post message")
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// MarkThreadRead handles PATCH /v1/thread/:id/read
func (h *RestInquiryHandler) MarkThreadRead(c *gin.Context) {
	threadID, ok := pathID(c, "id", "thread")
	if !ok {
		return
	}
	if err := h.inquiries.MarkThreadRead(c.Request.Context(), threadID, middleware.GetIdentity(c)); err != nil {
		respondError(c, h.log, err, "Failed to mark thread read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// MarkMessageRead handles PATCH /v1/message/:id/read
func (h *RestInquiryHandler) MarkMessageRead(c *gin.Context) {
	messageID, ok := pathID(c, "id", "message")
	if !ok {
		return
	}
	if err := h.inquiries.MarkMessageRead(c.Request.Context(), messageID, middleware.GetIdentity(c)); err != nil {
		respondError(c, h.log, err, "Failed to mark message read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteMessage handles PATCH /v1/message/:id/delete
func (h *RestInquiryHandler) DeleteMessage(c *gin.Context) {
	messageID, ok := pathID(c, "id", "message")
	if !ok {
		return
	}
	if err := h.inquiries.SoftDeleteMessage(c.Request.Context(), messageID, middleware.GetIdentity(c)); err != nil {
		respondError(c, h.log, err, "Failed to delete message")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type attachmentRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"contentType" binding:"required"`
}

// PresignAttachment handles POST /v1/thread/:id/attachment. The returned key
// is what the client later passes as a message attachment.
func (h *RestInquiryHandler) PresignAttachment(c *gin.Context) {
	threadID, ok := pathID(c, "id", "thread")
	if !ok {
		return
	}
	var req attachmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "filename and contentType are required"})
		return
	}
	ctx := c.Request.Context()
	if _, err := h.inquiries.AuthorizeThread(ctx, threadID, middleware.GetIdentity(c)); err != nil {
		respondError(c, h.log, err, "Failed to authorize thread")
		return
	}

	url, key, err := h.objects.PresignAttachmentPut(ctx, threadID, req.Filename, req.ContentType)
	if err != nil {
		if errors.Is(err, storage.ErrStorageDisabled) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Attachments are not available"})
			return
		}
		respondError(c, h.log, err, "Failed to prepare attachment upload")
		return
	}
	c.JSON(http.StatusOK, gin.H{"upload_url": url, "key": key})
}

// ListInbox handles GET /v1/inbox
func (h *RestInquiryHandler) ListInbox(c *gin.Context) {
	threads, err := h.inquiries.ListInbox(c.Request.Context(), middleware.GetIdentity(c), queryInt(c, "limit", 0))
	if err != nil {
		respondError(c, h.log, err, "Failed to retrieve inbox")
		return
	}
	c.JSON(http.StatusOK, threads)
}
