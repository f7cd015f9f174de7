package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"greendrake/marketdesk/internal/api/middleware"
	"greendrake/marketdesk/internal/models"
	"greendrake/marketdesk/internal/services"
	"greendrake/marketdesk/internal/storage"
)

// RestListingHandler handles REST requests for listings and their moderation.
type RestListingHandler struct {
	listingService    services.IListingService
	moderationService services.IModerationService
	objects           storage.IObjectStorage
	log               *zap.Logger
}

func NewRestListingHandler(listingService services.IListingService, moderationService services.IModerationService, objects storage.IObjectStorage, log *zap.Logger) *RestListingHandler {
	return &RestListingHandler{
		listingService:    listingService,
		moderationService: moderationService,
		objects:           objects,
		log:               log,
	}
}

// CreateListing handles POST /v1/listing
func (h *RestListingHandler) CreateListing(c *gin.Context) {
	var req services.SubmitListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	listing, err := h.listingService.CreateListing(c.Request.Context(), req, middleware.GetIdentity(c))
	if err != nil {
		respondError(c, h.log, err, "Failed to create listing")
		return
	}
	c.JSON(http.StatusCreated, listing)
}

// ListListings handles GET /v1/listing
func (h *RestListingHandler) ListListings(c *gin.Context) {
	listings, err := h.listingService.ListApproved(c.Request.Context(), queryInt(c, "limit", 0), queryInt(c, "skip", 0))
	if err != nil {
		respondError(c, h.log, err, "Failed to list listings")
		return
	}
	c.JSON(http.StatusOK, listings)
}

// GetListingByID handles GET /v1/listing/:id
func (h *RestListingHandler) GetListingByID(c *gin.Context) {
	listingID, ok := pathID(c, "id", "listing")
	if !ok {
		return
	}
	listing, err := h.listingService.GetListing(c.Request.Context(), listingID, middleware.GetIdentity(c))
	if err != nil {
		respondError(c, h.log, err, "Failed to retrieve listing")
		return
	}
	c.JSON(http.StatusOK, listing)
}

// PresignImage handles POST /v1/listing/:id/image. The key is issued under
// the listing's prefix and recorded on the listing straight away.
func (h *RestListingHandler) PresignImage(c *gin.Context) {
	listingID, ok := pathID(c, "id", "listing")
	if !ok {
		return
	}
	var req attachmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "filename and contentType are required"})
		return
	}
	ctx := c.Request.Context()
	actor := middleware.GetIdentity(c)
	if _, err := h.listingService.AuthorizeEdit(ctx, listingID, actor); err != nil {
		respondError(c, h.log, err, "Failed to authorize listing")
		return
	}

	url, key, err := h.objects.PresignListingImagePut(ctx, listingID, req.Filename, req.ContentType)
	if err != nil {
		if errors.Is(err, storage.ErrStorageDisabled) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Image uploads are not available"})
			return
		}
		respondError(c, h.log, err, "Failed to prepare image upload")
		return
	}
	if _, err := h.listingService.AddImage(ctx, listingID, actor, key); err != nil {
		respondError(c, h.log, err, "Failed to add listing image")
		return
	}
	c.JSON(http.StatusOK, gin.H{"upload_url": url, "key": key})
}

// Approve handles POST /v1/listing/:id/approve
func (h *RestListingHandler) Approve(c *gin.Context) {
	listingID, ok := pathID(c, "id", "listing")
	if !ok {
		return
	}
	listing, err := h.moderationService.Approve(c.Request.Context(), listingID, middleware.GetIdentity(c))
	if err != nil {
		respondError(c, h.log, err, "Failed to approve listing")
		return
	}
	c.JSON(http.StatusOK, listing)
}

type rejectRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// Reject handles POST /v1/listing/:id/reject. The body is optional.
func (h *RestListingHandler) Reject(c *gin.Context) {
	listingID, ok := pathID(c, "id", "listing")
	if !ok {
		return
	}
	var req rejectRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}
	listing, err := h.moderationService.Reject(c.Request.Context(), listingID, middleware.GetIdentity(c), req.Reason)
	if err != nil {
		respondError(c, h.log, err, "Failed to reject listing")
		return
	}
	c.JSON(http.StatusOK, listing)
}

// Delete handles DELETE /v1/listing/:id
func (h *RestListingHandler) Delete(c *gin.Context) {
	listingID, ok := pathID(c, "id", "listing")
	if !ok {
		return
	}
	if err := h.moderationService.Delete(c.Request.Context(), listingID, middleware.GetIdentity(c)); err != nil {
		respondError(c, h.log, err, "Failed to delete listing")
		return
	}
	c.Status(http.StatusNoContent)
}

// AdminListings handles GET /v1/admin/listings?status=
func (h *RestListingHandler) AdminListings(c *gin.Context) {
	status := models.ListingStatus(c.DefaultQuery("status", string(models.ListingStatusPending)))
	listings, err := h.listingService.ListByStatus(c.Request.Context(), status, queryInt(c, "limit", 0), queryInt(c, "skip", 0))
	if err != nil {
		respondError(c, h.log, err, "Failed to list listings")
		return
	}
	c.JSON(http.StatusOK, listings)
}

// AdminStats handles GET /v1/admin/stats
func (h *RestListingHandler) AdminStats(c *gin.Context) {
	stats, err := h.listingService.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err, "Failed to compute stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}
