package handlers_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"greendrake/marketdesk/internal/apperrors"
	"greendrake/marketdesk/internal/models"
	"greendrake/marketdesk/internal/services"
	"greendrake/marketdesk/internal/storage"
	"greendrake/marketdesk/internal/utils"
)

func TestCreateListing(t *testing.T) {
	env := newTestEnv(t)
	price := 50.0
	env.listings.On("CreateListing", mock.Anything, services.SubmitListingRequest{
		Title:        "Canoe",
		Description:  "Green",
		Price:        &price,
		ContactName:  "Ann",
		ContactEmail: "ann@example.com",
	}, anonymous).Return(&models.Listing{Title: "Canoe", Status: models.ListingStatusPending}, nil)

	w := env.do(t, http.MethodPost, "/v1/listing", map[string]interface{}{
		"title":        "Canoe",
		"description":  "Green",
		"price":        50,
		"contactName":  "Ann",
		"contactEmail": "ann@example.com",
	}, nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	var got models.Listing
	decode(t, w, &got)
	assert.Equal(t, models.ListingStatusPending, got.Status)
}

func TestGetAndListListings(t *testing.T) {
	env := newTestEnv(t)
	id := utils.NewSixID()
	owner := newUser(models.RoleUser)

	env.listings.On("GetListing", mock.Anything, id, anonymous).Return(nil, apperrors.NotFound("listing")).Once()
	env.listings.On("GetListing", mock.Anything, id, sameUser(owner)).Return(&models.Listing{Base: models.Base{ID: id}}, nil).Once()
	env.listings.On("ListApproved", mock.Anything, 10, 20).Return([]models.Listing{{Title: "A"}, {Title: "B"}}, nil)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/listing/"+id.String(), nil, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/listing/"+id.String(), nil, bearer(t, owner)).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/listing/bad-id", nil, nil).Code)

	w := env.do(t, http.MethodGet, "/v1/listing?limit=10&skip=20", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var body []models.Listing
	decode(t, w, &body)
	assert.Len(t, body, 2)
	env.listings.AssertExpectations(t)
}

func TestModerationRoutesRequireAdmin(t *testing.T) {
	env := newTestEnv(t)
	id := utils.NewSixID()
	user := newUser(models.RoleUser)

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/v1/listing/" + id.String() + "/approve"},
		{http.MethodPost, "/v1/listing/" + id.String() + "/reject"},
		{http.MethodDelete, "/v1/listing/" + id.String()},
		{http.MethodGet, "/v1/admin/listings"},
		{http.MethodGet, "/v1/admin/stats"},
	} {
		assert.Equal(t, http.StatusUnauthorized, env.do(t, route.method, route.path, nil, nil).Code, route.path)
		assert.Equal(t, http.StatusForbidden, env.do(t, route.method, route.path, nil, bearer(t, user)).Code, route.path)
	}
	env.moderation.AssertNotCalled(t, "Approve", mock.Anything, mock.Anything, mock.Anything)
	env.moderation.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
}

func TestModerationAsAdmin(t *testing.T) {
	env := newTestEnv(t)
	id := utils.NewSixID()
	admin := newUser(models.RoleAdmin)
	hdr := bearer(t, admin)
	reason := "Blurry photos"

	env.moderation.On("Approve", mock.Anything, id, sameUser(admin)).
		Return(&models.Listing{Base: models.Base{ID: id}, Status: models.ListingStatusApproved}, nil)
	env.moderation.On("Reject", mock.Anything, id, sameUser(admin), &reason).
		Return(&models.Listing{Base: models.Base{ID: id}, Status: models.ListingStatusRejected, RejectionReason: &reason}, nil).Once()
	env.moderation.On("Reject", mock.Anything, id, sameUser(admin), (*string)(nil)).
		Return(&models.Listing{Base: models.Base{ID: id}, Status: models.ListingStatusRejected}, nil).Once()
	env.moderation.On("Delete", mock.Anything, id, sameUser(admin)).Return(nil).Once()
	env.moderation.On("Delete", mock.Anything, id, sameUser(admin)).Return(apperrors.NotFound("listing")).Once()

	w := env.do(t, http.MethodPost, "/v1/listing/"+id.String()+"/approve", nil, hdr)
	assert.Equal(t, http.StatusOK, w.Code)
	var got models.Listing
	decode(t, w, &got)
	assert.Equal(t, models.ListingStatusApproved, got.Status)

	w = env.do(t, http.MethodPost, "/v1/listing/"+id.String()+"/reject", map[string]string{"reason": reason}, hdr)
	assert.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &got)
	assert.Equal(t, reason, *got.RejectionReason)

	w = env.do(t, http.MethodPost, "/v1/listing/"+id.String()+"/reject", nil, hdr)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodDelete, "/v1/listing/"+id.String(), nil, hdr)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())

	w = env.do(t, http.MethodDelete, "/v1/listing/"+id.String(), nil, hdr)
	assert.Equal(t, http.StatusNotFound, w.Code)

	env.moderation.AssertExpectations(t)
}

func TestAdminQueueAndStats(t *testing.T) {
	env := newTestEnv(t)
	hdr := bearer(t, newUser(models.RoleAdmin))

	env.listings.On("ListByStatus", mock.Anything, models.ListingStatusPending, 0, 0).Return([]models.Listing{{Title: "P"}}, nil)
	env.listings.On("ListByStatus", mock.Anything, models.ListingStatus("bogus"), 0, 0).Return(nil, apperrors.Validation("unknown status"))
	env.listings.On("Stats", mock.Anything).Return(&models.ListingStats{Total: 3, Pending: 1, Approved: 1, Rejected: 1}, nil).Once()
	env.listings.On("Stats", mock.Anything).Return(nil, errors.New("aggregate failed")).Once()

	w := env.do(t, http.MethodGet, "/v1/admin/listings", nil, hdr)
	assert.Equal(t, http.StatusOK, w.Code)
	var queue []models.Listing
	decode(t, w, &queue)
	require.Len(t, queue, 1)
	assert.Equal(t, "P", queue[0].Title)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/admin/listings?status=bogus", nil, hdr).Code)

	w = env.do(t, http.MethodGet, "/v1/admin/stats", nil, hdr)
	assert.Equal(t, http.StatusOK, w.Code)
	var stats models.ListingStats
	decode(t, w, &stats)
	assert.Equal(t, models.ListingStats{Total: 3, Pending: 1, Approved: 1, Rejected: 1}, stats)

	w = env.do(t, http.MethodGet, "/v1/admin/stats", nil, hdr)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to compute stats", errorText(t, w))
}

func TestPingAndCORS(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/ping", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())

	w = env.do(t, http.MethodOptions, "/v1/inquiry", nil, map[string]string{
		"Origin":                        "https://shop.example",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestPresignListingImage(t *testing.T) {
	env := newTestEnv(t)
	id := utils.NewSixID()
	owner := newUser(models.RoleUser)
	stranger := newUser(models.RoleUser)
	path := "/v1/listing/" + id.String() + "/image"
	body := map[string]string{"filename": "front.jpg", "contentType": "image/jpeg"}
	key := storage.ListingImagePrefix(id) + "9a_front.jpg"

	env.listings.On("AuthorizeEdit", mock.Anything, id, sameUser(stranger)).Return(nil, apperrors.Forbidden("listing"))
	env.listings.On("AuthorizeEdit", mock.Anything, id, sameUser(owner)).Return(&models.Listing{Base: models.Base{ID: id}}, nil)
	env.objects.On("PresignListingImagePut", mock.Anything, id, "front.jpg", "image/jpeg").Return("https://bucket/put", key, nil).Once()
	env.objects.On("PresignListingImagePut", mock.Anything, id, "front.jpg", "image/jpeg").Return("", "", storage.ErrStorageDisabled).Once()
	env.listings.On("AddImage", mock.Anything, id, sameUser(owner), key).Return(&models.Listing{Images: []string{key}}, nil).Once()

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, path, body, nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, path, body, bearer(t, stranger)).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, path, map[string]string{"filename": "x"}, bearer(t, owner)).Code)

	w := env.do(t, http.MethodPost, path, body, bearer(t, owner))
	assert.Equal(t, http.StatusOK, w.Code)
	var got struct {
		UploadURL string `json:"upload_url"`
		Key       string `json:"key"`
	}
	decode(t, w, &got)
	assert.Equal(t, "https://bucket/put", got.UploadURL)
	assert.Equal(t, key, got.Key)

	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodPost, path, body, bearer(t, owner)).Code)

	env.listings.AssertExpectations(t)
	env.objects.AssertExpectations(t)
}
