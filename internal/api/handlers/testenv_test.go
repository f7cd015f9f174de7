package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"greendrake/marketdesk/internal/api"
	"greendrake/marketdesk/internal/auth"
	"greendrake/marketdesk/internal/config"
	"greendrake/marketdesk/internal/models"
	"greendrake/marketdesk/internal/presence"
	"greendrake/marketdesk/internal/utils"
)

const testSecret = "handler-test-secret"

type testEnv struct {
	router        *gin.Engine
	hub           *presence.Hub
	inquiries     *MockInquiryService
	listings      *MockListingService
	moderation    *MockModerationService
	notifications *MockNotificationService
	objects       *MockObjectStorage
	captcha       *MockTurnstileVerifier
}

func newTestEnv(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		JwtSecret:               testSecret,
		RateLimitSoftBucketSize: 100,
		RateLimitSoftRefillRate: 100,
		RateLimitHardBucketSize: 100,
		RateLimitHardRefillRate: 100,
		WsPingInterval:          time.Second,
		WsSendBuffer:            8,
	}
	env := &testEnv{
		hub:           presence.NewHub(zap.NewNop()),
		inquiries:     new(MockInquiryService),
		listings:      new(MockListingService),
		moderation:    new(MockModerationService),
		notifications: new(MockNotificationService),
		objects:       new(MockObjectStorage),
		captcha:       new(MockTurnstileVerifier),
	}
	env.router = api.SetupRouter(cfg, api.Services{
		Listings:      env.listings,
		Moderation:    env.moderation,
		Inquiries:     env.inquiries,
		Notifications: env.notifications,
		Objects:       env.objects,
		Presence:      env.hub,
		Captcha:       env.captcha,
	}, zap.NewNop())
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf *bytes.Buffer
	switch b := body.(type) {
	case nil:
		buf = &bytes.Buffer{}
	case string:
		buf = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		buf = bytes.NewBuffer(raw)
	}
	req, err := http.NewRequest(method, path, buf)
	require.NoError(t, err)
	if buf.Len() > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "10.0.0.1:1234"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func bearer(t *testing.T, identity *models.Identity) map[string]string {
	t.Helper()
	token, err := auth.GenerateJWT(identity, testSecret, time.Hour)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func newUser(role models.Role) *models.Identity {
	return &models.Identity{UserID: utils.NewSixID(), Name: "Test User", Email: "user@example.com", Role: role}
}

// sameUser matches the identity the middleware rebuilt from a token.
func sameUser(want *models.Identity) interface{} {
	return mock.MatchedBy(func(got *models.Identity) bool {
		return got != nil && got.UserID == want.UserID && got.Role == want.Role
	})
}

func withThreadKey(key string) interface{} {
	return mock.MatchedBy(func(got *models.Identity) bool {
		return got != nil && !got.Authenticated() && got.ThreadKey == key
	})
}

var anonymous = (*models.Identity)(nil)

func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst), w.Body.String())
}

func errorText(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decode(t, w, &body)
	return body.Error
}
