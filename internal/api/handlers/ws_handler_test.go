package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"greendrake/marketdesk/internal/apperrors"
	"greendrake/marketdesk/internal/models"
	"greendrake/marketdesk/internal/presence"
	"greendrake/marketdesk/internal/utils"
)

type wireEvent struct {
	Type    string          `json:"type"`
	Room    string          `json:"room"`
	Payload json.RawMessage `json:"payload"`
}

func dialWS(t *testing.T, srv *httptest.Server, query string) (*websocket.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws" + query
	return websocket.DefaultDialer.Dial(url, nil)
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev wireEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestWs_RequiresCredentials(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	_, resp, err := dialWS(t, srv, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWs_JoinReceiveAndLeave(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	allowed, denied := utils.NewSixID(), utils.NewSixID()
	env.inquiries.On("AuthorizeThread", mock.Anything, allowed, withThreadKey("k")).Return(models.ParticipantSender, nil)
	env.inquiries.On("AuthorizeThread", mock.Anything, denied, withThreadKey("k")).Return(models.ParticipantNone, apperrors.Forbidden("not a participant"))

	conn, _, err := dialWS(t, srv, "?thread_key=k")
	require.NoError(t, err)
	defer conn.Close()

	room := presence.ThreadRoom(allowed)
	require.NoError(t, conn.WriteJSON(presence.Event{Type: presence.TypeJoin, Room: room}))

	ev := readEvent(t, conn)
	assert.Equal(t, presence.TypePresence, ev.Type)
	var p presence.PresencePayload
	require.NoError(t, json.Unmarshal(ev.Payload, &p))
	assert.Equal(t, presence.PresencePayload{Room: room, Count: 1}, p)
	assert.Equal(t, 1, env.hub.Count(room))

	env.hub.Broadcast(room, presence.Event{Type: presence.TypeMessage, Payload: models.Message{Body: "hi there"}})
	ev = readEvent(t, conn)
	assert.Equal(t, presence.TypeMessage, ev.Type)
	assert.Contains(t, string(ev.Payload), "hi there")

	require.NoError(t, conn.WriteJSON(presence.Event{Type: presence.TypeJoin, Room: presence.ThreadRoom(denied)}))
	ev = readEvent(t, conn)
	assert.Equal(t, presence.TypeError, ev.Type)
	assert.Contains(t, string(ev.Payload), "forbidden")
	assert.Equal(t, 0, env.hub.Count(presence.ThreadRoom(denied)))

	require.NoError(t, conn.WriteJSON(presence.Event{Type: presence.TypeJoin, Room: "lobby"}))
	assert.Equal(t, presence.TypeError, readEvent(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, presence.TypeError, readEvent(t, conn).Type)

	require.NoError(t, conn.WriteJSON(presence.Event{Type: presence.TypeLeave, Room: room}))
	assert.Eventually(t, func() bool { return env.hub.Count(room) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWs_DisconnectLeavesRooms(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	threadID := utils.NewSixID()
	env.inquiries.On("AuthorizeThread", mock.Anything, threadID, mock.Anything).Return(models.ParticipantSender, nil)

	conn, _, err := dialWS(t, srv, "?thread_key=k")
	require.NoError(t, err)

	room := presence.ThreadRoom(threadID)
	require.NoError(t, conn.WriteJSON(presence.Event{Type: presence.TypeJoin, Room: room}))
	readEvent(t, conn)
	require.Equal(t, 1, env.hub.Count(room))

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return env.hub.Count(room) == 0 }, 2*time.Second, 10*time.Millisecond)
}
