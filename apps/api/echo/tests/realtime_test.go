package tests

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-notify/core/delivery"
)

func dialRealtime(t *testing.T, srv *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/realtime?token=" + token
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Cleanup(func() { _ = ws.Close() })
	}
	return ws, resp, err
}

func readMessage(t *testing.T, ws *websocket.Conn) delivery.Message {
	t.Helper()
	var msg delivery.Message
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, ws.ReadJSON(&msg))
	return msg
}

func TestRealtimeAPI(t *testing.T) {
	app := setupApp(t)
	srv := httptest.NewServer(app.server)
	t.Cleanup(srv.Close)

	t.Run("missing token", func(t *testing.T) {
		_, resp, err := dialRealtime(t, srv, "")
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	ws, _, err := dialRealtime(t, srv, getToken(t, app.student))
	require.NoError(t, err)

	ack := readMessage(t, ws)
	assert.Equal(t, delivery.MsgConnectionAck, ack.Type)
	assert.Equal(t, app.student.ID, ack.UserID)
	require.Eventually(t, func() bool { return app.registry.Connected(app.student.ID) }, 2*time.Second, 10*time.Millisecond)

	t.Run("created notifications are pushed", func(t *testing.T) {
		body := []byte(`{"recipient": "student", "title": "Library", "message": "Your book is ready"}`)
		req, rec := newAuthRequest(http.MethodPost, "/v1/notifications", getToken(t, app.admin), body)
		app.serve(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code)

		msg := readMessage(t, ws)
		assert.Equal(t, delivery.MsgNotification, msg.Type)
		assert.Equal(t, "Library", msg.Notification.Title)
	})

	t.Run("a second connection supersedes the first", func(t *testing.T) {
		second, _, err := dialRealtime(t, srv, getToken(t, app.student))
		require.NoError(t, err)
		assert.Equal(t, delivery.MsgConnectionAck, readMessage(t, second).Type)

		_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err = ws.ReadMessage()
		var closeErr *websocket.CloseError
		require.ErrorAs(t, err, &closeErr)
		assert.Equal(t, delivery.ReasonSuperseded, closeErr.Text)
		assert.True(t, app.registry.Connected(app.student.ID))

		_ = second.Close()
		require.Eventually(t, func() bool { return !app.registry.Connected(app.student.ID) }, 2*time.Second, 10*time.Millisecond)
	})
}
