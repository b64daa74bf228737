package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/masomo-notify/apps/api/echo"
	"github.com/trezcool/masomo-notify/core"
	"github.com/trezcool/masomo-notify/core/delivery"
	"github.com/trezcool/masomo-notify/core/notification"
	"github.com/trezcool/masomo-notify/core/user"
	"github.com/trezcool/masomo-notify/tests"
)

type recordingConn struct {
	mu       sync.Mutex
	received []delivery.Message
}

func (c *recordingConn) Send(msg delivery.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, msg)
	return nil
}

func (c *recordingConn) Close(string) {}

func (c *recordingConn) Received() []delivery.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]delivery.Message(nil), c.received...)
}

func listPage(t *testing.T, app *testApp, recipient string, filter notification.ListFilter) []byte {
	t.Helper()
	page, err := app.notifs.List(context.Background(), recipient, filter)
	require.NoError(t, err)
	return marchallObj(t, page)
}

func TestNotificationAPI_List(t *testing.T) {
	app := setupApp(t)
	now := time.Now()
	testutil.CreateNotification(t, app.repo, app.student.ID, "low", testutil.WithPriority(notification.PriorityLow))
	testutil.CreateNotification(t, app.repo, app.student.ID, "urgent", testutil.WithPriority(notification.PriorityUrgent))
	testutil.CreateNotification(t, app.repo, app.student.ID, "read", testutil.WithRead(now))
	testutil.CreateNotification(t, app.repo, app.student.ID, "archived", testutil.WithArchived(now))
	testutil.CreateNotification(t, app.repo, app.student.ID, "reminder", testutil.WithType(notification.TypeReminder))
	testutil.CreateNotification(t, app.repo, app.teacher.ID, "not yours")
	studentToken := getToken(t, app.student)
	unread := false

	runHTTPTests(t, app, []httpTest{
		{
			name:     "missing token",
			method:   http.MethodGet,
			path:     "/v1/notifications",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "default page",
			method:   http.MethodGet,
			path:     "/v1/notifications",
			token:    studentToken,
			wantCode: http.StatusOK,
			wantData: listPage(t, app, app.student.ID, notification.ListFilter{}),
		},
		{
			name:     "unread reminders",
			method:   http.MethodGet,
			path:     "/v1/notifications?read=false&type=REMINDER",
			token:    studentToken,
			wantCode: http.StatusOK,
			wantData: listPage(t, app, app.student.ID, notification.ListFilter{Read: &unread, Type: notification.TypeReminder}),
		},
		{
			name:     "with archived, paginated",
			method:   http.MethodGet,
			path:     "/v1/notifications?include_archived=true&page=2&limit=2",
			token:    studentToken,
			wantCode: http.StatusOK,
			wantData: listPage(t, app, app.student.ID, notification.ListFilter{IncludeArchived: true, Page: 2, Limit: 2}),
		},
		{
			name:     "invalid filters",
			method:   http.MethodGet,
			path:     "/v1/notifications?type=spam&page=first",
			token:    studentToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"type": "invalid notification type", "page": "must be a positive integer"}`),
		},
		{
			name:     "unread count",
			method:   http.MethodGet,
			path:     "/v1/notifications/unread-count",
			token:    studentToken,
			wantCode: http.StatusOK,
			wantData: []byte(`{"count": 3}`),
		},
	})
}

func TestNotificationAPI_ReadState(t *testing.T) {
	app := setupApp(t)
	ctx := context.Background()
	n1 := testutil.CreateNotification(t, app.repo, app.student.ID, "one")
	n2 := testutil.CreateNotification(t, app.repo, app.student.ID, "two")
	n3 := testutil.CreateNotification(t, app.repo, app.student.ID, "three")
	foreign := testutil.CreateNotification(t, app.repo, app.teacher.ID, "foreign")
	token := getToken(t, app.student)

	t.Run("mark read", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/notifications/"+n1.ID+"/read", token)
		app.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)

		var got notification.Notification
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.True(t, got.Read)
		assert.NotNil(t, got.ReadAt)
	})

	runHTTPTests(t, app, []httpTest{
		{
			name:     "mark read missing",
			method:   http.MethodPut,
			path:     "/v1/notifications/missing/read",
			token:    token,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, errNotFound),
		},
		{
			name:     "mark read of another user",
			method:   http.MethodPut,
			path:     "/v1/notifications/" + foreign.ID + "/read",
			token:    token,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, errNotFound),
		},
		{
			name:     "mark many read without ids",
			method:   http.MethodPut,
			path:     "/v1/notifications/read",
			body:     []byte(`{"ids": []}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"ids": "this field is required"}`),
		},
		{
			name:     "mark many read skips foreign and already read",
			method:   http.MethodPut,
			path:     "/v1/notifications/read",
			body:     marchallObj(t, map[string][]string{"ids": {n1.ID, n2.ID, foreign.ID, "missing"}}),
			token:    token,
			wantCode: http.StatusOK,
			wantData: []byte(`{"updated": 1}`),
		},
		{
			name:     "mark many unread",
			method:   http.MethodPut,
			path:     "/v1/notifications/unread",
			body:     marchallObj(t, map[string][]string{"ids": {n1.ID, n2.ID}}),
			token:    token,
			wantCode: http.StatusOK,
			wantData: []byte(`{"updated": 2}`),
		},
		{
			name:     "mark all read",
			method:   http.MethodPut,
			path:     "/v1/notifications/read-all",
			token:    token,
			wantCode: http.StatusOK,
			wantData: []byte(`{"updated": 3}`),
		},
		{
			name:     "mark all read again",
			method:   http.MethodPut,
			path:     "/v1/notifications/read-all",
			token:    token,
			wantCode: http.StatusOK,
			wantData: []byte(`{"updated": 0}`),
		},
		{
			name:     "archive",
			method:   http.MethodPut,
			path:     "/v1/notifications/" + n3.ID + "/archive",
			token:    token,
			wantCode: http.StatusOK,
			wantData: []byte(`{"updated": 1}`),
		},
		{
			name:     "archive missing",
			method:   http.MethodPut,
			path:     "/v1/notifications/missing/archive",
			token:    token,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, errNotFound),
		},
		{
			name:     "archive many",
			method:   http.MethodPut,
			path:     "/v1/notifications/archive",
			body:     marchallObj(t, map[string][]string{"ids": {n1.ID, n2.ID, n3.ID}}),
			token:    token,
			wantCode: http.StatusOK,
			wantData: []byte(`{"updated": 2}`),
		},
		{
			name:     "archived cannot become unread",
			method:   http.MethodPut,
			path:     "/v1/notifications/unread",
			body:     marchallObj(t, map[string][]string{"ids": {n1.ID}}),
			token:    token,
			wantCode: http.StatusOK,
			wantData: []byte(`{"updated": 0}`),
		},
	})

	count, err := app.notifs.UnreadCount(ctx, app.student.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	got, err := app.notifs.Get(ctx, "", foreign.ID)
	require.NoError(t, err)
	assert.False(t, got.Read)
}

func TestNotificationAPI_Create(t *testing.T) {
	app := setupApp(t)
	adminToken := getToken(t, app.admin)
	live := &recordingConn{}
	app.registry.Register(app.student.ID, live)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "not admin",
			method:   http.MethodPost,
			path:     "/v1/notifications",
			body:     []byte(`{"recipient": "student", "title": "Hi", "message": "there"}`),
			token:    getToken(t, app.teacher),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
		{
			name:     "missing title",
			method:   http.MethodPost,
			path:     "/v1/notifications",
			body:     []byte(`{"recipient": "student", "title": "  ", "message": "there"}`),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"title": "this field is required"}`),
		},
		{
			name:     "missing recipient",
			method:   http.MethodPost,
			path:     "/v1/notifications",
			body:     []byte(`{"title": "Hi", "message": "there"}`),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"recipient": "this field is required"}`),
		},
		{
			name:     "bad priority",
			method:   http.MethodPost,
			path:     "/v1/notifications",
			body:     []byte(`{"recipient": "student", "title": "Hi", "message": "there", "priority": "asap"}`),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
		},
	})

	t.Run("create pushes to the connected recipient", func(t *testing.T) {
		body := []byte(`{"recipient": "student", "title": "Exam moved", "message": "Now on Friday", "priority": "HIGH"}`)
		req, rec := newAuthRequest(http.MethodPost, "/v1/notifications", adminToken, body)
		app.serve(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code)

		var got notification.Notification
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, notification.PriorityHigh, got.Priority)
		assert.Equal(t, notification.TypeInfo, got.Type)
		assert.Equal(t, notification.CategoryGeneral, got.Category)
		assert.False(t, got.Read)

		msgs := live.Received()
		require.Len(t, msgs, 1)
		assert.Equal(t, got.ID, msgs[0].Notification.ID)
	})

	t.Run("bulk", func(t *testing.T) {
		body := []byte(`{
			"notification": {"title": "Trip", "message": "Bring lunch", "category": "social"},
			"recipients": ["student", "parent", "student", " "]
		}`)
		req, rec := newAuthRequest(http.MethodPost, "/v1/notifications/bulk", adminToken, body)
		app.serve(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code)

		var got CreatedResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, 2, got.Created)
		recipients := []string{got.Notifications[0].Recipient, got.Notifications[1].Recipient}
		assert.ElementsMatch(t, []string{app.student.ID, app.parent.ID}, recipients)
		assert.Len(t, live.Received(), 2)
	})

	t.Run("role based", func(t *testing.T) {
		body := []byte(`{"roles": ["teacher", "admin"], "notification": {"title": "Staff meeting", "message": "At 4pm"}}`)
		req, rec := newAuthRequest(http.MethodPost, "/v1/notifications/role-based", adminToken, body)
		app.serve(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code)

		var got CreatedResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, 2, got.Created)
	})

	runHTTPTests(t, app, []httpTest{
		{
			name:     "role based with unknown role",
			method:   http.MethodPost,
			path:     "/v1/notifications/role-based",
			body:     []byte(`{"roles": ["janitor"], "notification": {"title": "Hi", "message": "there"}}`),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"roles": "invalid roles"}`),
		},
		{
			name:     "role based for students",
			method:   http.MethodPost,
			path:     "/v1/notifications/role-based",
			body:     []byte(`{"roles": ["student"], "notification": {"title": "Hi", "message": "there"}}`),
			token:    adminToken,
			wantCode: http.StatusCreated,
		},
	})
}

func TestNotificationAPI_Broadcast(t *testing.T) {
	app := setupApp(t)
	first, second := &recordingConn{}, &recordingConn{}
	app.registry.Register(app.student.ID, first)
	app.registry.Register(app.parent.ID, second)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "invalid notice",
			method:   http.MethodPost,
			path:     "/v1/notifications/broadcast",
			body:     []byte(`{"title": "Maintenance"}`),
			token:    getToken(t, app.admin),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"message": "this field is required"}`),
		},
		{
			name:     "broadcast",
			method:   http.MethodPost,
			path:     "/v1/notifications/broadcast",
			body:     []byte(`{"title": "Maintenance", "message": "Back at 6pm", "priority": "high"}`),
			token:    getToken(t, app.admin),
			wantCode: http.StatusOK,
			wantData: []byte(`{"delivered": 2}`),
		},
	})

	msgs := first.Received()
	require.Len(t, msgs, 1)
	assert.Equal(t, delivery.MsgSystemNotice, msgs[0].Type)
	assert.Equal(t, "Maintenance", msgs[0].Notice.Title)

	// notices are never stored
	count, err := app.notifs.UnreadCount(context.Background(), app.student.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestNotificationAPI_Delete(t *testing.T) {
	app := setupApp(t)
	n1 := testutil.CreateNotification(t, app.repo, app.student.ID, "one")
	n2 := testutil.CreateNotification(t, app.repo, app.parent.ID, "two")
	n3 := testutil.CreateNotification(t, app.repo, app.teacher.ID, "three")
	adminToken := getToken(t, app.admin)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "not admin",
			method:   http.MethodDelete,
			path:     "/v1/notifications/" + n1.ID,
			token:    getToken(t, app.student),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
		{
			name:     "delete",
			method:   http.MethodDelete,
			path:     "/v1/notifications/" + n1.ID,
			token:    adminToken,
			wantCode: http.StatusNoContent,
		},
		{
			name:     "delete again",
			method:   http.MethodDelete,
			path:     "/v1/notifications/" + n1.ID,
			token:    adminToken,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, errNotFound),
		},
		{
			name:     "delete many",
			method:   http.MethodDelete,
			path:     "/v1/notifications",
			body:     marchallObj(t, map[string][]string{"ids": {n1.ID, n2.ID, n3.ID}}),
			token:    adminToken,
			wantCode: http.StatusOK,
			wantData: []byte(`{"updated": 2}`),
		},
	})

	_, err := app.notifs.Get(context.Background(), "", n2.ID)
	assert.Equal(t, core.ErrNotFound, err)
}

func TestNotificationAPI_RateLimit(t *testing.T) {
	limited := *conf
	limited.RateLimit = core.RateLimitConfig{RPS: 0.01, Burst: 2}
	app := setupApp(t, &limited)
	token := getToken(t, app.student)

	for i := 0; i < 2; i++ {
		req, rec := newAuthRequest(http.MethodPut, "/v1/notifications/read-all", token)
		app.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	req, rec := newAuthRequest(http.MethodPut, "/v1/notifications/read-all", token)
	app.serve(req, rec)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body struct {
		Error      string `json:"error"`
		RetryAfter int    `json:"retryAfter"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "too many requests", body.Error)
	assert.GreaterOrEqual(t, body.RetryAfter, 99)

	// reads are not throttled
	req, rec = newAuthRequest(http.MethodGet, "/v1/notifications/unread-count", token)
	app.serve(req, rec)
	assert.Equal(t, http.StatusOK, rec.Code)

	// buckets are per user
	req, rec = newAuthRequest(http.MethodPut, "/v1/notifications/read-all", getToken(t, app.parent))
	app.serve(req, rec)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNotificationAPI_UnknownUserToken(t *testing.T) {
	app := setupApp(t)
	ghost := user.User{ID: "ghost", Role: user.RoleStudent}

	runHTTPTests(t, app, []httpTest{
		{
			name:     "empty inbox",
			method:   http.MethodGet,
			path:     "/v1/notifications/unread-count",
			token:    getToken(t, ghost),
			wantCode: http.StatusOK,
			wantData: []byte(`{"count": 0}`),
		},
		{
			name:     "bad signature",
			method:   http.MethodGet,
			path:     "/v1/notifications/unread-count",
			token:    getToken(t, ghost) + "x",
			wantCode: http.StatusUnauthorized,
		},
	})
}
