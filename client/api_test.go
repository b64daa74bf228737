package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-notify/core"
	"github.com/trezcool/masomo-notify/core/notification"
)

type recordedRequest struct {
	method string
	path   string
	query  map[string]string
	auth   string
	body   string
}

type testServer struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (ts *testServer) record(r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	query := make(map[string]string)
	for k := range r.URL.Query() {
		query[k] = r.URL.Query().Get(k)
	}
	ts.mu.Lock()
	ts.requests = append(ts.requests, recordedRequest{
		method: r.Method,
		path:   r.URL.Path,
		query:  query,
		auth:   r.Header.Get("Authorization"),
		body:   string(body),
	})
	ts.mu.Unlock()
}

func (ts *testServer) count() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.requests)
}

func newTestAPI(t *testing.T, maxAttempts int, handler http.HandlerFunc) (*API, *testServer, *[]time.Duration) {
	t.Helper()
	ts := &testServer{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.record(r)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	var delays []time.Duration
	api := NewAPI(core.ClientConfig{BaseURL: srv.URL + "/", MaxAttempts: maxAttempts}, "s3cr3t")
	api.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return api, ts, &delays
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestAPI_List(t *testing.T) {
	want := notification.Page{
		Items:       []notification.Notification{{ID: "n1", Recipient: "student", Title: "Hello"}},
		Total:       1,
		UnreadCount: 1,
		Page:        2,
		Limit:       10,
	}
	api, ts, _ := newTestAPI(t, 3, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, want)
	})

	read := false
	page, err := api.List(context.Background(), notification.ListFilter{
		Page:            2,
		Limit:           10,
		Read:            &read,
		Category:        notification.CategoryAcademic,
		IncludeArchived: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "n1", page.Items[0].ID)
	assert.Equal(t, 1, page.UnreadCount)

	require.Equal(t, 1, ts.count())
	req := ts.requests[0]
	assert.Equal(t, http.MethodGet, req.method)
	assert.Equal(t, "/v1/notifications", req.path)
	assert.Equal(t, "Bearer s3cr3t", req.auth)
	assert.Equal(t, map[string]string{
		"page":             "2",
		"limit":            "10",
		"read":             "false",
		"category":         "academic",
		"include_archived": "true",
	}, req.query)
}

func TestAPI_Mutations(t *testing.T) {
	api, ts, _ := newTestAPI(t, 3, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/notifications/unread-count":
			writeJSON(w, http.StatusOK, map[string]int{"count": 4})
		case "/v1/notifications/n1/read":
			writeJSON(w, http.StatusOK, notification.Notification{ID: "n1", Read: true})
		case "/v1/notifications/missing/read":
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		default:
			writeJSON(w, http.StatusOK, map[string]int{"updated": 2})
		}
	})
	ctx := context.Background()

	count, err := api.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	n, err := api.MarkRead(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, n.Read)

	_, err = api.MarkRead(ctx, "missing")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.Equal(t, "404 Not Found: not found", err.Error())

	updated, err := api.MarkManyRead(ctx, "n1", "n2")
	require.NoError(t, err)
	assert.Equal(t, 2, updated)
	_, err = api.MarkManyUnread(ctx, "n1")
	require.NoError(t, err)
	_, err = api.ArchiveMany(ctx, "n2")
	require.NoError(t, err)
	_, err = api.Archive(ctx, "n3")
	require.NoError(t, err)
	_, err = api.MarkAllRead(ctx)
	require.NoError(t, err)

	tests := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodPut, "/v1/notifications/read", `{"ids":["n1","n2"]}`},
		{http.MethodPut, "/v1/notifications/unread", `{"ids":["n1"]}`},
		{http.MethodPut, "/v1/notifications/archive", `{"ids":["n2"]}`},
		{http.MethodPut, "/v1/notifications/n3/archive", ``},
		{http.MethodPut, "/v1/notifications/read-all", ``},
	}
	require.Equal(t, 8, ts.count())
	for i, tt := range tests {
		req := ts.requests[3+i]
		assert.Equal(t, tt.method, req.method, tt.path)
		assert.Equal(t, tt.path, req.path)
		assert.Equal(t, tt.body, req.body, tt.path)
	}
}

func TestAPI_RateLimitBackoff(t *testing.T) {
	tests := []struct {
		name        string
		maxAttempts int
		throttled   int // leading 429 responses
		header      string
		body        string
		wantErr     error
		wantDelays  []time.Duration
		wantCalls   int
	}{
		{
			name:        "body hint",
			maxAttempts: 3,
			throttled:   2,
			body:        `{"error": "too many requests", "retryAfter": 2}`,
			wantDelays:  []time.Duration{2 * time.Second, 4 * time.Second},
			wantCalls:   3,
		},
		{
			name:        "header hint",
			maxAttempts: 3,
			throttled:   1,
			header:      "3",
			wantDelays:  []time.Duration{3 * time.Second},
			wantCalls:   2,
		},
		{
			name:        "no hint",
			maxAttempts: 4,
			throttled:   3,
			wantDelays:  []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
			wantCalls:   4,
		},
		{
			name:        "gives up after the last attempt",
			maxAttempts: 3,
			throttled:   5,
			body:        `{"retryAfter": 1}`,
			wantErr:     ErrRateLimited,
			wantDelays:  []time.Duration{time.Second, 2 * time.Second},
			wantCalls:   3,
		},
		{
			name:        "single attempt",
			maxAttempts: 0,
			throttled:   1,
			wantErr:     ErrRateLimited,
			wantCalls:   1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			api, ts, delays := newTestAPI(t, tt.maxAttempts, func(w http.ResponseWriter, r *http.Request) {
				calls++
				if calls <= tt.throttled {
					if tt.header != "" {
						w.Header().Set("Retry-After", tt.header)
					}
					w.WriteHeader(http.StatusTooManyRequests)
					_, _ = io.WriteString(w, tt.body)
					return
				}
				writeJSON(w, http.StatusOK, map[string]int{"count": 1})
			})

			count, err := api.UnreadCount(context.Background())
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, 1, count)
			}
			assert.Equal(t, tt.wantDelays, *delays)
			assert.Equal(t, tt.wantCalls, ts.count())
		})
	}
}

func TestAPI_BackoffHonoursContext(t *testing.T) {
	api, ts, _ := newTestAPI(t, 5, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, map[string]int{"retryAfter": 60})
	})
	api.sleep = sleepContext

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := api.UnreadCount(ctx)
	assert.Equal(t, context.DeadlineExceeded, err)
	assert.Equal(t, 1, ts.count())
}
