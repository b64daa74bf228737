// Package client is the consumer side of the notifications API: a retrying HTTP client
// and a Session that mirrors one user's notifications with optimistic updates.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trezcool/masomo-notify/core"
	"github.com/trezcool/masomo-notify/core/notification"
)

// ErrRateLimited is returned once a request was still throttled after the last attempt.
var ErrRateLimited = errors.New("rate limited")

// StatusError is a non-2xx response other than 429.
type StatusError struct {
	StatusCode int
	Message    string
}

func (err *StatusError) Error() string {
	return fmt.Sprintf("%d %s: %s", err.StatusCode, http.StatusText(err.StatusCode), err.Message)
}

func newStatusError(resp *rest.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(resp.Body)
	if json.Unmarshal([]byte(resp.Body), &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var serr *StatusError
	return errors.As(err, &serr) && serr.StatusCode == code
}

// API calls the /v1/notifications endpoints on behalf of the token's user.
type API struct {
	baseURL     string
	token       string
	maxAttempts int
	client      *rest.Client
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewAPI(conf core.ClientConfig, token string, httpClient ...*http.Client) *API {
	hc := &http.Client{Timeout: 30 * time.Second}
	if len(httpClient) > 0 && httpClient[0] != nil {
		hc = httpClient[0]
	}
	maxAttempts := conf.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &API{
		baseURL:     strings.TrimSuffix(conf.BaseURL, "/") + "/v1",
		token:       token,
		maxAttempts: maxAttempts,
		client:      &rest.Client{HTTPClient: hc},
		sleep:       sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// backoff doubles the server hint on every attempt, starting from one second without a hint.
func backoff(hint time.Duration, attempt int) time.Duration {
	if hint <= 0 {
		hint = time.Second
	}
	return hint * time.Duration(1<<uint(attempt))
}

// retryAfterHint reads the JSON "retryAfter" field, then the Retry-After header, in seconds.
func retryAfterHint(resp *rest.Response) time.Duration {
	var body struct {
		RetryAfter int `json:"retryAfter"`
	}
	if json.Unmarshal([]byte(resp.Body), &body) == nil && body.RetryAfter > 0 {
		return time.Duration(body.RetryAfter) * time.Second
	}
	for key, values := range resp.Headers {
		if !strings.EqualFold(key, "Retry-After") || len(values) == 0 {
			continue
		}
		if secs, err := strconv.Atoi(strings.TrimSpace(values[0])); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

func (api *API) do(
	ctx context.Context,
	method rest.Method,
	path string,
	query map[string]string,
	body interface{},
	out interface{},
) error {
	req := rest.Request{
		Method:  method,
		BaseURL: api.baseURL + path,
		Headers: map[string]string{
			"Accept":        "application/json",
			"Authorization": "Bearer " + api.token,
		},
		QueryParams: query,
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request")
		}
		req.Body = data
		req.Headers["Content-Type"] = "application/json"
	}

	for attempt := 0; ; attempt++ {
		resp, err := api.client.SendWithContext(ctx, req)
		if err != nil {
			return errors.Wrapf(err, "%s %s", method, path)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			if attempt+1 >= api.maxAttempts {
				return ErrRateLimited
			}
			if err = api.sleep(ctx, backoff(retryAfterHint(resp), attempt)); err != nil {
				return err
			}
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return newStatusError(resp)
		}
		if out == nil || resp.Body == "" {
			return nil
		}
		return errors.Wrap(json.Unmarshal([]byte(resp.Body), out), "decoding response")
	}
}

func listQuery(filter notification.ListFilter) map[string]string {
	query := make(map[string]string)
	if filter.Page > 0 {
		query["page"] = strconv.Itoa(filter.Page)
	}
	if filter.Limit > 0 {
		query["limit"] = strconv.Itoa(filter.Limit)
	}
	if filter.Read != nil {
		query["read"] = strconv.FormatBool(*filter.Read)
	}
	if filter.Type != "" {
		query["type"] = string(filter.Type)
	}
	if filter.Category != "" {
		query["category"] = string(filter.Category)
	}
	if filter.Priority != "" {
		query["priority"] = string(filter.Priority)
	}
	if filter.IncludeArchived {
		query["include_archived"] = "true"
	}
	if filter.IncludeExpired {
		query["include_expired"] = "true"
	}
	return query
}

type (
	idsBody struct {
		IDs []string `json:"ids"`
	}
	countBody struct {
		Count int `json:"count"`
	}
	updatedBody struct {
		Updated int `json:"updated"`
	}
)

func (api *API) List(ctx context.Context, filter notification.ListFilter) (notification.Page, error) {
	var page notification.Page
	err := api.do(ctx, rest.Get, "/notifications", listQuery(filter), nil, &page)
	return page, err
}

func (api *API) UnreadCount(ctx context.Context) (int, error) {
	var res countBody
	err := api.do(ctx, rest.Get, "/notifications/unread-count", nil, nil, &res)
	return res.Count, err
}

func (api *API) MarkRead(ctx context.Context, id string) (notification.Notification, error) {
	var n notification.Notification
	err := api.do(ctx, rest.Put, "/notifications/"+id+"/read", nil, nil, &n)
	return n, err
}

func (api *API) updateMany(ctx context.Context, path string, ids []string) (int, error) {
	var res updatedBody
	err := api.do(ctx, rest.Put, path, nil, idsBody{IDs: ids}, &res)
	return res.Updated, err
}

func (api *API) MarkManyRead(ctx context.Context, ids ...string) (int, error) {
	return api.updateMany(ctx, "/notifications/read", ids)
}

func (api *API) MarkManyUnread(ctx context.Context, ids ...string) (int, error) {
	return api.updateMany(ctx, "/notifications/unread", ids)
}

func (api *API) ArchiveMany(ctx context.Context, ids ...string) (int, error) {
	return api.updateMany(ctx, "/notifications/archive", ids)
}

func (api *API) MarkAllRead(ctx context.Context) (int, error) {
	var res updatedBody
	err := api.do(ctx, rest.Put, "/notifications/read-all", nil, nil, &res)
	return res.Updated, err
}

func (api *API) Archive(ctx context.Context, id string) (int, error) {
	var res updatedBody
	err := api.do(ctx, rest.Put, "/notifications/"+id+"/archive", nil, nil, &res)
	return res.Updated, err
}
