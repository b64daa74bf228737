package echoapi

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/masomo-notify/core"
	"github.com/trezcool/masomo-notify/core/notification"
)

// IDsRequest carries the targets of a bulk state change.
type IDsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

type BulkCreateRequest struct {
	Notification notification.NewNotification `json:"notification"`
	Recipients   []string                     `json:"recipients" validate:"required,min=1"`
}

type RoleBasedCreateRequest struct {
	Roles        []string                     `json:"roles" validate:"required,min=1"`
	Notification notification.NewNotification `json:"notification"`
}

type EventRequest struct {
	Event   string          `json:"event" validate:"required,notblank"`
	Payload json.RawMessage `json:"payload"`
}

type (
	CountResponse struct {
		Count int `json:"count"`
	}

	UpdatedResponse struct {
		Updated int `json:"updated"`
	}

	CreatedResponse struct {
		Created       int                         `json:"created"`
		Notifications []notification.Notification `json:"notifications"`
	}

	DeliveredResponse struct {
		Delivered int `json:"delivered"`
	}
)

// bindListFilter reads the listing query string. Malformed values are rejected.
func bindListFilter(ctx echo.Context) (notification.ListFilter, error) {
	var filter notification.ListFilter
	var fldErrs []core.FieldError
	params := ctx.QueryParams()

	intParam := func(name string) int {
		raw := strings.TrimSpace(params.Get(name))
		if raw == "" {
			return 0
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			fldErrs = append(fldErrs, core.FieldError{Field: name, Error: "must be a positive integer"})
			return 0
		}
		return v
	}
	boolParam := func(name string) *bool {
		raw := strings.TrimSpace(params.Get(name))
		if raw == "" {
			return nil
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			fldErrs = append(fldErrs, core.FieldError{Field: name, Error: "must be a boolean"})
			return nil
		}
		return &v
	}

	filter.Page = intParam("page")
	filter.Limit = intParam("limit")
	filter.Read = boolParam("read")
	if v := boolParam("include_archived"); v != nil {
		filter.IncludeArchived = *v
	}
	if v := boolParam("include_expired"); v != nil {
		filter.IncludeExpired = *v
	}

	if v := core.CleanString(params.Get("type"), true /* lower */); v != "" {
		filter.Type = notification.Type(v)
		if !filter.Type.IsValid() {
			fldErrs = append(fldErrs, core.FieldError{Field: "type", Error: "invalid notification type"})
		}
	}
	if v := core.CleanString(params.Get("category"), true /* lower */); v != "" {
		filter.Category = notification.Category(v)
		if !filter.Category.IsValid() {
			fldErrs = append(fldErrs, core.FieldError{Field: "category", Error: "invalid notification category"})
		}
	}
	if v := core.CleanString(params.Get("priority"), true /* lower */); v != "" {
		filter.Priority = notification.Priority(v)
		if !filter.Priority.IsValid() {
			fldErrs = append(fldErrs, core.FieldError{Field: "priority", Error: "invalid notification priority"})
		}
	}

	if len(fldErrs) > 0 {
		return notification.ListFilter{}, core.NewValidationError(nil, fldErrs...)
	}
	return filter, nil
}
