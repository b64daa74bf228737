package echoapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-notify/core"
	"github.com/trezcool/masomo-notify/core/delivery"
	"github.com/trezcool/masomo-notify/core/notification"
)

type notificationApi struct {
	svc      *notification.Service
	registry *delivery.Registry
	validate *validator.Validate
	conf     *core.Config
}

func registerNotificationAPI(g *echo.Group, jwt, limit echo.MiddlewareFunc, deps ServerDeps) {
	api := notificationApi{
		svc:      deps.NotificationSvc,
		registry: deps.Registry,
		validate: deps.Validate,
		conf:     deps.Conf,
	}

	ng := g.Group("/notifications", jwt)

	// inbox endpoints: always scoped to the authenticated user
	ng.GET("", api.list)
	ng.GET("/unread-count", api.unreadCount)
	ng.PUT("/read", api.markManyRead, limit)
	ng.PUT("/read-all", api.markAllRead, limit)
	ng.PUT("/unread", api.markManyUnread, limit)
	ng.PUT("/archive", api.archiveMany, limit)
	ng.PUT("/:id/read", api.markRead, limit)
	ng.PUT("/:id/archive", api.archive, limit)

	// admin endpoints
	admin := adminMiddleware()
	ng.POST("", api.create, admin, limit)
	ng.POST("/bulk", api.createBulk, admin, limit)
	ng.POST("/role-based", api.createRoleBased, admin, limit)
	ng.POST("/broadcast", api.broadcast, admin, limit)
	ng.DELETE("", api.destroyMany, admin, limit)
	ng.DELETE("/:id", api.destroy, admin, limit)
}

// requestContext bounds store calls by the configured request timeout.
func requestContext(ctx echo.Context, conf *core.Config) (context.Context, context.CancelFunc) {
	if conf.Server.RequestTimeout <= 0 {
		return context.WithCancel(ctx.Request().Context())
	}
	return context.WithTimeout(ctx.Request().Context(), conf.Server.RequestTimeout)
}

func (api *notificationApi) owner(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}
	return claims.UserID(), nil
}

func (api *notificationApi) bindIDs(ctx echo.Context) ([]string, error) {
	var data IDsRequest
	if err := ctx.Bind(&data); err != nil {
		return nil, errors.Wrap(err, "binding to IDsRequest")
	}
	data.IDs = core.UniqueStrings(data.IDs)
	if err := api.validate.Struct(data); err != nil {
		return nil, err
	}
	return data.IDs, nil
}

// Handlers

func (api *notificationApi) list(ctx echo.Context) error {
	owner, err := api.owner(ctx)
	if err != nil {
		return err
	}
	filter, err := bindListFilter(ctx)
	if err != nil {
		return err
	}

	c, cancel := requestContext(ctx, api.conf)
	defer cancel()
	page, err := api.svc.List(c, owner, filter)
	if err != nil {
		return errors.Wrap(err, "listing notifications")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *notificationApi) unreadCount(ctx echo.Context) error {
	owner, err := api.owner(ctx)
	if err != nil {
		return err
	}

	c, cancel := requestContext(ctx, api.conf)
	defer cancel()
	count, err := api.svc.UnreadCount(c, owner)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: count})
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	owner, err := api.owner(ctx)
	if err != nil {
		return err
	}

	c, cancel := requestContext(ctx, api.conf)
	defer cancel()
	n, err := api.svc.MarkRead(c, owner, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "marking notification read")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *notificationApi) markManyRead(ctx echo.Context) error {
	return api.updateMany(ctx, api.svc.MarkManyRead)
}

func (api *notificationApi) markManyUnread(ctx echo.Context) error {
	return api.updateMany(ctx, api.svc.MarkManyUnread)
}

func (api *notificationApi) archiveMany(ctx echo.Context) error {
	return api.updateMany(ctx, api.svc.ArchiveMany)
}

func (api *notificationApi) updateMany(
	ctx echo.Context,
	update func(ctx context.Context, owner string, ids ...string) (int, error),
) error {
	owner, err := api.owner(ctx)
	if err != nil {
		return err
	}
	ids, err := api.bindIDs(ctx)
	if err != nil {
		return err
	}

	c, cancel := requestContext(ctx, api.conf)
	defer cancel()
	updated, err := update(c, owner, ids...)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, UpdatedResponse{Updated: updated})
}

func (api *notificationApi) markAllRead(ctx echo.Context) error {
	owner, err := api.owner(ctx)
	if err != nil {
		return err
	}

	c, cancel := requestContext(ctx, api.conf)
	defer cancel()
	updated, err := api.svc.MarkAllRead(c, owner)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, UpdatedResponse{Updated: updated})
}

func (api *notificationApi) archive(ctx echo.Context) error {
	owner, err := api.owner(ctx)
	if err != nil {
		return err
	}
	id := ctx.Param("id")

	c, cancel := requestContext(ctx, api.conf)
	defer cancel()
	if _, err = api.svc.Get(c, owner, id); err != nil {
		return errors.Wrap(err, "getting notification")
	}
	updated, err := api.svc.Archive(c, owner, id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, UpdatedResponse{Updated: updated})
}

func (api *notificationApi) create(ctx echo.Context) error {
	var data notification.NewNotification
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewNotification")
	}

	c, cancel := requestContext(ctx, api.conf)
	defer cancel()
	n, err := api.svc.Create(c, data)
	if err != nil {
		return errors.Wrap(err, "creating notification")
	}
	api.registry.Push(n.Recipient, n)
	return ctx.JSON(http.StatusCreated, n)
}

func (api *notificationApi) createBulk(ctx echo.Context) error {
	var data BulkCreateRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BulkCreateRequest")
	}
	data.Recipients = core.UniqueStrings(data.Recipients)
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	c, cancel := requestContext(ctx, api.conf)
	defer cancel()
	notifs, err := api.svc.CreateBulk(c, data.Notification, data.Recipients)
	if err != nil {
		return errors.Wrap(err, "creating notifications")
	}
	return api.created(ctx, notifs)
}

func (api *notificationApi) createRoleBased(ctx echo.Context) error {
	var data RoleBasedCreateRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RoleBasedCreateRequest")
	}
	data.Roles = core.UniqueStrings(data.Roles)
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	c, cancel := requestContext(ctx, api.conf)
	defer cancel()
	notifs, err := api.svc.CreateRoleBased(c, data.Roles, data.Notification)
	if err != nil {
		return errors.Wrap(err, "creating role based notifications")
	}
	return api.created(ctx, notifs)
}

func (api *notificationApi) created(ctx echo.Context, notifs []notification.Notification) error {
	if notifs == nil {
		notifs = []notification.Notification{}
	}
	api.registry.PushAll(notifs)
	return ctx.JSON(http.StatusCreated, CreatedResponse{Created: len(notifs), Notifications: notifs})
}

func (api *notificationApi) broadcast(ctx echo.Context) error {
	var notice delivery.Notice
	if err := ctx.Bind(&notice); err != nil {
		return errors.Wrap(err, "binding to Notice")
	}
	notice.Title = core.CleanString(notice.Title)
	notice.Message = core.CleanString(notice.Message)
	notice.Priority = notification.Priority(core.CleanString(string(notice.Priority), true /* lower */))
	if err := api.validate.Struct(notice); err != nil {
		return err
	}

	delivered := api.registry.Broadcast(delivery.NoticeMessage(notice, api.svc.Now()))
	return ctx.JSON(http.StatusOK, DeliveredResponse{Delivered: delivered})
}

func (api *notificationApi) destroy(ctx echo.Context) error {
	c, cancel := requestContext(ctx, api.conf)
	defer cancel()
	deleted, err := api.svc.Delete(c, "", ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deleting notification")
	}
	if deleted == 0 {
		return errHttpNotFound
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *notificationApi) destroyMany(ctx echo.Context) error {
	ids, err := api.bindIDs(ctx)
	if err != nil {
		return err
	}

	c, cancel := requestContext(ctx, api.conf)
	defer cancel()
	deleted, err := api.svc.DeleteMany(c, "", ids...)
	if err != nil {
		return errors.Wrap(err, "deleting notifications")
	}
	return ctx.JSON(http.StatusOK, UpdatedResponse{Updated: deleted})
}
