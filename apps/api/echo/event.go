package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-notify/core"
	"github.com/trezcool/masomo-notify/core/automation"
)

type eventApi struct {
	engine   *automation.Engine
	validate *validator.Validate
	logger   core.Logger
}

type EventAccepted struct {
	Event  string `json:"event"`
	Status string `json:"status"`
}

func registerEventAPI(g *echo.Group, jwt, limit echo.MiddlewareFunc, deps ServerDeps) {
	api := eventApi{engine: deps.Engine, validate: deps.Validate, logger: deps.Logger}

	g.POST("/events", api.publish, jwt, adminMiddleware(), limit)
}

// publish hands the event to the engine and returns before it is processed.
func (api *eventApi) publish(ctx echo.Context) error {
	var data EventRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EventRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	ev, err := automation.DecodeEvent(data.Event, data.Payload, api.validate)
	if err != nil {
		return err
	}
	api.engine.Dispatch(ev)
	api.logger.Debug("event " + ev.Name() + " accepted")
	return ctx.JSON(http.StatusAccepted, EventAccepted{Event: ev.Name(), Status: "accepted"})
}
