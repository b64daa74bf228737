package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-notify/core"
	"github.com/trezcool/masomo-notify/core/automation"
)

type ruleApi struct {
	svc  *automation.RuleService
	conf *core.Config
}

func registerRuleAPI(g *echo.Group, jwt, limit echo.MiddlewareFunc, deps ServerDeps) {
	api := ruleApi{svc: deps.RuleSvc, conf: deps.Conf}

	rg := g.Group("/automation/rules", jwt, adminMiddleware())
	rg.GET("", api.list)
	rg.POST("", api.create, limit)
	rg.GET("/:id", api.retrieve)
	rg.PUT("/:id", api.update, limit)
	rg.DELETE("/:id", api.destroy, limit)
	rg.PATCH("/:id/toggle", api.toggle, limit)
}

// Handlers

func (api *ruleApi) list(ctx echo.Context) error {
	c, cancel := requestContext(ctx, api.conf)
	defer cancel()
	rules, err := api.svc.List(c)
	if err != nil {
		return errors.Wrap(err, "listing rules")
	}
	return ctx.JSON(http.StatusOK, rules)
}

func (api *ruleApi) retrieve(ctx echo.Context) error {
	c, cancel := requestContext(ctx, api.conf)
	defer cancel()
	rule, err := api.svc.Get(c, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting rule")
	}
	return ctx.JSON(http.StatusOK, rule)
}

func (api *ruleApi) create(ctx echo.Context) error {
	var data automation.NewRule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRule")
	}

	c, cancel := requestContext(ctx, api.conf)
	defer cancel()
	rule, err := api.svc.Create(c, data)
	if err != nil {
		return errors.Wrap(err, "creating rule")
	}
	return ctx.JSON(http.StatusCreated, rule)
}

func (api *ruleApi) update(ctx echo.Context) error {
	var data automation.NewRule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRule")
	}

	c, cancel := requestContext(ctx, api.conf)
	defer cancel()
	rule, err := api.svc.Update(c, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating rule")
	}
	return ctx.JSON(http.StatusOK, rule)
}

func (api *ruleApi) toggle(ctx echo.Context) error {
	c, cancel := requestContext(ctx, api.conf)
	defer cancel()
	rule, err := api.svc.Toggle(c, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "toggling rule")
	}
	return ctx.JSON(http.StatusOK, rule)
}

func (api *ruleApi) destroy(ctx echo.Context) error {
	c, cancel := requestContext(ctx, api.conf)
	defer cancel()
	if err := api.svc.Delete(c, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting rule")
	}
	return ctx.NoContent(http.StatusNoContent)
}
