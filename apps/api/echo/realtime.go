package echoapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-notify/core"
	"github.com/trezcool/masomo-notify/core/delivery"
)

type realtimeApi struct {
	registry *delivery.Registry
	upgrader websocket.Upgrader
	opts     delivery.WSOptions
	logger   core.Logger
}

func registerRealtimeAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := realtimeApi{
		registry: deps.Registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// browsers connect from the portal's origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
		opts: delivery.WSOptions{
			OutboxSize:   deps.Conf.Delivery.OutboxSize,
			WriteTimeout: deps.Conf.Delivery.WriteTimeout,
			PingInterval: deps.Conf.Delivery.PingInterval,
		},
		logger: deps.Logger,
	}

	g.GET("/realtime", api.connect, jwt)
}

// connect upgrades the request and serves the user's push channel until either side hangs up.
func (api *realtimeApi) connect(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	userID := claims.UserID()

	ws, err := api.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		// the upgrader already replied to the client
		api.logger.Debug(fmt.Sprintf("websocket upgrade for user %s failed: %v", userID, err))
		return nil
	}

	conn := delivery.NewWSConn(ws, api.opts)
	go conn.WritePump()
	_ = conn.Send(delivery.AckMessage(userID, time.Now()))
	api.registry.Register(userID, conn)

	err = conn.ReadPump(func(data []byte) {
		api.registry.HandleInbound(userID, data)
	})
	api.registry.Unregister(userID, conn)
	conn.Close(delivery.ReasonDisconnected)

	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		api.logger.Debug(fmt.Sprintf("realtime connection of user %s ended: %v", userID, err))
	}
	return nil
}
