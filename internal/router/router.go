package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/poker-table-coordinator/internal/handler" // handlers that drive the coordinator
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check; deps are pinged on every
// probe so a load balancer stops routing to an instance that lost Redis.
func RegisterRoutes(e *echo.Echo, deps ...handler.Pinger) {
	e.GET("/healthz", handler.Health(deps...))
}
