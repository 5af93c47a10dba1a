package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/poker-table-coordinator/internal/handler"
	"github.com/iliyamo/poker-table-coordinator/internal/middleware"
)

// RegisterSessions mounts the session API under /v1/sessions.  Every route
// needs a bearer token.  limit guards the endpoints players hammer during
// a hand (actions and leave); abort, recover and finalize are admin only.
func RegisterSessions(e *echo.Echo, h *handler.SessionHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	if limit == nil {
		limit = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	g := e.Group("/v1/sessions", middleware.JWTAuth(jwtSecret))

	g.POST("", h.Create)
	g.GET("/:id", h.Get)

	// Lobby
	g.GET("/:id/lobby", h.Lobby)
	g.POST("/:id/lobby", h.Join)
	g.DELETE("/:id/lobby", h.LeaveLobby)

	// Hand
	g.POST("/:id/start", h.Start)
	g.POST("/:id/actions", h.Action, limit)
	g.POST("/:id/leave", h.Leave, limit)

	admin := middleware.RequireRole(middleware.RoleAdmin)
	g.POST("/:id/abort", h.Abort, admin)
	g.POST("/:id/recover", h.Recover, admin)
	g.POST("/:id/finalize", h.Finalize, admin)
}
