package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/poker-table-coordinator/internal/handler"
	"github.com/iliyamo/poker-table-coordinator/internal/lobby"
	"github.com/iliyamo/poker-table-coordinator/internal/middleware"
	"github.com/iliyamo/poker-table-coordinator/internal/model"
	"github.com/iliyamo/poker-table-coordinator/internal/session"
	"github.com/iliyamo/poker-table-coordinator/internal/utils"
)

// missing reports every session as unknown.
type missing struct{}

func (missing) CreateSession(context.Context, string, *model.Stake) (model.Session, error) {
	return model.Session{}, session.ErrSessionExists
}
func (missing) Get(context.Context, string) (model.Session, error) {
	return model.Session{}, session.ErrNotFound
}
func (missing) Join(context.Context, string, string, string) (lobby.JoinResult, error) {
	return 0, session.ErrNotFound
}
func (missing) LeaveLobby(context.Context, string, string) (lobby.LeaveResult, error) {
	return 0, session.ErrNotFound
}
func (missing) Members(context.Context, string) ([]model.LobbyEntry, error) {
	return nil, session.ErrNotFound
}
func (missing) StartHand(context.Context, string) (session.Result, error) {
	return session.Result{}, session.ErrNotFound
}
func (missing) SubmitAction(context.Context, string, string, model.Action) (session.Result, error) {
	return session.Result{}, session.ErrNotFound
}
func (missing) Leave(context.Context, string, string) (session.Result, error) {
	return session.Result{}, session.ErrNotFound
}
func (missing) AbortHand(context.Context, string) (session.Result, error) {
	return session.Result{}, session.ErrNotFound
}
func (missing) Recover(context.Context, string) (session.Result, error) {
	return session.Result{}, session.ErrNotFound
}
func (missing) FinalizeHolds(context.Context, string) (*session.Settlement, error) {
	return nil, session.ErrNotFound
}

func TestRoutes(t *testing.T) {
	const secret = "router-secret"
	e := echo.New()
	RegisterRoutes(e)
	RegisterSessions(e, handler.NewSessionHandler(missing{}, nil, nil), secret, nil)

	token := func(cl utils.Claims) string {
		tok, err := utils.NewAccessToken(secret, cl, time.Minute)
		require.NoError(t, err)
		return "Bearer " + tok.Token
	}
	player := token(utils.Claims{UserID: "alice"})
	admin := token(utils.Claims{UserID: "ops", Role: middleware.RoleAdmin})

	cases := []struct {
		method, path, auth string
		want               int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/v1/sessions/t1", "", http.StatusUnauthorized},
		{http.MethodGet, "/v1/sessions/t1", player, http.StatusNotFound},
		{http.MethodPost, "/v1/sessions", player, http.StatusConflict},
		{http.MethodGet, "/v1/sessions/t1/lobby", player, http.StatusNotFound},
		{http.MethodPost, "/v1/sessions/t1/lobby", player, http.StatusNotFound},
		{http.MethodDelete, "/v1/sessions/t1/lobby", player, http.StatusNotFound},
		{http.MethodPost, "/v1/sessions/t1/start", player, http.StatusNotFound},
		{http.MethodPost, "/v1/sessions/t1/leave", player, http.StatusNotFound},
		{http.MethodPost, "/v1/sessions/t1/abort", player, http.StatusForbidden},
		{http.MethodPost, "/v1/sessions/t1/abort", admin, http.StatusNotFound},
		{http.MethodPost, "/v1/sessions/t1/recover", player, http.StatusForbidden},
		{http.MethodPost, "/v1/sessions/t1/recover", admin, http.StatusNotFound},
		{http.MethodPost, "/v1/sessions/t1/finalize", admin, http.StatusNotFound},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		if tc.auth != "" {
			req.Header.Set("Authorization", tc.auth)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code, "%s %s", tc.method, tc.path)
	}
}
