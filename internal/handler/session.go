package handler // handler defines http handlers

import (
    "context"  // context for the background event publish
    "net/http" // status codes
    "strings"  // trimming request values
    "time"     // publish timeout

    "github.com/labstack/echo/v4" // echo defines request context types
    "go.uber.org/zap"             // structured logging

    "github.com/iliyamo/poker-table-coordinator/internal/lobby"
    "github.com/iliyamo/poker-table-coordinator/internal/middleware"
    "github.com/iliyamo/poker-table-coordinator/internal/model"
    "github.com/iliyamo/poker-table-coordinator/internal/session"
)

// Coordinator is the part of session.Coordinator the HTTP layer drives.
type Coordinator interface {
    CreateSession(ctx context.Context, sessionID string, stake *model.Stake) (model.Session, error)
    Get(ctx context.Context, sessionID string) (model.Session, error)
    Join(ctx context.Context, sessionID, userID, displayName string) (lobby.JoinResult, error)
    LeaveLobby(ctx context.Context, sessionID, userID string) (lobby.LeaveResult, error)
    Members(ctx context.Context, sessionID string) ([]model.LobbyEntry, error)
    StartHand(ctx context.Context, sessionID string) (session.Result, error)
    SubmitAction(ctx context.Context, sessionID, userID string, action model.Action) (session.Result, error)
    Leave(ctx context.Context, sessionID, userID string) (session.Result, error)
    AbortHand(ctx context.Context, sessionID string) (session.Result, error)
    Recover(ctx context.Context, sessionID string) (session.Result, error)
    FinalizeHolds(ctx context.Context, sessionID string) (*session.Settlement, error)
}

// EventPublisher ships session events to the broker.
type EventPublisher interface {
    PublishResult(ctx context.Context, res session.Result) error
    PublishSettlement(ctx context.Context, s session.Settlement, v model.Session) error
}

// SessionHandler exposes the coordinator over HTTP.  Every successful
// mutation is answered first and published afterwards; a broker outage
// never fails a request.
type SessionHandler struct {
    Coord  Coordinator    // Coord performs the session operations
    Events EventPublisher // Events is optional; nil disables publishing
    Log    *zap.Logger
    // PublishTimeout bounds each background publish.
    PublishTimeout time.Duration
}

// NewSessionHandler constructs a SessionHandler and panics if the
// coordinator is missing.
func NewSessionHandler(coord Coordinator, events EventPublisher, log *zap.Logger) *SessionHandler {
    if coord == nil {
        panic("nil coordinator passed to NewSessionHandler")
    }
    if log == nil {
        log = zap.NewNop()
    }
    return &SessionHandler{Coord: coord, Events: events, Log: log, PublishTimeout: 5 * time.Second}
}

// createRequest is the optional body of POST /v1/sessions.  Stake names a
// preset; otherwise the blinds and min buy-in describe a custom stake.
type createRequest struct {
    SessionID  string `json:"session_id"`
    Stake      string `json:"stake"`
    SmallBlind int64  `json:"small_blind"`
    BigBlind   int64  `json:"big_blind"`
    MinBuyIn   int64  `json:"min_buy_in"`
}

// stake resolves the requested stake; nil when none was asked for.
func (r createRequest) stake() (*model.Stake, error) {
    name := strings.TrimSpace(r.Stake)
    if name != "" && !strings.EqualFold(name, model.StakeCustom) {
        s, err := model.PresetStake(r.Stake)
        if err != nil {
            return nil, err
        }
        return &s, nil
    }
    if name == "" && r.SmallBlind == 0 && r.BigBlind == 0 && r.MinBuyIn == 0 {
        return nil, nil
    }
    s, err := model.CustomStake(r.SmallBlind, r.BigBlind, r.MinBuyIn)
    if err != nil {
        return nil, err
    }
    return &s, nil
}

// Create opens a WAITING table.  An empty body gets a generated id and
// lets the engine pick the blinds.
func (h *SessionHandler) Create(c echo.Context) error {
    var body createRequest
    if c.Request().ContentLength > 0 {
        if err := c.Bind(&body); err != nil {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
        }
    }
    stake, err := body.stake()
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    v, err := h.Coord.CreateSession(c.Request().Context(), strings.TrimSpace(body.SessionID), stake)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusCreated, present(v, middleware.UserID(c)))
}

// Get returns the latest view as seen by the caller.
func (h *SessionHandler) Get(c echo.Context) error {
    v, err := h.Coord.Get(c.Request().Context(), c.Param("id"))
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, present(v, middleware.UserID(c)))
}

// Lobby lists the waiting members in join order.
func (h *SessionHandler) Lobby(c echo.Context) error {
    entries, err := h.Coord.Members(c.Request().Context(), c.Param("id"))
    if err != nil {
        return writeError(c, err)
    }
    if entries == nil {
        entries = []model.LobbyEntry{}
    }
    return c.JSON(http.StatusOK, echo.Map{"members": entries})
}

// joinStatus maps a lobby outcome onto a status code and label.
var joinStatus = map[lobby.JoinResult]struct {
    code  int
    label string
}{
    lobby.JoinOK:            {http.StatusCreated, "joined"},
    lobby.JoinAlreadyMember: {http.StatusOK, "already_member"},
    lobby.JoinFull:          {http.StatusConflict, "lobby_full"},
    lobby.JoinClosed:        {http.StatusConflict, "lobby_closed"},
}

// Join adds the caller to the lobby under the name carried by the token.
func (h *SessionHandler) Join(c echo.Context) error {
    uid := middleware.UserID(c)
    r, err := h.Coord.Join(c.Request().Context(), c.Param("id"), uid, middleware.DisplayName(c))
    if err != nil {
        return writeError(c, err)
    }
    st, ok := joinStatus[r]
    if !ok {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "unexpected lobby result"})
    }
    return c.JSON(st.code, echo.Map{"result": st.label})
}

// LeaveLobby removes the caller from the lobby.
func (h *SessionHandler) LeaveLobby(c echo.Context) error {
    r, err := h.Coord.LeaveLobby(c.Request().Context(), c.Param("id"), middleware.UserID(c))
    if err != nil {
        return writeError(c, err)
    }
    if r == lobby.LeaveNotMember {
        return c.JSON(http.StatusNotFound, echo.Map{"result": "not_member"})
    }
    return c.NoContent(http.StatusNoContent)
}

// Start deals a hand to the current lobby.
func (h *SessionHandler) Start(c echo.Context) error {
    res, err := h.Coord.StartHand(c.Request().Context(), c.Param("id"))
    return h.respond(c, res, err)
}

// Action submits the caller's move.
func (h *SessionHandler) Action(c echo.Context) error {
    var a model.Action
    if err := c.Bind(&a); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    a.Kind = model.ActionKind(strings.ToLower(strings.TrimSpace(string(a.Kind))))
    if !a.Kind.Valid() {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown action kind"})
    }
    if a.Amount < 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount must not be negative"})
    }
    res, err := h.Coord.SubmitAction(c.Request().Context(), c.Param("id"), middleware.UserID(c), a)
    return h.respond(c, res, err)
}

// Leave takes the caller out of the lobby or the running hand.
func (h *SessionHandler) Leave(c echo.Context) error {
    res, err := h.Coord.Leave(c.Request().Context(), c.Param("id"), middleware.UserID(c))
    return h.respond(c, res, err)
}

// Abort calls the hand off and refunds every hold.
func (h *SessionHandler) Abort(c echo.Context) error {
    res, err := h.Coord.AbortHand(c.Request().Context(), c.Param("id"))
    return h.respond(c, res, err)
}

// Recover reconciles a frozen session.
func (h *SessionHandler) Recover(c echo.Context) error {
    res, err := h.Coord.Recover(c.Request().Context(), c.Param("id"))
    return h.respond(c, res, err)
}

// Finalize completes a settlement left pending by an earlier failure.
func (h *SessionHandler) Finalize(c echo.Context) error {
    ctx := c.Request().Context()
    id := c.Param("id")
    s, err := h.Coord.FinalizeHolds(ctx, id)
    if err != nil {
        return writeError(c, err)
    }
    if v, err := h.Coord.Get(ctx, id); err == nil {
        h.publish(func(ctx context.Context) error {
            return h.Events.PublishSettlement(ctx, *s, v)
        })
    }
    return c.JSON(http.StatusOK, s)
}

// respond writes a mutation result and publishes its events.
func (h *SessionHandler) respond(c echo.Context, res session.Result, err error) error {
    if err != nil {
        return writeError(c, err)
    }
    h.publish(func(ctx context.Context) error { return h.Events.PublishResult(ctx, res) })

    res.View = present(res.View, middleware.UserID(c))
    code := http.StatusOK
    if res.SettlementPending {
        code = http.StatusAccepted
    }
    return c.JSON(code, res)
}

// publish runs fn in the background, detached from the request.
func (h *SessionHandler) publish(fn func(ctx context.Context) error) {
    if h.Events == nil {
        return
    }
    go func() {
        ctx, cancel := context.WithTimeout(context.Background(), h.PublishTimeout)
        defer cancel()
        if err := fn(ctx); err != nil {
            h.Log.Warn("session event not published", zap.Error(err))
        }
    }()
}

// present strips what the caller must not see: the engine blob always,
// and other players' hole cards until the hand is over.
func present(v model.Session, viewer string) model.Session {
    v.EngineState = nil
    if v.Status == model.StatusFinished {
        return v
    }
    ps := make([]model.Participant, len(v.Participants))
    for i, p := range v.Participants {
        if p.UserID != viewer {
            p.HoleCards = nil
        }
        ps[i] = p
    }
    v.Participants = ps
    return v
}
