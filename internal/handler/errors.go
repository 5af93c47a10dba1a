package handler

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/poker-table-coordinator/internal/model"
    "github.com/iliyamo/poker-table-coordinator/internal/session"
    "github.com/iliyamo/poker-table-coordinator/internal/wallet"
)

// statusFor maps a coordinator error to an HTTP status using its Kind.
// A few sentinels get a more specific code than their kind.
func statusFor(err error) int {
    switch {
    case errors.Is(err, wallet.ErrInsufficientFunds):
        return http.StatusPaymentRequired
    case errors.Is(err, session.ErrSessionExists):
        return http.StatusConflict
    case errors.Is(err, session.ErrNotSeated):
        return http.StatusForbidden
    case errors.Is(err, session.ErrSessionFrozen):
        return http.StatusLocked
    case errors.Is(err, model.ErrInvalidStake):
        return http.StatusBadRequest
    }
    switch session.Classify(err) {
    case session.KindRetryable:
        return http.StatusConflict
    case session.KindRejected:
        return http.StatusUnprocessableEntity
    case session.KindNotFound:
        return http.StatusNotFound
    case session.KindFatal:
        return http.StatusInternalServerError
    }
    return http.StatusServiceUnavailable
}

// writeError answers with {"error", "kind"}.  Retryable errors carry a
// Retry-After so clients back off before trying again.
func writeError(c echo.Context, err error) error {
    kind := session.Classify(err)
    if kind == session.KindRetryable {
        c.Response().Header().Set("Retry-After", "1")
    }
    return c.JSON(statusFor(err), echo.Map{"error": err.Error(), "kind": kind.String()})
}
