package handler // declare the package name; contains HTTP handlers

import (
    "context"  // context bounds the dependency probe
    "net/http" // net/http provides status codes and response helpers
    "time"     // probe timeout

    "github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Pinger is anything the health check can probe.
type Pinger interface {
    Ping(ctx context.Context) error
}

// PingFunc adapts a plain function, e.g. a Redis or SQL ping, to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Health returns a health-check endpoint used by load balancers.  Without
// dependencies it always answers "ok"; otherwise every dependency is pinged
// and a failure turns the answer into 503.
func Health(deps ...Pinger) echo.HandlerFunc {
    return func(c echo.Context) error {
        ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second)
        defer cancel()
        for _, d := range deps {
            if err := d.Ping(ctx); err != nil {
                return c.String(http.StatusServiceUnavailable, "unavailable")
            }
        }
        return c.String(http.StatusOK, "ok") // write "ok" with a 200 OK status
    }
}
