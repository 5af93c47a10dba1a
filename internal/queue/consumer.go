// Package queue contains the background consumer that listens to the
// session events queue and appends a hand history to HAND_LOG_DIR/hands.log.
package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// HandLogFile is the file name written inside the configured directory.
const HandLogFile = "hands.log"

// StartHandLogConsumer connects to RabbitMQ, declares the events queue
// (durable), and appends one line per message to dir/hands.log.  It keeps
// reconnecting with a capped backoff and only returns once ctx is done.
// Messages that cannot be handled are rejected without requeue so a
// poison message never blocks the queue.
func StartHandLogConsumer(ctx context.Context, url, queueName, dir string, log *zap.Logger) error {
    if log == nil {
        log = zap.NewNop()
    }
    backoff := time.Second
    for {
        conn, err := amqp.Dial(url)
        if err != nil {
            log.Warn("hand-log consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = consumeLoop(ctx, conn, queueName, dir, log)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.Warn("hand-log consumer: consume loop ended; reconnecting", zap.Error(err))
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

// sleep waits for d or until ctx is done; it reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, queueName, dir string, log *zap.Logger) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.Warn("hand-log consumer: set QoS failed", zap.Error(err))
    }

    if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }

    msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := handleMessage(dir, d.Body); err != nil {
                log.Error("hand-log consumer: handle message failed", zap.Error(err))
                _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
                continue
            }
            _ = d.Ack(false)
        }
    }
}

// handleMessage decodes one SessionEvent and appends its line to the log.
func handleMessage(dir string, body []byte) error {
    var ev SessionEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.SessionID == "" {
        return errors.New("event without session_id")
    }
    if err := os.MkdirAll(dir, 0o755); err != nil {
        return fmt.Errorf("mkdir %s: %w", dir, err)
    }
    f, err := os.OpenFile(filepath.Join(dir, HandLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(formatLine(ev)); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// formatLine renders ev as a single human friendly line.  Payouts are
// sorted by user so the output is stable.
func formatLine(ev SessionEvent) string {
    var b strings.Builder
    fmt.Fprintf(&b, "[%s] %s | session_id=%s | revision=%d | status=%s", ev.At, ev.Type, ev.SessionID, ev.Revision, ev.Status)
    if ev.ActingUserID != "" {
        fmt.Fprintf(&b, " | actor=%s", ev.ActingUserID)
    }
    if len(ev.ChangedFields) > 0 {
        fmt.Fprintf(&b, " | changed=[%s]", strings.Join(ev.ChangedFields, ","))
    }
    if ev.HandNumber > 0 {
        fmt.Fprintf(&b, " | hand=%d", ev.HandNumber)
    }
    if ev.Type == EventFinished {
        users := make([]string, 0, len(ev.Payouts))
        for u := range ev.Payouts {
            users = append(users, u)
        }
        sort.Strings(users)
        parts := make([]string, 0, len(users))
        for _, u := range users {
            parts = append(parts, fmt.Sprintf("%s:%d", u, ev.Payouts[u]))
        }
        fmt.Fprintf(&b, " | payouts=[%s]", strings.Join(parts, ","))
        if ev.Aborted {
            b.WriteString(" | aborted")
        }
    }
    b.WriteString("\n")
    return b.String()
}
