// Package queue_publisher publishes session events to RabbitMQ.  Errors
// are logged and returned so callers can ignore failures without
// interrupting the request flow; the session view in Redis stays the
// source of truth.
package queue_publisher

import (
    "context"
    "encoding/json"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"

    "github.com/iliyamo/poker-table-coordinator/internal/model"
    q "github.com/iliyamo/poker-table-coordinator/internal/queue"
    "github.com/iliyamo/poker-table-coordinator/internal/session"
)

// Publisher sends SessionEvents to a single durable queue.  A connection
// is dialled per publish; event volume is one message per revision.
type Publisher struct {
    url   string
    queue string
    log   *zap.Logger
    now   func() time.Time
}

// NewPublisher returns a Publisher for the given broker URL and queue.
func NewPublisher(url, queue string, log *zap.Logger) *Publisher {
    if log == nil {
        log = zap.NewNop()
    }
    return &Publisher{url: url, queue: queue, log: log, now: time.Now}
}

// Publish sends ev as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, ev q.SessionEvent) error {
    conn, err := amqp.Dial(p.url)
    if err != nil {
        p.log.Warn("rabbitmq: dial failed", zap.Error(err))
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        p.log.Warn("rabbitmq: channel open failed", zap.Error(err))
        return err
    }
    defer func() { _ = ch.Close() }()

    // Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(
        p.queue, // name
        true,    // durable
        false,   // autoDelete
        false,   // exclusive
        false,   // noWait
        nil,     // args
    ); err != nil {
        p.log.Warn("rabbitmq: queue declare failed", zap.Error(err))
        return err
    }

    body, err := json.Marshal(ev)
    if err != nil {
        p.log.Warn("rabbitmq: marshal event failed", zap.Error(err))
        return err
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent, // store on disk
        Timestamp:    p.now().UTC(),
        MessageId:    ev.SessionID + ":" + ev.Type,
        Body:         body,
    }

    if err := ch.PublishWithContext(ctx,
        "",      // default exchange
        p.queue, // routing key = queue name
        false,   // mandatory
        false,   // immediate
        pub,
    ); err != nil {
        p.log.Warn("rabbitmq: publish failed", zap.Error(err), zap.String("session_id", ev.SessionID))
        return err
    }
    return nil
}

// PublishResult publishes every event Events derives from res.  It stops
// at the first failure.
func (p *Publisher) PublishResult(ctx context.Context, res session.Result) error {
    for _, ev := range Events(res, p.now()) {
        if err := p.Publish(ctx, ev); err != nil {
            return err
        }
    }
    return nil
}

// PublishSettlement publishes the finished event of a settlement that
// completed outside a mutation, e.g. through FinalizeHolds.
func (p *Publisher) PublishSettlement(ctx context.Context, s session.Settlement, v model.Session) error {
    return p.Publish(ctx, SettlementEvent(s, v, p.now()))
}

// Events turns a mutation result into the messages consumers see: one
// revision event when a revision was persisted, followed by a finished
// event once the hand is settled.  A FINISHED view whose settlement is
// still pending gets no finished event; FinalizeHolds produces it later.
func Events(res session.Result, at time.Time) []q.SessionEvent {
    v := res.View
    var out []q.SessionEvent
    if res.Diff.Revision > 0 {
        out = append(out, q.SessionEvent{
            Type:          q.EventRevision,
            SessionID:     v.ID,
            Revision:      res.Diff.Revision,
            Status:        string(v.Status),
            ChangedFields: res.Diff.ChangedFields,
            ActingUserID:  res.Diff.ActingUserID,
            HandNumber:    v.HandNumber,
            At:            at.UTC().Format(time.RFC3339),
        })
    }
    if res.Settlement != nil && v.Status == model.StatusFinished {
        out = append(out, SettlementEvent(*res.Settlement, v, at))
    }
    return out
}

// SettlementEvent builds the finished event for s against the view it
// settled.
func SettlementEvent(s session.Settlement, v model.Session, at time.Time) q.SessionEvent {
    return q.SessionEvent{
        Type:       q.EventFinished,
        SessionID:  s.SessionID,
        Revision:   v.Revision,
        Status:     string(v.Status),
        HandNumber: v.HandNumber,
        Payouts:    s.Payouts,
        Aborted:    s.Aborted,
        At:         at.UTC().Format(time.RFC3339),
    }
}
