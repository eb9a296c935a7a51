package queue

import (
    "context"
    "encoding/json"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// Publisher hands session events to RabbitMQ.  It dials once per publish.
type Publisher struct {
    url    string
    logger *zap.Logger
}

func NewPublisher(url string, logger *zap.Logger) *Publisher {
    return &Publisher{url: url, logger: logger.Named("publisher")}
}

// Publish sends ev as a persistent JSON message on SessionEventsQueue.
// Errors are logged and returned; callers decide whether they matter.
func (p *Publisher) Publish(ctx context.Context, ev SessionEvent) error {
    log := p.logger.With(zap.String("event_type", ev.Type), zap.Uint64("session_id", ev.SessionID))

    conn, err := amqp.Dial(p.url)
    if err != nil {
        log.Warn("rabbitmq dial failed", zap.Error(err))
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        log.Warn("rabbitmq channel open failed", zap.Error(err))
        return err
    }
    defer func() { _ = ch.Close() }()

    if _, err := ch.QueueDeclare(SessionEventsQueue, true, false, false, false, nil); err != nil {
        log.Warn("rabbitmq queue declare failed", zap.Error(err))
        return err
    }

    body, err := json.Marshal(ev)
    if err != nil {
        return err
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        MessageId:    ev.ID,
        Type:         ev.Type,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", SessionEventsQueue, false, false, pub); err != nil {
        log.Warn("rabbitmq publish failed", zap.Error(err))
        return err
    }
    log.Debug("session event published", zap.String("event_id", ev.ID))
    return nil
}

// LogPublisher is used when the queue is disabled: events only go to the
// application log.
type LogPublisher struct {
    Logger *zap.Logger
}

func (p LogPublisher) Publish(_ context.Context, ev SessionEvent) error {
    p.Logger.Info("session event",
        zap.String("event_type", ev.Type),
        zap.String("event_id", ev.ID),
        zap.Uint64("session_id", ev.SessionID),
        zap.Uint64("branch_id", ev.BranchID),
        zap.String("total_amount", ev.TotalAmount))
    return nil
}
