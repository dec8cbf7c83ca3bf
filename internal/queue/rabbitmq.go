package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/david/bid-matcher/internal/config"
)

// MatchRequest is the message the retrieval job (or the ops API) publishes
// for each record that needs matching. RecordKey is the object key in the
// records bucket; RecordID is the solicitation number used for output keys.
type MatchRequest struct {
	RecordID    string    `json:"record_id"`
	RecordKey   string    `json:"record_key"`
	RequestedAt time.Time `json:"requested_at"`
}

// Queue wraps the AMQP connection for the match-request exchange and queue.
type Queue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     config.RabbitMQConfig
	logger  *zap.Logger
}

func Connect(cfg config.RabbitMQConfig, logger *zap.Logger) (*Queue, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connecting to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	q := &Queue{conn: conn, channel: ch, cfg: cfg, logger: logger}
	if err := q.setup(); err != nil {
		q.Close()
		return nil, err
	}
	return q, nil
}

func (q *Queue) setup() error {
	if err := q.channel.ExchangeDeclare(q.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring exchange %s: %w", q.cfg.Exchange, err)
	}
	if _, err := q.channel.QueueDeclare(q.cfg.MatchQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring queue %s: %w", q.cfg.MatchQueue, err)
	}
	if err := q.channel.QueueBind(q.cfg.MatchQueue, q.cfg.RoutingKey, q.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("binding queue %s: %w", q.cfg.MatchQueue, err)
	}
	return nil
}

// PublishMatchRequest publishes one persistent match request.
func (q *Queue) PublishMatchRequest(ctx context.Context, req MatchRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding match request: %w", err)
	}

	err = q.channel.PublishWithContext(ctx, q.cfg.Exchange, q.cfg.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publishing match request %s: %w", req.RecordID, err)
	}

	q.logger.Info("published match request",
		zap.String("record_id", req.RecordID),
		zap.String("routing_key", q.cfg.RoutingKey),
	)
	return nil
}

// Consume delivers match requests to handler until ctx is cancelled, running
// up to concurrency records in parallel. A handler error nacks the message
// without requeue; the outcome writer has already recorded the failure by
// then.
func (q *Queue) Consume(ctx context.Context, concurrency int, handler func(ctx context.Context, req MatchRequest) error) error {
	if concurrency < 1 {
		concurrency = 1
	}
	if err := q.channel.Qos(q.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("setting prefetch: %w", err)
	}

	deliveries, err := q.channel.Consume(q.cfg.MatchQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("starting consumer on %s: %w", q.cfg.MatchQueue, err)
	}

	q.logger.Info("consuming match requests",
		zap.String("queue", q.cfg.MatchQueue),
		zap.Int("concurrency", concurrency),
	)

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				wg.Wait()
				return fmt.Errorf("delivery channel closed")
			}

			var req MatchRequest
			if err := json.Unmarshal(d.Body, &req); err != nil {
				q.logger.Error("discarding malformed match request", zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}

			sem <- struct{}{}
			wg.Add(1)
			go func(d amqp.Delivery, req MatchRequest) {
				defer wg.Done()
				defer func() { <-sem }()

				if err := handler(ctx, req); err != nil {
					q.logger.Error("match request handling failed",
						zap.String("record_id", req.RecordID),
						zap.Error(err),
					)
					_ = d.Nack(false, false)
					return
				}
				_ = d.Ack(false)
			}(d, req)
		}
	}
}

func (q *Queue) Close() error {
	if q.channel != nil {
		_ = q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
