// internal/services/notification_service.go
package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/unimarket/unimarket-backend/internal/events"
)

// NotificationService publishes marketplace events to a RabbitMQ topic
// exchange so downstream consumers (email, push, analytics) can react.
// Publishing is strictly best-effort: a broker failure is logged and
// swallowed, never surfaced to the request that produced the event.
type NotificationService struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewNotificationService connects to the broker and declares the topic
// exchange. Returns (nil, err) when the broker is unreachable; callers
// typically fall back to events.NopEmitter.
func NewNotificationService(url, exchange string) (*NotificationService, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := channel.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}

	logrus.WithField("exchange", exchange).Info("Notification emitter connected")

	return &NotificationService{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
	}, nil
}

// Emit publishes the event with its name as the routing key
// (e.g. "reservation.created"). Failures are logged, not returned.
func (s *NotificationService) Emit(ctx context.Context, event events.Event) {
	body, err := json.Marshal(event)
	if err != nil {
		logrus.WithError(err).WithField("event", event.Name).Error("failed to encode event")
		return
	}

	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.channel.PublishWithContext(publishCtx,
		s.exchange,
		event.Name,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"event":      event.Name,
			"listing_id": event.ListingID,
		}).Warn("failed to publish event")
		return
	}

	logrus.WithFields(logrus.Fields{
		"event":      event.Name,
		"listing_id": event.ListingID,
	}).Debug("event published")
}

func (s *NotificationService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.channel != nil {
		s.channel.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
