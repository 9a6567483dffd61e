// Package notify turns committed domain events into user notifications.
// Events are enqueued as River jobs so delivery never blocks or fails a
// financial transaction.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"

	"github.com/dayshift/backend/internal/metrics"
	"github.com/dayshift/backend/internal/models"
)

const DefaultChannelPrefix = "notifications"

type NotifyArgs struct {
	Event     string    `json:"event"`
	BookingID uuid.UUID `json:"booking_id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	DeepLink  string    `json:"deep_link"`
}

func (NotifyArgs) Kind() string { return "notify_user" }

func argsFromEvent(ev models.Event) NotifyArgs {
	return NotifyArgs{
		Event:     ev.Type,
		BookingID: ev.BookingID,
		UserID:    ev.UserID,
		Title:     ev.Title,
		Body:      ev.Body,
		DeepLink:  ev.DeepLink,
	}
}

// InsertFunc enqueues a notification job.
type InsertFunc func(ctx context.Context, args NotifyArgs) error

// Emitter satisfies the services' EventEmitter by enqueuing a job per event.
type Emitter struct {
	mu     sync.Mutex
	insert InsertFunc
	logger *slog.Logger
}

func NewEmitter(insert InsertFunc, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{insert: insert, logger: logger}
}

// SetInsert wires the enqueue function once the River client exists.
func (e *Emitter) SetInsert(insert InsertFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.insert = insert
}

// Emit enqueues ev. Failures are logged and dropped.
func (e *Emitter) Emit(ctx context.Context, ev models.Event) {
	e.mu.Lock()
	insert := e.insert
	e.mu.Unlock()
	if insert == nil {
		e.logger.Warn("notification dropped: queue not wired", "event", ev.Type, "booking_id", ev.BookingID)
		return
	}
	if err := insert(ctx, argsFromEvent(ev)); err != nil {
		e.logger.Error("enqueue notification failed", "event", ev.Type, "booking_id", ev.BookingID, "user_id", ev.UserID, "error", err)
	}
}

// Notifier delivers a message to one user.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, title, body, deepLink string) error
}

// Worker delivers queued notifications. Delivery errors are returned so River
// retries them.
type Worker struct {
	river.WorkerDefaults[NotifyArgs]
	notifier Notifier
}

func NewWorker(n Notifier) *Worker {
	return &Worker{notifier: n}
}

func (w *Worker) Work(ctx context.Context, job *river.Job[NotifyArgs]) error {
	a := job.Args
	if err := w.notifier.Notify(ctx, a.UserID, a.Title, a.Body, a.DeepLink); err != nil {
		metrics.IncNotification(a.Event, "failed")
		return fmt.Errorf("notify user %s: %w", a.UserID, err)
	}
	metrics.IncNotification(a.Event, "sent")
	return nil
}

// Message is the JSON published to a user's channel.
type Message struct {
	UserID   uuid.UUID `json:"user_id"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	DeepLink string    `json:"deep_link"`
}

// RedisNotifier publishes on "<prefix>:<user_id>" for the push gateway.
type RedisNotifier struct {
	client *redis.Client
	prefix string
}

func NewRedisNotifier(client *redis.Client, prefix string) *RedisNotifier {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisNotifier{client: client, prefix: prefix}
}

// Channel returns the pub/sub channel for a user.
func (n *RedisNotifier) Channel(userID uuid.UUID) string {
	return n.prefix + ":" + userID.String()
}

func (n *RedisNotifier) Notify(ctx context.Context, userID uuid.UUID, title, body, deepLink string) error {
	payload, err := json.Marshal(Message{UserID: userID, Title: title, Body: body, DeepLink: deepLink})
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, n.Channel(userID), payload).Err()
}

// LogNotifier writes notifications to the log. Used when Redis is not configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, userID uuid.UUID, title, body, deepLink string) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification", "user_id", userID, "title", title, "body", body, "deep_link", deepLink)
	return nil
}
