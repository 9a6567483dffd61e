package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayshift/backend/internal/models"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil)), &buf
}

func TestRedisNotifierPublishesToUserChannel(t *testing.T) {
	ctx := context.Background()
	client := newRedis(t)
	n := NewRedisNotifier(client, "")
	user := uuid.New()
	assert.Equal(t, "notifications:"+user.String(), n.Channel(user))

	sub := client.Subscribe(ctx, n.Channel(user))
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, n.Notify(ctx, user, "Payment available", "Ready to withdraw", "/bookings/1"))

	select {
	case msg := <-sub.Channel():
		var got Message
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, Message{UserID: user, Title: "Payment available", Body: "Ready to withdraw", DeepLink: "/bookings/1"}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}
}

func TestRedisNotifierCustomPrefix(t *testing.T) {
	n := NewRedisNotifier(newRedis(t), "push")
	user := uuid.New()
	assert.Equal(t, "push:"+user.String(), n.Channel(user))
}

func TestEmitterEnqueuesEventArgs(t *testing.T) {
	var got []NotifyArgs
	e := NewEmitter(func(_ context.Context, args NotifyArgs) error {
		got = append(got, args)
		return nil
	}, nil)

	ev := models.Event{
		Type:      models.EventPaymentAvailable,
		BookingID: uuid.New(),
		UserID:    uuid.New(),
		Title:     "Payment available",
		Body:      "Your earnings are ready",
		DeepLink:  "/bookings/x",
	}
	e.Emit(context.Background(), ev)

	require.Len(t, got, 1)
	assert.Equal(t, ev.Type, got[0].Event)
	assert.Equal(t, ev.BookingID, got[0].BookingID)
	assert.Equal(t, ev.UserID, got[0].UserID)
	assert.Equal(t, ev.DeepLink, got[0].DeepLink)
	assert.Equal(t, "notify_user", got[0].Kind())
}

func TestEmitterLogsEnqueueFailure(t *testing.T) {
	logger, buf := bufferLogger()
	e := NewEmitter(func(context.Context, NotifyArgs) error {
		return errors.New("queue down")
	}, logger)

	assert.NotPanics(t, func() {
		e.Emit(context.Background(), models.Event{Type: models.EventDisputeRaised, BookingID: uuid.New()})
	})
	assert.Contains(t, buf.String(), "enqueue notification failed")
	assert.Contains(t, buf.String(), "queue down")
}

func TestEmitterWithoutQueueDropsAndWarns(t *testing.T) {
	logger, buf := bufferLogger()
	e := NewEmitter(nil, logger)
	e.Emit(context.Background(), models.Event{Type: models.EventWorkStarted})
	assert.Contains(t, buf.String(), "queue not wired")

	called := false
	e.SetInsert(func(context.Context, NotifyArgs) error {
		called = true
		return nil
	})
	e.Emit(context.Background(), models.Event{Type: models.EventWorkStarted})
	assert.True(t, called)
}

type stubNotifier struct {
	err   error
	calls []uuid.UUID
}

func (s *stubNotifier) Notify(_ context.Context, userID uuid.UUID, _, _, _ string) error {
	s.calls = append(s.calls, userID)
	return s.err
}

func TestWorkerDeliversAndReturnsErrors(t *testing.T) {
	user := uuid.New()
	job := &river.Job[NotifyArgs]{Args: NotifyArgs{Event: models.EventBookingCompleted, UserID: user, Title: "Done"}}

	ok := &stubNotifier{}
	require.NoError(t, NewWorker(ok).Work(context.Background(), job))
	assert.Equal(t, []uuid.UUID{user}, ok.calls)

	failing := &stubNotifier{err: errors.New("gateway unavailable")}
	err := NewWorker(failing).Work(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway unavailable")
}

func TestLogNotifier(t *testing.T) {
	logger, buf := bufferLogger()
	user := uuid.New()
	require.NoError(t, LogNotifier{Logger: logger}.Notify(context.Background(), user, "Hi", "Body", "/x"))
	assert.Contains(t, buf.String(), user.String())
	assert.Contains(t, buf.String(), `"deep_link":"/x"`)
}
