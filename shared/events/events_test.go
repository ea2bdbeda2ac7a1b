package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPublisher_Publish(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	err := NewPublisher(client).Publish(ctx, AccountEventsStream, AccountRegistered, AccountRegisteredEvent{
		AccountID: "acc-1",
		Username:  "Alice",
		Role:      "ghost",
	})
	require.NoError(t, err)

	messages, err := client.XRange(ctx, AccountEventsStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, messages, 1)

	var event Event
	require.NoError(t, json.Unmarshal([]byte(messages[0].Values["event"].(string)), &event))
	assert.Equal(t, AccountRegistered, event.Type)
	assert.False(t, event.Timestamp.IsZero())

	payload, err := Decode[AccountRegisteredEvent](event)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", payload.AccountID)
	assert.Equal(t, "Alice", payload.Username)
}

func TestSubscriber_ProcessMessage(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	var got []Event
	s := NewSubscriber(newTestClient(t), SubscriberConfig{
		Group:    "audit",
		Consumer: "test",
		Stream:   AccountEventsStream,
		Logger:   logger,
		Handler: func(ctx context.Context, event Event) error {
			got = append(got, event)
			return nil
		},
	})

	raw, _ := json.Marshal(Event{Type: AccountRoleUpdated, Data: AccountRoleUpdatedEvent{AccountID: "acc-1", NewRole: "student"}})
	require.NoError(t, s.processMessage(context.Background(), redis.XMessage{ID: "1-0", Values: map[string]any{"event": string(raw)}}))
	require.Len(t, got, 1)
	assert.Equal(t, AccountRoleUpdated, got[0].Type)

	err := s.processMessage(context.Background(), redis.XMessage{ID: "2-0", Values: map[string]any{"other": "x"}})
	assert.Error(t, err)

	err = s.processMessage(context.Background(), redis.XMessage{ID: "3-0", Values: map[string]any{"event": "{broken"}})
	assert.Error(t, err)
}
