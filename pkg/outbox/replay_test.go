package outbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type replayStore struct {
	memStore
	events map[int64]*Event
}

func (r *replayStore) GetEventByID(_ context.Context, id int64) (*Event, error) {
	e, ok := r.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return e, nil
}

func (r *replayStore) GetFailedEvents(_ context.Context, limit int) ([]*Event, error) {
	var out []*Event
	for id := int64(1); id <= int64(len(r.events)) && len(out) < limit; id++ {
		if e, ok := r.events[id]; ok && e.Status == StatusFailed {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestReplayEvent(t *testing.T) {
	store := &replayStore{events: map[int64]*Event{
		7: {ID: 7, RoutingKey: "delivery.run.completed", Status: StatusFailed, Payload: json.RawMessage(`{"run_id":"r-9"}`)},
	}}
	pub := &fakePublisher{}
	svc := NewReplayService(store, pub, zap.NewNop())

	require.NoError(t, svc.ReplayEvent(context.Background(), 7))
	assert.Equal(t, []int64{7}, store.sent)
	require.Len(t, pub.got, 1)
	assert.Equal(t, "r-9", pub.got[0].runID)

	assert.ErrorIs(t, svc.ReplayEvent(context.Background(), 8), ErrEventNotFound)
}

func TestReplayFailedEvents_ContinuesPastErrors(t *testing.T) {
	store := &replayStore{events: map[int64]*Event{
		1: {ID: 1, RoutingKey: "notification.failed", Status: StatusFailed, Payload: json.RawMessage(`{}`)},
		2: {ID: 2, RoutingKey: "delivery.alert.error_rate", Status: StatusFailed, Payload: json.RawMessage(`{}`)},
		3: {ID: 3, RoutingKey: "notification.delivered", Status: StatusFailed, Payload: json.RawMessage(`{}`)},
	}}
	pub := &fakePublisher{failKeys: map[string]bool{"delivery.alert.error_rate": true}}
	svc := NewReplayService(store, pub, zap.NewNop())

	n, err := svc.ReplayFailedEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 3}, store.sent)
	assert.Equal(t, []int64{2}, store.failed)
}
