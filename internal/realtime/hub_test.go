package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePubSub struct {
	published []string
}

func (f *fakePubSub) PublishRoomEvent(room, event string, payload []byte) error {
	f.published = append(f.published, room+"/"+event)
	return nil
}

func (f *fakePubSub) SubscribeRoom(room string, handler func(event string, payload []byte)) (func(), error) {
	return func() {}, nil
}

func testClient(room string) *Client {
	return &Client{
		ID:   room + "-client",
		Room: room,
		send: make(chan WSMessage, 8),
	}
}

func TestBroadcastReachesRoomClientsOnly(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	inRoom := testClient("consult_room_1")
	elsewhere := testClient("other_room")
	hub.Register(inRoom)
	hub.Register(elsewhere)

	hub.Broadcast("consult_room_1", "session_state", map[string]string{"state": "in_call"})

	select {
	case msg := <-inRoom.send:
		assert.Equal(t, "session_state", msg.Event)
		var payload map[string]string
		require.NoError(t, json.Unmarshal(msg.Data, &payload))
		assert.Equal(t, "in_call", payload["state"])
	default:
		t.Fatal("room client did not receive the broadcast")
	}
	assert.Empty(t, elsewhere.send)
}

func TestUnregisterStopsDelivery(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	c := testClient("consult_room_1")
	hub.Register(c)
	require.Equal(t, 1, hub.RoomCount("consult_room_1"))

	hub.Unregister(c)
	assert.Equal(t, 0, hub.RoomCount("consult_room_1"))

	hub.Broadcast("consult_room_1", "notice", map[string]string{"kind": "chat"})
	assert.Empty(t, c.send)
}

func TestBroadcastAndPublishHitsRedis(t *testing.T) {
	ps := &fakePubSub{}
	hub := NewHub(zap.NewNop(), ps, ps)
	c := testClient("consult_room_1")
	hub.Register(c)

	hub.BroadcastAndPublish("consult_room_1", "chat_message", map[string]string{"content": "hi"})

	require.Len(t, ps.published, 1)
	assert.Equal(t, "consult_room_1/chat_message", ps.published[0])
	select {
	case msg := <-c.send:
		assert.Equal(t, "chat_message", msg.Event)
	default:
		t.Fatal("local client did not receive the broadcast")
	}
}

type loopbackPubSub struct {
	handlers map[string]func(event string, payload []byte)
}

func newLoopbackPubSub() *loopbackPubSub {
	return &loopbackPubSub{handlers: make(map[string]func(event string, payload []byte))}
}

func (l *loopbackPubSub) SubscribeRoom(room string, handler func(event string, payload []byte)) (func(), error) {
	l.handlers[room] = handler
	return func() { delete(l.handlers, room) }, nil
}

func (l *loopbackPubSub) PublishRoomEvent(room, event string, payload []byte) error {
	if h, ok := l.handlers[room]; ok {
		h(event, payload)
	}
	return nil
}

func TestPublishOnlyDeliversExactlyOnce(t *testing.T) {
	ps := newLoopbackPubSub()
	hub := NewHub(zap.NewNop(), ps, ps)
	c := testClient("consult_room_1")
	hub.Register(c)

	hub.PublishOnly("consult_room_1", "chat_message", map[string]string{"content": "hi"})

	require.Len(t, c.send, 1, "room subscription must be the only delivery path")
	msg := <-c.send
	assert.Equal(t, "chat_message", msg.Event)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Equal(t, "hi", payload["content"])
}

func TestPublishOnlyBroadcastsLocallyWithoutRedis(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	c := testClient("consult_room_1")
	hub.Register(c)

	hub.PublishOnly("consult_room_1", "vitals_sample", map[string]int{"heart_rate": 72})

	require.Len(t, c.send, 1)
	assert.Equal(t, "vitals_sample", (<-c.send).Event)
}

func TestSendToClientTargetsOneConnection(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	a := testClient("consult_room_1")
	b := &Client{ID: "second", Room: "consult_room_1", send: make(chan WSMessage, 8)}
	hub.Register(a)
	hub.Register(b)

	hub.SendToClient("consult_room_1", b.ID, "session_state", map[string]string{"state": "idle"})

	assert.Empty(t, a.send)
	select {
	case msg := <-b.send:
		assert.Equal(t, "session_state", msg.Event)
	default:
		t.Fatal("target client did not receive the message")
	}
}
