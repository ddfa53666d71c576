package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/gorilla/websocket"

	"projx.dev/social/client"
	"projx.dev/social/config"
	"projx.dev/social/models"
)

type fakeHub struct {
	t        *testing.T
	received chan Envelope
	conns    chan *websocket.Conn
}

func newFakeHub(t *testing.T) (*fakeHub, *client.Client) {
	hub := &fakeHub{
		t:        t,
		received: make(chan Envelope, 16),
		conns:    make(chan *websocket.Conn, 1),
	}
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.conns <- conn
		for {
			var env Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			hub.received <- env
		}
	}))
	t.Cleanup(server.Close)

	c, err := client.New(&config.Client{APIBaseURL: server.URL, AuthStyle: config.AuthBearer})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return hub, c
}

func (h *fakeHub) next() Envelope {
	select {
	case env := <-h.received:
		return env
	case <-time.After(2 * time.Second):
		h.t.Fatalf("no envelope received")
		return Envelope{}
	}
}

func testSettings() *Settings {
	s := DefaultSettings()
	s.PingInterval = time.Second
	s.ReadTimeout = 5 * time.Second
	return s
}

func TestChannelRejectsMissingCredential(t *testing.T) {
	_, c := newFakeHub(t)
	_, err := Dial(context.Background(), c, testSettings())
	assert.Equal(t, true, errors.Is(err, client.ErrUnauthorized))
}

func TestChannelJoinLeaveLifecycle(t *testing.T) {
	hub, c := newFakeHub(t)
	c.Session().Auth().Restore("tok")

	ch, err := Dial(context.Background(), c, testSettings())
	assert.Equal(t, err, nil)
	defer ch.Close()

	state, _ := ch.State()
	assert.Equal(t, Connected, state)
	assert.Equal(t, ErrNotJoined, ch.Leave())

	assert.Equal(t, nil, ch.Join(5))
	env := hub.next()
	assert.Equal(t, models.EventJoinChat, env.Type)
	assert.Equal(t, `{"user_id":5}`, string(env.Payload))
	state, partner := ch.State()
	assert.Equal(t, Joined, state)
	assert.Equal(t, 5, partner)

	assert.Equal(t, ErrAlreadyJoined, ch.Join(6))

	assert.Equal(t, nil, ch.Leave())
	env = hub.next()
	assert.Equal(t, models.EventLeaveChat, env.Type)
	assert.Equal(t, `{"user_id":5}`, string(env.Payload))
	state, _ = ch.State()
	assert.Equal(t, Left, state)

	assert.Equal(t, nil, ch.Join(6))
	assert.Equal(t, models.EventJoinChat, hub.next().Type)
}

func TestChannelDeliversAndDisconnects(t *testing.T) {
	hub, c := newFakeHub(t)
	c.Session().Auth().Restore("tok")

	ch, err := Dial(context.Background(), c, testSettings())
	assert.Equal(t, err, nil)

	got := make(chan models.ChatMessage, 4)
	remove := ch.OnMessage(func(m models.ChatMessage) { got <- m })

	conn := <-hub.conns
	env, _ := NewEnvelope(models.EventNewMessage, models.ChatMessage{ID: 1, SenderID: 2, ReceiverID: 3, Message: "yo"})
	assert.Equal(t, nil, conn.WriteJSON(env))

	select {
	case m := <-got:
		assert.Equal(t, "yo", m.Message)
	case <-time.After(2 * time.Second):
		t.Fatalf("message not delivered")
	}

	remove()
	env, _ = NewEnvelope(models.EventNewMessage, models.ChatMessage{ID: 2, Message: "dropped"})
	assert.Equal(t, nil, conn.WriteJSON(env))

	conn.Close()
	select {
	case <-ch.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("channel did not notice transport loss")
	}
	assert.Equal(t, 0, len(got))
	state, _ := ch.State()
	assert.Equal(t, Disconnected, state)
	assert.Equal(t, ErrNotConnected, ch.Join(2))
}

func TestChannelStateHooks(t *testing.T) {
	hub, c := newFakeHub(t)
	c.Session().Auth().Restore("tok")

	ch, err := Dial(context.Background(), c, testSettings())
	assert.Equal(t, err, nil)
	conn := <-hub.conns

	states := make(chan State, 8)
	ch.OnState(func(s State) { states <- s })
	next := func() State {
		select {
		case s := <-states:
			return s
		case <-time.After(2 * time.Second):
			t.Fatalf("no state change")
			return Connected
		}
	}

	assert.Equal(t, nil, ch.Join(5))
	assert.Equal(t, Joined, next())
	assert.Equal(t, nil, ch.Leave())
	assert.Equal(t, Left, next())

	conn.Close()
	assert.Equal(t, Disconnected, next())
}
