package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"projx.dev/social/client"
	"projx.dev/social/models"
)

type State int

const (
	Disconnected State = iota
	Connected
	Joined
	Left
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case Joined:
		return "joined"
	case Left:
		return "left"
	default:
		return "disconnected"
	}
}

var (
	ErrNotConnected  = errors.New("realtime channel is not connected")
	ErrAlreadyJoined = errors.New("already joined a conversation")
	ErrNotJoined     = errors.New("not joined to a conversation")
)

// Envelope is the frame format shared with the backend hub.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func NewEnvelope(eventType string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: eventType, Payload: data}, nil
}

type Settings struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	// ReadTimeout must exceed PingInterval; each pong extends the deadline.
	ReadTimeout time.Duration
}

func DefaultSettings() *Settings {
	return &Settings{
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     20 * time.Second,
		ReadTimeout:      60 * time.Second,
	}
}

// Channel is one socket to the backend. It can be joined to at most one
// conversation at a time; join and leave are driven by the chat screen.
type Channel struct {
	ctx    context.Context
	cancel context.CancelFunc

	conn     *websocket.Conn
	settings *Settings
	writeMu  sync.Mutex

	stateMu   sync.Mutex
	state     State
	partnerID int

	handlersMu    sync.Mutex
	handlers      map[uint64]func(models.ChatMessage)
	nextHandlerID uint64
	stateHooks    []func(State)
}

// Dial opens the socket with the client's credential.
func Dial(ctx context.Context, c *client.Client, settings *Settings) (*Channel, error) {
	if settings == nil {
		settings = DefaultSettings()
	}
	auth := c.Session().Auth()
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: settings.HandshakeTimeout,
		Jar:              auth.Jar(),
	}
	header := http.Header{}
	auth.Authorize(header)

	conn, resp, err := dialer.DialContext(ctx, c.WebsocketURL(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, &client.APIError{Status: resp.StatusCode, Message: "realtime channel rejected credential"}
		}
		return nil, &client.TransportError{Op: "dial " + c.WebsocketURL(), Err: err}
	}

	cancelCtx, cancel := context.WithCancel(ctx)
	ch := &Channel{
		ctx:      cancelCtx,
		cancel:   cancel,
		conn:     conn,
		settings: settings,
		state:    Connected,
		handlers: map[uint64]func(models.ChatMessage){},
	}
	go ch.run()
	go ch.keepAlive()
	glog.V(1).Infof("[ws] connected %s", c.WebsocketURL())
	return ch, nil
}

// State returns the current state and, when joined, the conversation partner.
func (ch *Channel) State() (State, int) {
	ch.stateMu.Lock()
	defer ch.stateMu.Unlock()
	return ch.state, ch.partnerID
}

// OnState registers a hook called after every transition.
func (ch *Channel) OnState(fn func(State)) {
	ch.handlersMu.Lock()
	defer ch.handlersMu.Unlock()
	ch.stateHooks = append(ch.stateHooks, fn)
}

func (ch *Channel) setState(s State, partnerID int) {
	ch.stateMu.Lock()
	ch.state = s
	ch.partnerID = partnerID
	ch.stateMu.Unlock()

	ch.handlersMu.Lock()
	hooks := append([]func(State){}, ch.stateHooks...)
	ch.handlersMu.Unlock()
	for _, fn := range hooks {
		fn(s)
	}
}

func (ch *Channel) Join(partnerID int) error {
	ch.stateMu.Lock()
	state := ch.state
	ch.stateMu.Unlock()

	switch state {
	case Disconnected:
		return ErrNotConnected
	case Joined:
		return ErrAlreadyJoined
	}
	if err := ch.emit(models.EventJoinChat, models.ChatRoom{UserID: partnerID}); err != nil {
		return err
	}
	ch.setState(Joined, partnerID)
	return nil
}

func (ch *Channel) Leave() error {
	ch.stateMu.Lock()
	state, partnerID := ch.state, ch.partnerID
	ch.stateMu.Unlock()

	switch state {
	case Disconnected:
		return ErrNotConnected
	case Joined:
	default:
		return ErrNotJoined
	}
	if err := ch.emit(models.EventLeaveChat, models.ChatRoom{UserID: partnerID}); err != nil {
		return err
	}
	ch.setState(Left, 0)
	return nil
}

// OnMessage registers a new_message handler. The returned func removes it.
func (ch *Channel) OnMessage(fn func(models.ChatMessage)) (remove func()) {
	ch.handlersMu.Lock()
	defer ch.handlersMu.Unlock()
	id := ch.nextHandlerID
	ch.nextHandlerID++
	ch.handlers[id] = fn
	return func() {
		ch.handlersMu.Lock()
		defer ch.handlersMu.Unlock()
		delete(ch.handlers, id)
	}
}

func (ch *Channel) Done() <-chan struct{} {
	return ch.ctx.Done()
}

func (ch *Channel) Close() error {
	ch.writeMu.Lock()
	ch.conn.SetWriteDeadline(time.Now().Add(ch.settings.WriteTimeout))
	ch.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	ch.writeMu.Unlock()
	ch.cancel()
	return ch.conn.Close()
}

func (ch *Channel) emit(eventType string, payload any) error {
	env, err := NewEnvelope(eventType, payload)
	if err != nil {
		return err
	}
	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	ch.conn.SetWriteDeadline(time.Now().Add(ch.settings.WriteTimeout))
	if err := ch.conn.WriteJSON(env); err != nil {
		return &client.TransportError{Op: "emit " + eventType, Err: err}
	}
	return nil
}

func (ch *Channel) run() {
	defer func() {
		ch.conn.Close()
		ch.setState(Disconnected, 0)
		ch.cancel()
	}()

	ch.conn.SetReadDeadline(time.Now().Add(ch.settings.ReadTimeout))
	ch.conn.SetPongHandler(func(string) error {
		return ch.conn.SetReadDeadline(time.Now().Add(ch.settings.ReadTimeout))
	})

	for {
		var env Envelope
		if err := ch.conn.ReadJSON(&env); err != nil {
			select {
			case <-ch.ctx.Done():
			default:
				glog.Infof("[ws] read error, disconnecting: %v", err)
			}
			return
		}
		ch.conn.SetReadDeadline(time.Now().Add(ch.settings.ReadTimeout))
		ch.dispatch(env)
	}
}

func (ch *Channel) dispatch(env Envelope) {
	switch env.Type {
	case models.EventNewMessage:
		var msg models.ChatMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			glog.Errorf("[ws] bad %s payload: %v", env.Type, err)
			return
		}
		ch.handlersMu.Lock()
		handlers := make([]func(models.ChatMessage), 0, len(ch.handlers))
		for _, fn := range ch.handlers {
			handlers = append(handlers, fn)
		}
		ch.handlersMu.Unlock()
		for _, fn := range handlers {
			fn(msg)
		}
	default:
		glog.V(2).Infof("[ws] ignoring event %q", env.Type)
	}
}

func (ch *Channel) keepAlive() {
	ticker := time.NewTicker(ch.settings.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ch.ctx.Done():
			return
		case <-ticker.C:
			ch.writeMu.Lock()
			err := ch.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ch.settings.WriteTimeout))
			ch.writeMu.Unlock()
			if err != nil {
				glog.Infof("[ws] ping failed: %v", err)
				ch.conn.Close()
				return
			}
		}
	}
}
