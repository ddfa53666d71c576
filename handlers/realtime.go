package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"projx.dev/social/models"
	"projx.dev/social/realtime"
	"projx.dev/social/services"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 20 * time.Second
)

type hubConn struct {
	id     string
	userID int
	conn   *websocket.Conn

	writeMu sync.Mutex
	// partner of the open conversation, 0 when none
	partnerID int
}

func (c *hubConn) send(env realtime.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(env)
}

// Hub tracks every live socket by user and fans chat events out to them.
type Hub struct {
	auth     *services.Auth
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	conns  map[string]*hubConn
	byUser map[int]map[string]*hubConn
	wg     sync.WaitGroup
}

func NewHub(auth *services.Auth) *Hub {
	return &Hub{
		auth: auth,
		upgrader: websocket.Upgrader{
			CheckOrigin:      func(r *http.Request) bool { return true },
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
		},
		conns:  map[string]*hubConn{},
		byUser: map[int]map[string]*hubConn{},
	}
}

// ServeWS authenticates before upgrading; a bad credential gets a plain 401.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticate(h.auth, r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("[ws] upgrade for user %d failed: %v", userID, err)
		return
	}

	c := &hubConn{id: ulid.Make().String(), userID: userID, conn: conn}
	h.register(c)
	glog.V(1).Infof("[ws] %s connected for user %d", c.id, userID)

	h.wg.Add(1)
	go h.serve(c)
}

func (h *Hub) register(c *hubConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.id] = c
	if h.byUser[c.userID] == nil {
		h.byUser[c.userID] = map[string]*hubConn{}
	}
	h.byUser[c.userID][c.id] = c
}

func (h *Hub) unregister(c *hubConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c.id)
	if set := h.byUser[c.userID]; set != nil {
		delete(set, c.id)
		if len(set) == 0 {
			delete(h.byUser, c.userID)
		}
	}
}

func (h *Hub) serve(c *hubConn) {
	done := make(chan struct{})
	defer func() {
		close(done)
		h.unregister(c)
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
		c.writeMu.Unlock()
		glog.V(1).Infof("[ws] %s closed for user %d", c.id, c.userID)
		h.wg.Done()
	}()

	c.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.writeMu.Lock()
				c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				err := c.conn.WriteMessage(websocket.PingMessage, nil)
				c.writeMu.Unlock()
				if err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		var env realtime.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				glog.V(1).Infof("[ws] %s read: %v", c.id, err)
			}
			return
		}
		h.handle(c, env)
	}
}

func (h *Hub) handle(c *hubConn, env realtime.Envelope) {
	switch env.Type {
	case models.EventJoinChat:
		var room models.ChatRoom
		if err := json.Unmarshal(env.Payload, &room); err != nil || room.UserID <= 0 {
			glog.Warningf("[ws] %s sent bad join payload %s", c.id, env.Payload)
			return
		}
		h.mu.Lock()
		c.partnerID = room.UserID
		h.mu.Unlock()
		glog.V(2).Infof("[ws] user %d joined chat with %d", c.userID, room.UserID)
	case models.EventLeaveChat:
		h.mu.Lock()
		c.partnerID = 0
		h.mu.Unlock()
		glog.V(2).Infof("[ws] user %d left chat", c.userID)
	default:
		glog.V(2).Infof("[ws] %s sent unknown event %q", c.id, env.Type)
	}
}

// Broadcast sends env to every live socket of the given users.
func (h *Hub) Broadcast(env realtime.Envelope, userIDs ...int) int {
	h.mu.RLock()
	var targets []*hubConn
	seen := map[int]bool{}
	for _, id := range userIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, c := range h.byUser[id] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if err := c.send(env); err != nil {
			glog.V(1).Infof("[ws] push to %s failed: %v", c.id, err)
			c.conn.Close()
			continue
		}
		sent++
	}
	return sent
}

// InConversation reports whether any socket of userID has the chat with
// partnerID open.
func (h *Hub) InConversation(userID, partnerID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.byUser[userID] {
		if c.partnerID == partnerID {
			return true
		}
	}
	return false
}

func (h *Hub) Connections(userID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID])
}

// Close drops every socket and waits for their goroutines to finish.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*hubConn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"))
		c.writeMu.Unlock()
		c.conn.Close()
	}
	h.wg.Wait()
}
