// Package relay forwards scene-state changes between browser clients of the showcase.
// Clients share a room; the room remembers the active scene and its latest state so late
// joiners start from the same picture.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

// Message types exchanged with clients.
const (
	TypeChangeScene = "changeSceneData"
	TypeUpdateScene = "updateSceneData"
	TypeSnapshot    = "sceneSnapshot"
	TypeError       = "error"
)

const DefaultRoom = "lobby"

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// DefaultPongWait is the time allowed to read the next pong message from the peer.
	DefaultPongWait = 60 * time.Second
	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

var (
	ErrUnknownType  = errors.New("unknown message type")
	ErrUnknownScene = errors.New("unknown scene")
	ErrInactive     = errors.New("scene is not active")
	ErrGone         = errors.New("client no longer in room")
	ErrMalformed    = errors.New("malformed message")
)

// Message is the envelope of every frame.
type Message struct {
	Type     string                 `json:"type"`
	Contents map[string]interface{} `json:"contents,omitempty"`
}

// SceneChange switches the active scene of a room.
type SceneChange struct {
	Scene string `mapstructure:"scene"`
}

// SceneUpdate merges state into the active scene.
type SceneUpdate struct {
	Scene string                 `mapstructure:"scene"`
	Data  map[string]interface{} `mapstructure:"data"`
}

// Snapshot is the state of one room.
type Snapshot struct {
	Scene string                 `json:"scene"`
	Data  map[string]interface{} `json:"data"`
}

type client struct {
	conn      *websocket.Conn
	send      chan Message
	room      string
	closeOnce sync.Once
}

func (c *client) close() { c.closeOnce.Do(func() { close(c.send) }) }

type room struct {
	scene   string
	data    map[string]interface{}
	clients map[*client]struct{}
}

// Options configures a Hub.
type Options struct {
	Scenes     []string
	SendBuffer int
	// PongWait bounds the silence tolerated from a client. Pings go out at 9/10 of it.
	PongWait    time.Duration
	CheckOrigin func(r *http.Request) bool
}

// Hub owns the rooms and their clients.
type Hub struct {
	log        *zap.Logger
	scenes     []string
	known      map[string]bool
	sendBuffer int
	pongWait   time.Duration
	pingPeriod time.Duration
	upgrader   websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]*room
}

// NewHub creates a hub. The first scene is the initial scene of every room.
func NewHub(log *zap.Logger, opts Options) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.SendBuffer < 1 {
		opts.SendBuffer = 16
	}
	if opts.PongWait <= 0 {
		opts.PongWait = DefaultPongWait
	}
	known := make(map[string]bool, len(opts.Scenes))
	for _, s := range opts.Scenes {
		known[s] = true
	}
	return &Hub{
		log:        log,
		scenes:     append([]string(nil), opts.Scenes...),
		known:      known,
		sendBuffer: opts.SendBuffer,
		pongWait:   opts.PongWait,
		pingPeriod: (opts.PongWait * 9) / 10,
		upgrader:   websocket.Upgrader{CheckOrigin: opts.CheckOrigin},
		rooms:      make(map[string]*room),
	}
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	name := r.URL.Query().Get("room")
	if name == "" {
		name = DefaultRoom
	}
	c := &client{conn: conn, send: make(chan Message, h.sendBuffer), room: name}
	h.join(c)
	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) join(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rm := h.roomLocked(c.room)
	rm.clients[c] = struct{}{}
	// the buffer is fresh, so the snapshot always fits
	c.send <- Message{Type: TypeSnapshot, Contents: snapshotContents(rm)}
	h.log.Info("relay client joined", zap.String("room", c.room), zap.Int("clients", len(rm.clients)))
}

func (h *Hub) leave(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	rm, ok := h.rooms[c.room]
	if !ok {
		return
	}
	if _, ok := rm.clients[c]; ok {
		delete(rm.clients, c)
		c.close()
	}
	if len(rm.clients) == 0 {
		delete(h.rooms, c.room)
	}
}

func (h *Hub) roomLocked(name string) *room {
	rm, ok := h.rooms[name]
	if !ok {
		rm = &room{data: map[string]interface{}{}, clients: make(map[*client]struct{})}
		if len(h.scenes) > 0 {
			rm.scene = h.scenes[0]
		}
		h.rooms[name] = rm
	}
	return rm
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.leave(c)
		h.log.Info("relay client left", zap.String("room", c.room))
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(h.pongWait))
		return nil
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("relay read failed", zap.String("room", c.room), zap.Error(err))
			}
			return
		}
		msg, err := decodeMessage(raw)
		if err == nil {
			err = h.handle(c, msg)
		}
		if err != nil {
			h.log.Debug("relay message rejected", zap.String("type", msg.Type), zap.Error(err))
			h.reply(c, Message{Type: TypeError, Contents: map[string]interface{}{"reason": err.Error()}})
		}
	}
}

// decodeMessage parses one frame. Contents may be absent but must otherwise be an object.
func decodeMessage(raw []byte) (Message, error) {
	var frame struct {
		Type     string      `json:"type"`
		Contents interface{} `json:"contents"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	msg := Message{Type: frame.Type}
	if frame.Contents == nil {
		return msg, nil
	}
	contents, ok := frame.Contents.(map[string]interface{})
	if !ok {
		return msg, fmt.Errorf("%w: contents of %s must be an object", ErrMalformed, frame.Type)
	}
	msg.Contents = contents
	return msg, nil
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				h.log.Warn("relay write failed", zap.String("room", c.room), zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) reply(c *client, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.memberRoomLocked(c); err == nil {
		h.deliverLocked(c, msg)
	}
}

// handle applies msg from sender to its room and relays it to the other clients.
func (h *Hub) handle(sender *client, msg Message) error {
	switch msg.Type {
	case TypeChangeScene:
		var change SceneChange
		if err := mapstructure.Decode(msg.Contents, &change); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Type, err)
		}
		if !h.known[change.Scene] {
			return fmt.Errorf("%w: %q", ErrUnknownScene, change.Scene)
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		rm, err := h.memberRoomLocked(sender)
		if err != nil {
			return err
		}
		rm.scene = change.Scene
		rm.data = map[string]interface{}{}
		h.relayLocked(rm, sender, msg)
		return nil

	case TypeUpdateScene:
		var update SceneUpdate
		if err := mapstructure.Decode(msg.Contents, &update); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Type, err)
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		rm, err := h.memberRoomLocked(sender)
		if err != nil {
			return err
		}
		if update.Scene != rm.scene {
			return fmt.Errorf("%w: %q (active %q)", ErrInactive, update.Scene, rm.scene)
		}
		for k, v := range update.Data {
			rm.data[k] = v
		}
		h.relayLocked(rm, sender, msg)
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
}

// memberRoomLocked returns the room of c, failing once c has been dropped.
func (h *Hub) memberRoomLocked(c *client) (*room, error) {
	if rm, ok := h.rooms[c.room]; ok {
		if _, ok := rm.clients[c]; ok {
			return rm, nil
		}
	}
	return nil, ErrGone
}

func (h *Hub) relayLocked(rm *room, sender *client, msg Message) {
	for c := range rm.clients {
		if c != sender {
			h.deliverLocked(c, msg)
		}
	}
}

// deliverLocked queues msg for c, dropping c when its buffer is full.
func (h *Hub) deliverLocked(c *client, msg Message) {
	select {
	case c.send <- msg:
	default:
		h.log.Warn("dropping slow relay client", zap.String("room", c.room))
		h.removeLocked(c)
	}
}

// Snapshot returns the active scene and state of a room.
func (h *Hub) Snapshot(roomName string) (Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rm, ok := h.rooms[roomName]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{Scene: rm.scene, Data: copyData(rm.data)}, true
}

// Rooms returns the number of rooms with at least one client.
func (h *Hub) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

func snapshotContents(rm *room) map[string]interface{} {
	return map[string]interface{}{"scene": rm.scene, "data": copyData(rm.data)}
}

func copyData(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
