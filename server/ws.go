package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/theoremus-urban-solutions/transit-collector/vehicle"
)

const (
	wsWriteWait      = 10 * time.Second
	wsSendBufferSize = 8
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// snapshotMessage is the envelope pushed to websocket clients. MsgType
// lets clients multiplex message kinds on one socket.
type snapshotMessage struct {
	MsgType     string           `json:"msgType"`
	Sequence    uint64           `json:"sequence"`
	Source      string           `json:"source"`
	CollectedAt time.Time        `json:"collectedAt"`
	Vehicles    []vehicle.Record `json:"vehicles"`
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans published snapshots out to connected websocket clients. It
// implements the collector's sink interface, so the poll loop pushes
// into it directly; a client that cannot keep up is dropped rather
// than allowed to stall the fan-out.
type Hub struct {
	query *vehicle.Query

	mu      sync.Mutex
	clients map[string]*wsClient
	closed  bool
}

func NewHub(query *vehicle.Query) *Hub {
	return &Hub{
		query:   query,
		clients: map[string]*wsClient{},
	}
}

// OnSnapshot marshals the snapshot once and hands the same payload to
// every client.
func (h *Hub) OnSnapshot(snap *vehicle.Snapshot) {
	buf, err := json.Marshal(encodeSnapshot(snap))
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode snapshot for websocket push")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for id, c := range h.clients {
		select {
		case c.send <- buf:
		default:
			log.Warn().Str("client", id).Msg("Dropping slow websocket client")
			delete(h.clients, id)
			close(c.send)
		}
	}
}

// ClientCount reports how many clients are currently connected.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client. New connections are refused after.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	c := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
	}

	// Seed the connection with the current snapshot so a client sees
	// data immediately instead of waiting out a poll interval.
	if snap := h.query.Current(); snap != nil {
		if buf, err := json.Marshal(encodeSnapshot(snap)); err == nil {
			c.send <- buf
		}
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c.id] = c
	h.mu.Unlock()

	log.Info().Str("client", c.id).Str("remote", r.RemoteAddr).Msg("Websocket client connected")
	go c.writePump()

	// Read loop: the client sends nothing we act on, but reading is
	// what detects a closed connection.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c.id)
}

// remove unregisters a client and closes its send channel, which in
// turn shuts down its write pump. Safe to call more than once.
func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok {
		return
	}
	delete(h.clients, id)
	close(c.send)
}

func (c *wsClient) writePump() {
	defer func() {
		_ = c.conn.Close()
	}()
	for buf := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, buf); err != nil {
			return
		}
	}
	// Channel closed: say goodbye properly before hanging up.
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func encodeSnapshot(snap *vehicle.Snapshot) snapshotMessage {
	vehicles := snap.Records
	if vehicles == nil {
		vehicles = []vehicle.Record{}
	}
	return snapshotMessage{
		MsgType:     "Snapshot",
		Sequence:    snap.Sequence,
		Source:      snap.Source,
		CollectedAt: snap.CollectedAt,
		Vehicles:    vehicles,
	}
}
