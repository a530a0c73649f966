package rpc

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/crclabs/backingd/internal/node"
)

const (
	wsReadLimit     = 64 * 1024
	wsReadTimeout   = 60 * time.Second
	wsWriteTimeout  = 10 * time.Second
	wsPingInterval  = 54 * time.Second
	wsSendBufferLen = 256
)

// WebSocketServer streams node events to connected clients.
type WebSocketServer struct {
	upgrader websocket.Upgrader
	node     *node.Node
	logger   *log.Logger

	connectionsMutex sync.RWMutex
	connections      map[string]*wsConnection
	nextID           atomic.Uint64
}

// wsConnection is one client connection. Events pass through sendChannel so
// a slow client never blocks the node's publisher.
type wsConnection struct {
	id           string
	conn         *websocket.Conn
	sendChannel  chan []byte
	closeChannel chan struct{}
	closeOnce    sync.Once

	mutex sync.RWMutex
	// filter restricts delivery to these instances; empty means all.
	filter map[common.Address]bool
}

// NewWebSocketServer creates the event-stream server over a node.
func NewWebSocketServer(n *node.Node, logger *log.Logger) *WebSocketServer {
	return &WebSocketServer{
		upgrader: websocket.Upgrader{
			CheckOrigin:  func(r *http.Request) bool { return true },
			Subprotocols: []string{"backingd"},
		},
		node:        n,
		logger:      logger,
		connections: make(map[string]*wsConnection),
	}
}

// ServeHTTP upgrades the connection and starts its pumps.
func (ws *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Printf("websocket upgrade failed: %v", err)
		return
	}

	wsConn := &wsConnection{
		id:           fmt.Sprintf("ws-%d", ws.nextID.Add(1)),
		conn:         conn,
		sendChannel:  make(chan []byte, wsSendBufferLen),
		closeChannel: make(chan struct{}),
		filter:       make(map[common.Address]bool),
	}

	ws.connectionsMutex.Lock()
	ws.connections[wsConn.id] = wsConn
	ws.connectionsMutex.Unlock()

	notes, cancel := ws.node.Subscribe()

	go ws.readPump(wsConn)
	go ws.writePump(wsConn)
	go ws.streamEvents(wsConn, notes, cancel)
}

// ConnectionCount reports live connections, for diagnostics.
func (ws *WebSocketServer) ConnectionCount() int {
	ws.connectionsMutex.RLock()
	defer ws.connectionsMutex.RUnlock()
	return len(ws.connections)
}

func (ws *WebSocketServer) closeConnection(wsConn *wsConnection) {
	wsConn.closeOnce.Do(func() {
		close(wsConn.closeChannel)
		_ = wsConn.conn.Close()
		ws.connectionsMutex.Lock()
		delete(ws.connections, wsConn.id)
		ws.connectionsMutex.Unlock()
	})
}

// readPump processes client commands until the connection drops.
func (ws *WebSocketServer) readPump(wsConn *wsConnection) {
	defer ws.closeConnection(wsConn)

	wsConn.conn.SetReadLimit(wsReadLimit)
	_ = wsConn.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	wsConn.conn.SetPongHandler(func(string) error {
		return wsConn.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	for {
		_, message, err := wsConn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.logger.Printf("websocket %s: %v", wsConn.id, err)
			}
			return
		}
		ws.handleCommand(wsConn, message)
	}
}

// writePump serializes all writes to the connection.
func (ws *WebSocketServer) writePump(wsConn *wsConnection) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	defer ws.closeConnection(wsConn)

	for {
		select {
		case <-wsConn.closeChannel:
			return
		case <-ticker.C:
			_ = wsConn.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := wsConn.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case message := <-wsConn.sendChannel:
			_ = wsConn.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := wsConn.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				ws.logger.Printf("websocket %s send failed: %v", wsConn.id, err)
				return
			}
		}
	}
}

// streamEvents forwards node notifications through the send channel.
func (ws *WebSocketServer) streamEvents(wsConn *wsConnection, notes <-chan node.Notification, cancel func()) {
	defer cancel()

	for {
		select {
		case <-wsConn.closeChannel:
			return
		case note, ok := <-notes:
			if !ok {
				return
			}
			if !wsConn.wants(note.Instance) {
				continue
			}
			message, err := json.Marshal(map[string]any{
				"type":       "event",
				"seq":        note.Seq,
				"name":       note.Name,
				"instance":   note.Instance.Hex(),
				"payload":    note.Payload,
				"created_at": note.At.Unix(),
			})
			if err != nil {
				ws.logger.Printf("websocket %s: encode event: %v", wsConn.id, err)
				continue
			}
			select {
			case wsConn.sendChannel <- message:
			default:
				ws.logger.Printf("websocket %s lagging, dropping %s", wsConn.id, note.Name)
			}
		}
	}
}

func (c *wsConnection) wants(instance common.Address) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.filter) == 0 || c.filter[instance]
}

// wsCommand is the client-to-server message format.
type wsCommand struct {
	Command   string   `json:"command"`
	ID        any      `json:"id,omitempty"`
	Instances []string `json:"instances,omitempty"`
}

func (ws *WebSocketServer) handleCommand(wsConn *wsConnection, message []byte) {
	var cmd wsCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		ws.reply(wsConn, nil, "error", "Invalid JSON: "+err.Error())
		return
	}

	switch cmd.Command {
	case "ping":
		ws.reply(wsConn, cmd.ID, "success", "")

	case "subscribe":
		filter := make(map[common.Address]bool, len(cmd.Instances))
		for _, s := range cmd.Instances {
			if !common.IsHexAddress(s) {
				ws.reply(wsConn, cmd.ID, "error", "Invalid instance address: "+s)
				return
			}
			filter[common.HexToAddress(s)] = true
		}
		wsConn.mutex.Lock()
		wsConn.filter = filter
		wsConn.mutex.Unlock()
		ws.reply(wsConn, cmd.ID, "success", "")

	case "unsubscribe":
		wsConn.mutex.Lock()
		wsConn.filter = make(map[common.Address]bool)
		wsConn.mutex.Unlock()
		ws.reply(wsConn, cmd.ID, "success", "")

	default:
		ws.reply(wsConn, cmd.ID, "error", "Unknown command: "+cmd.Command)
	}
}

func (ws *WebSocketServer) reply(wsConn *wsConnection, id any, status, message string) {
	resp := map[string]any{
		"type":   "response",
		"status": status,
	}
	if id != nil {
		resp["id"] = id
	}
	if message != "" {
		resp["error_message"] = message
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	select {
	case wsConn.sendChannel <- data:
	case <-wsConn.closeChannel:
	}
}
