package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"grimm.is/netaudit/internal/events"
	"grimm.is/netaudit/internal/logging"
	"grimm.is/netaudit/internal/metrics"
)

// WebSocket topics.
const (
	TopicStatus  = "status"
	TopicJam     = "jam"
	TopicTraffic = "traffic"
)

const (
	clientSendBuffer = 64
	writeWait        = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Enforce same-origin policy for WebSocket upgrades
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		// Allow localhost for development/proxying
		if strings.Contains(origin, "://localhost:") || strings.Contains(origin, "://127.0.0.1:") {
			return true
		}

		host := r.Host
		if rest, ok := strings.CutPrefix(origin, "http://"); ok {
			return rest == host
		}
		if rest, ok := strings.CutPrefix(origin, "https://"); ok {
			return rest == host
		}
		return false
	},
}

// WSMessage is a topic-based message sent to clients. Event names the hub
// event that produced it; it is empty for initial state replies.
type WSMessage struct {
	Topic string `json:"topic"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data"`
}

// wsClient represents a connected WebSocket client with subscriptions
type wsClient struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	topics map[string]bool
}

func (c *wsClient) subscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics[topic]
}

// StateFunc returns the current state of topic, if it has one.
type StateFunc func(topic string) (any, bool)

// WSManager fans hub events out to WebSocket clients by topic.
type WSManager struct {
	clients map[*wsClient]bool
	mutex   sync.RWMutex

	hub     *events.Hub
	sub     <-chan events.Event
	state   StateFunc
	logger  *logging.Logger
	metrics *metrics.Registry

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewWSManager subscribes to hub and starts forwarding. state may be nil.
func NewWSManager(hub *events.Hub, logger *logging.Logger, state StateFunc) *WSManager {
	if logger == nil {
		logger = logging.WithComponent("api")
	}
	m := &WSManager{
		clients: make(map[*wsClient]bool),
		hub:     hub,
		sub: hub.Subscribe(256,
			events.EventStatusLine,
			events.EventJamState,
			events.EventTrafficSnapshot,
			events.EventTrafficState,
		),
		state:   state,
		logger:  logger,
		metrics: metrics.Get(),
		done:    make(chan struct{}),
	}
	m.wg.Add(1)
	go m.run()
	return m
}

func topicFor(t events.EventType) string {
	switch t {
	case events.EventStatusLine:
		return TopicStatus
	case events.EventJamState:
		return TopicJam
	case events.EventTrafficSnapshot, events.EventTrafficState:
		return TopicTraffic
	}
	return ""
}

func (m *WSManager) run() {
	defer m.wg.Done()
	for {
		select {
		case e := <-m.sub:
			if topic := topicFor(e.Type); topic != "" {
				m.publish(WSMessage{Topic: topic, Event: string(e.Type), Data: e.Data})
			}
		case <-m.done:
			return
		}
	}
}

// Publish sends data to all clients subscribed to topic.
func (m *WSManager) Publish(topic string, data any) {
	m.publish(WSMessage{Topic: topic, Data: data})
}

func (m *WSManager) publish(msg WSMessage) {
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		m.logger.Warn("Failed to encode websocket message", "topic", msg.Topic, "error", err)
		return
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for client := range m.clients {
		if client.subscribed(msg.Topic) {
			select {
			case client.send <- msgBytes:
			default:
				// Client buffer full, skip
			}
		}
	}
}

// sendState queues the current state of each topic to one client.
func (m *WSManager) sendState(c *wsClient, topics []string) {
	if m.state == nil {
		return
	}
	for _, topic := range topics {
		data, ok := m.state(topic)
		if !ok {
			continue
		}
		msgBytes, err := json.Marshal(WSMessage{Topic: topic, Data: data})
		if err != nil {
			continue
		}

		m.mutex.RLock()
		if m.clients[c] {
			select {
			case c.send <- msgBytes:
			default:
			}
		}
		m.mutex.RUnlock()
	}
}

// Clients returns the number of connected clients.
func (m *WSManager) Clients() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients)
}

func (m *WSManager) register(c *wsClient) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	select {
	case <-m.done:
		return false
	default:
	}
	m.clients[c] = true
	m.metrics.WSClients.Set(float64(len(m.clients)))
	return true
}

func (m *WSManager) unregister(c *wsClient) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.clients[c]; ok {
		delete(m.clients, c)
		close(c.send)
		c.conn.Close()
		m.metrics.WSClients.Set(float64(len(m.clients)))
	}
}

// Close disconnects every client and stops forwarding.
func (m *WSManager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.hub.Unsubscribe(m.sub)
		m.wg.Wait()

		m.mutex.Lock()
		for c := range m.clients {
			delete(m.clients, c)
			close(c.send)
			c.conn.Close()
		}
		m.metrics.WSClients.Set(0)
		m.mutex.Unlock()
	})
}

// ServeHTTP upgrades the connection and registers the client.
func (m *WSManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("Failed to upgrade websocket", "error", err)
		return
	}

	client := &wsClient{
		conn:   conn,
		topics: make(map[string]bool),
		send:   make(chan []byte, clientSendBuffer),
	}

	var initial []string
	if q := r.URL.Query().Get("topics"); q != "" {
		for _, topic := range strings.Split(q, ",") {
			if topic = strings.TrimSpace(topic); topic != "" {
				client.topics[topic] = true
				initial = append(initial, topic)
			}
		}
	}

	if !m.register(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(m)
	m.sendState(client, initial)
}

// readPump handles incoming messages from a client (subscriptions)
func (c *wsClient) readPump(m *WSManager) {
	defer m.unregister(c)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var msg struct {
			Action string   `json:"action"`
			Topics []string `json:"topics"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		switch msg.Action {
		case "subscribe":
			c.mu.Lock()
			for _, topic := range msg.Topics {
				c.topics[topic] = true
			}
			c.mu.Unlock()
			m.sendState(c, msg.Topics)
		case "unsubscribe":
			c.mu.Lock()
			for _, topic := range msg.Topics {
				delete(c.topics, topic)
			}
			c.mu.Unlock()
		}
	}
}

// writePump sends messages to the client
func (c *wsClient) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			break
		}
	}
}
