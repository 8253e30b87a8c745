package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/banprobe-project/banprobe/internal/events"
)

const (
	streamSendBuffer   = 32
	streamWriteTimeout = 10 * time.Second
	streamPingInterval = 30 * time.Second
	streamPongTimeout  = 2 * streamPingInterval
)

const streamSubscriber = "api.events"

// eventHub fans check events out to websocket clients.
type eventHub struct {
	mu       sync.Mutex
	bus      *events.EventBus
	clients  map[*streamClient]struct{}
	upgrader websocket.Upgrader
	stopped  bool
}

type streamClient struct {
	conn *websocket.Conn
	send chan events.Event
	once sync.Once
}

func newEventHub(bus *events.EventBus, allowedOrigins []string) *eventHub {
	h := &eventHub{
		bus:     bus,
		clients: make(map[*streamClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
	if bus != nil {
		bus.SubscribeMany(events.CheckEventTypes, streamSubscriber, h.onEvent)
	}
	return h
}

// originChecker accepts requests without an Origin header (non-browser
// clients) and browser requests from an allowed origin.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

func (h *eventHub) onEvent(_ context.Context, event events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- event:
		default:
			// Slow consumer.
			log.Debug().Str("remote", client.conn.RemoteAddr().String()).Msg("event stream client dropped")
			h.removeLocked(client)
		}
	}
	return nil
}

func (h *eventHub) add(client *streamClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.clients[client] = struct{}{}
	return true
}

func (h *eventHub) remove(client *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *eventHub) removeLocked(client *streamClient) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	client.once.Do(func() { close(client.send) })
}

func (h *eventHub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// stop unsubscribes from the bus and disconnects every client.
func (h *eventHub) stop() {
	if h.bus != nil {
		for _, t := range events.CheckEventTypes {
			h.bus.Unsubscribe(t, streamSubscriber)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	for client := range h.clients {
		h.removeLocked(client)
	}
}

// handleEvents upgrades to a websocket and streams check events as JSON
// until the client goes away. Client messages are ignored.
func (s *Server) handleEvents(c *gin.Context) {
	conn, err := s.streams.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debug().Err(err).Msg("event stream upgrade failed")
		return
	}

	client := &streamClient{
		conn: conn,
		send: make(chan events.Event, streamSendBuffer),
	}
	if !s.streams.add(client) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("event stream client connected")

	go s.streams.writeLoop(client)
	s.streams.readLoop(client)
}

// readLoop drains client frames so control frames are processed, and
// removes the client when the connection fails.
func (h *eventHub) readLoop(client *streamClient) {
	defer h.remove(client)

	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(streamPongTimeout))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(streamPongTimeout))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *eventHub) writeLoop(client *streamClient) {
	ticker := time.NewTicker(streamPingInterval)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case event, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := client.conn.WriteJSON(event); err != nil {
				h.remove(client)
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(client)
				return
			}
		}
	}
}
