// Package gateway implements the realtime websocket plane of spec.md
// §4.H: one connection per browser tab, joined to its owning user's
// channel and to whichever post rooms it is currently viewing, fed by
// events published on the NATS bus. Adapted from tradeengine's
// internal/gateway.Gateway (WSClient/read-write pump shape, non-blocking
// broadcastToUser select), generalized from one connection per userID to
// many (a user can have several tabs open) and rewired to bridge
// notification/feed events instead of order fills.
package gateway

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/cognitohub/platform/pkg/httpx"
	"github.com/cognitohub/platform/pkg/messaging"
)

// sendBufferSize bounds how many outbound messages queue per client
// before broadcastToUser starts dropping, so one stalled socket can
// never block the fanout loop. The teacher's Send channel is
// unbuffered, so its non-blocking send drops whenever the write pump
// is not ready at that instant.
const sendBufferSize = 32

// WSClient is a single websocket connection.
type WSClient struct {
	ID     uuid.UUID
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte
	Done   chan struct{}

	mu    sync.Mutex
	posts map[string]bool
}

// Gateway tracks live connections and bridges bus events to them. A
// connection is only ever opened after pkg/httpx's Auth middleware has
// already validated the caller, so Gateway itself never touches tokens.
type Gateway struct {
	bus *messaging.Client
	log *zap.Logger

	mu     sync.RWMutex
	byUser map[string]map[uuid.UUID]*WSClient
	byPost map[string]map[uuid.UUID]*WSClient
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// New builds a Gateway and subscribes it to the realtime and feed-update
// wildcard subjects published by the notification and fanout workers.
func New(bus *messaging.Client, log *zap.Logger) (*Gateway, error) {
	g := &Gateway{
		bus:    bus,
		log:    log,
		byUser: make(map[string]map[uuid.UUID]*WSClient),
		byPost: make(map[string]map[uuid.UUID]*WSClient),
	}
	if err := bus.Subscribe("realtime.*", g.onRealtimeMessage); err != nil {
		return nil, err
	}
	if err := bus.Subscribe("feed.update.*", g.onFeedUpdate); err != nil {
		return nil, err
	}
	return g, nil
}

// onRealtimeMessage forwards a per-user event (a notification, an
// unread-count bump) to every live connection of that user.
func (g *Gateway) onRealtimeMessage(m *nats.Msg) {
	userID := subjectSuffix(m.Subject, "realtime.")
	g.broadcastToUser(userID, wrap("notification", m.Data))
}

// onFeedUpdate forwards a post's arrival to the named follower's feed.
func (g *Gateway) onFeedUpdate(m *nats.Msg) {
	userID := subjectSuffix(m.Subject, "feed.update.")
	g.broadcastToUser(userID, wrap("feed-update", m.Data))
}

func wrap(eventType string, data []byte) []byte {
	out, _ := json.Marshal(struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}{Type: eventType, Data: data})
	return out
}

func subjectSuffix(subject, prefix string) string {
	if len(subject) <= len(prefix) {
		return ""
	}
	return subject[len(prefix):]
}

// HandleWebSocket upgrades the connection and registers it under the
// authenticated caller's user id, per spec.md §4.H client event
// "join-user-channel" (implicit on connect — every socket always joins
// its own user channel).
func (g *Gateway) HandleWebSocket(c *gin.Context) {
	userID := httpx.UserID(c)
	if userID == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &WSClient{
		ID: uuid.New(), UserID: userID, Conn: conn,
		Send: make(chan []byte, sendBufferSize), Done: make(chan struct{}),
		posts: make(map[string]bool),
	}

	g.mu.Lock()
	if g.byUser[userID] == nil {
		g.byUser[userID] = make(map[uuid.UUID]*WSClient)
	}
	g.byUser[userID][client.ID] = client
	g.mu.Unlock()

	client.Send <- wrap("joined-channel", mustJSON(gin.H{"channel": "user:" + userID}))

	go g.readPump(client)
	go g.writePump(client)
}

func mustJSON(v interface{}) []byte { b, _ := json.Marshal(v); return b }

func (g *Gateway) readPump(client *WSClient) {
	defer g.disconnect(client)
	for {
		_, raw, err := client.Conn.ReadMessage()
		if err != nil {
			return
		}
		g.handleClientEvent(client, raw)
	}
}

func (g *Gateway) writePump(client *WSClient) {
	for {
		select {
		case msg := <-client.Send:
			if err := client.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-client.Done:
			return
		}
	}
}

func (g *Gateway) disconnect(client *WSClient) {
	g.mu.Lock()
	if set, ok := g.byUser[client.UserID]; ok {
		delete(set, client.ID)
		if len(set) == 0 {
			delete(g.byUser, client.UserID)
		}
	}
	client.mu.Lock()
	for postID := range client.posts {
		if set, ok := g.byPost[postID]; ok {
			delete(set, client.ID)
			if len(set) == 0 {
				delete(g.byPost, postID)
			}
		}
	}
	client.mu.Unlock()
	g.mu.Unlock()

	close(client.Done)
	client.Conn.Close()
}

// clientEvent is the shape of every message a browser tab sends, per
// spec.md §4.H's client event list.
type clientEvent struct {
	Type   string `json:"type"`
	PostID string `json:"postId,omitempty"`
}

func (g *Gateway) handleClientEvent(client *WSClient, raw []byte) {
	var evt clientEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		client.Send <- wrap("error", mustJSON(gin.H{"message": "malformed event"}))
		return
	}

	switch evt.Type {
	case "join-post":
		g.joinPost(client, evt.PostID)
	case "leave-post":
		g.leavePost(client, evt.PostID)
	case "typing-start":
		g.broadcastToPost(evt.PostID, client.ID, wrap("user-typing", mustJSON(gin.H{"userId": client.UserID, "postId": evt.PostID})))
	case "typing-stop":
		g.broadcastToPost(evt.PostID, client.ID, wrap("user-stopped-typing", mustJSON(gin.H{"userId": client.UserID, "postId": evt.PostID})))
	case "leave-user-channel":
		g.disconnect(client)
	default:
		client.Send <- wrap("error", mustJSON(gin.H{"message": "unknown event type"}))
	}
}

func (g *Gateway) joinPost(client *WSClient, postID string) {
	if postID == "" {
		return
	}
	g.mu.Lock()
	if g.byPost[postID] == nil {
		g.byPost[postID] = make(map[uuid.UUID]*WSClient)
	}
	g.byPost[postID][client.ID] = client
	g.mu.Unlock()

	client.mu.Lock()
	client.posts[postID] = true
	client.mu.Unlock()

	select {
	case client.Send <- wrap("joined-channel", mustJSON(gin.H{"channel": "post:" + postID})):
	default:
	}
}

func (g *Gateway) leavePost(client *WSClient, postID string) {
	g.mu.Lock()
	if set, ok := g.byPost[postID]; ok {
		delete(set, client.ID)
		if len(set) == 0 {
			delete(g.byPost, postID)
		}
	}
	g.mu.Unlock()

	client.mu.Lock()
	delete(client.posts, postID)
	client.mu.Unlock()
}

// broadcastToUser delivers msg to every tab a user has open. A
// non-blocking send (select/default) means one wedged socket never
// stalls delivery to the rest, unlike the teacher's unbuffered channel.
func (g *Gateway) broadcastToUser(userID string, msg []byte) {
	if userID == "" {
		return
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, client := range g.byUser[userID] {
		select {
		case client.Send <- msg:
		default:
			g.log.Warn("dropping message to slow client", zap.String("user", userID))
		}
	}
}

// broadcastToPost delivers msg to every tab viewing postID except from.
func (g *Gateway) broadcastToPost(postID string, from uuid.UUID, msg []byte) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for id, client := range g.byPost[postID] {
		if id == from {
			continue
		}
		select {
		case client.Send <- msg:
		default:
		}
	}
}
