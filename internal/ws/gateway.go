package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/auth"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

const eventRoutingKey = "ws_events.gateway"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway accepts connections, authenticates them, joins them to conversation
// rooms and mediates all real-time operations.
type Gateway struct {
	hub           *Hub
	presence      Registry
	users         repositories.UserRepository
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	verifier      *auth.Verifier
}

// NewGateway constructs a Gateway.
func NewGateway(hub *Hub, presence Registry, users repositories.UserRepository, conversations repositories.ConversationRepository, messages repositories.MessageRepository, verifier *auth.Verifier) *Gateway {
	return &Gateway{
		hub:           hub,
		presence:      presence,
		users:         users,
		conversations: conversations,
		messages:      messages,
		verifier:      verifier,
	}
}

// Handle upgrades the connection, registers presence and starts the read loop.
// Authentication failures reject the connection before any state is touched.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	userID, err := g.validateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	client := NewClient(conn, info)

	g.connect(ctx, client)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	g.publishLifecycleEvent(ctx, "ws_connect", info, "")

	go g.readLoop(context.Background(), client)
}

// connect applies the connect-time side effects: presence registration (evicting
// any prior connection for the user), durable online flag, room joins and the
// global online broadcast.
func (g *Gateway) connect(ctx context.Context, client *Client) {
	userID := client.UserID()

	if prev := g.presence.Register(userID, client); prev != nil {
		g.hub.LeaveAll(prev)
		prev.Close()
	}

	if err := g.users.SetOnline(ctx, userID); err != nil {
		log.Printf("set online failed user=%d: %v", userID, err)
	}

	ids, err := g.conversations.ConversationIDsForUser(ctx, userID)
	if err != nil {
		log.Printf("load conversations failed user=%d: %v", userID, err)
	}
	for _, id := range ids {
		g.hub.Join(id, client)
	}

	g.broadcastPresence(models.EventUserOnline, userID, client)
}

func (g *Gateway) readLoop(ctx context.Context, client *Client) {
	info := client.Info()
	var closeReason string
	defer func() {
		g.disconnect(ctx, client)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		g.publishLifecycleEvent(ctx, "ws_disconnect", info, closeReason)
	}()

	for {
		_, payload, err := client.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				g.publishLifecycleEvent(ctx, "ws_error", info, closeReason)
			}
			return
		}

		var event models.ClientEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			g.sendError(client, "malformed event payload")
			continue
		}
		g.dispatch(ctx, client, event)
	}
}

// disconnect reverses connect. Offline bookkeeping only happens when this
// connection is still the user's registered one; an evicted connection must not
// mark its successor offline.
func (g *Gateway) disconnect(ctx context.Context, client *Client) {
	userID := client.UserID()
	g.hub.LeaveAll(client)
	removed := g.presence.Unregister(userID, client)
	client.Close()

	if !removed {
		return
	}
	if err := g.users.SetOffline(ctx, userID, time.Now()); err != nil {
		log.Printf("set offline failed user=%d: %v", userID, err)
	}
	g.broadcastPresence(models.EventUserOffline, userID, client)
}

func (g *Gateway) dispatch(ctx context.Context, client *Client, event models.ClientEvent) {
	observability.IncWSEvent(event.Type)

	switch event.Type {
	case models.EventConversationJoin:
		g.hub.Join(event.ConversationID, client)
	case models.EventConversationLeave:
		g.hub.Leave(event.ConversationID, client)
	case models.EventMessageSend:
		g.handleSend(ctx, client, event)
	case models.EventTypingStart:
		g.handleTyping(client, event.ConversationID, true)
	case models.EventTypingStop:
		g.handleTyping(client, event.ConversationID, false)
	case models.EventMessagesRead:
		g.handleRead(ctx, client, event.ConversationID)
	default:
		g.sendError(client, "unknown event type")
	}
}

// handleSend validates, persists and fans out a message. The sender's own
// connection receives the echo; no separate ack exists.
func (g *Gateway) handleSend(ctx context.Context, client *Client, event models.ClientEvent) {
	userID := client.UserID()

	conv, err := g.conversations.GetConversation(ctx, event.ConversationID)
	if err != nil || !conv.HasParticipant(userID) {
		g.sendError(client, "conversation not found")
		return
	}

	content := strings.TrimSpace(event.Content)
	if content == "" || utf8.RuneCountInString(content) > models.MaxMessageLength {
		g.sendError(client, "invalid message content")
		return
	}

	msg, err := g.messages.CreateMessage(ctx, conv.ID, userID, content)
	if err != nil {
		log.Printf("create message failed conversation=%d user=%d: %v", conv.ID, userID, err)
		g.sendError(client, "failed to send message")
		return
	}

	if err := g.conversations.UpdateLastMessage(ctx, conv.ID, Preview(content), userID, msg.CreatedAt); err != nil {
		log.Printf("update last message failed conversation=%d: %v", conv.ID, err)
	}

	view := models.MessageView{Message: msg}
	if sender, err := g.users.GetUser(ctx, userID); err == nil {
		view.SenderUsername = sender.Username
		view.SenderEmail = sender.Email
	}

	g.hub.Broadcast(conv.ID, models.MessageReceiveEvent{
		Type:           models.EventMessageReceive,
		ConversationID: conv.ID,
		Message:        view,
	}, nil)
}

// handleTyping relays a typing indicator to the room, excluding the sender.
// Best-effort: no persistence, no membership check.
func (g *Gateway) handleTyping(client *Client, conversationID int, isTyping bool) {
	g.hub.Broadcast(conversationID, models.TypingUpdateEvent{
		Type:           models.EventTypingUpdate,
		ConversationID: conversationID,
		UserID:         client.UserID(),
		IsTyping:       isTyping,
	}, client)
}

// handleRead adds the caller to the read-by set of every unread message in the
// conversation and notifies the room.
func (g *Gateway) handleRead(ctx context.Context, client *Client, conversationID int) {
	userID := client.UserID()

	member, err := g.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil || !member {
		g.sendError(client, "conversation not found")
		return
	}

	if _, err := g.messages.MarkConversationRead(ctx, conversationID, userID); err != nil {
		log.Printf("mark read failed conversation=%d user=%d: %v", conversationID, userID, err)
		g.sendError(client, "failed to mark messages read")
		return
	}

	g.hub.Broadcast(conversationID, models.ReadUpdateEvent{
		Type:           models.EventReadUpdate,
		ConversationID: conversationID,
		UserID:         userID,
	}, nil)
}

// broadcastPresence sends an online/offline event to every connected user except
// the subject's own connection.
func (g *Gateway) broadcastPresence(eventType string, userID int, except *Client) {
	event := models.PresenceEvent{Type: eventType, UserID: userID}
	for _, client := range g.presence.Snapshot() {
		if client != except {
			client.SendEvent(event)
		}
	}
}

// sendError delivers a failure privately to the initiating connection. The
// connection stays open.
func (g *Gateway) sendError(client *Client, message string) {
	client.SendEvent(models.ErrorEvent{Type: models.EventError, Message: message})
}

func (g *Gateway) publishLifecycleEvent(ctx context.Context, name string, info ConnInfo, reason string) {
	durationMS := int64(0)
	if name != "ws_connect" {
		durationMS = time.Since(info.ConnectedAt).Milliseconds()
	}
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       name,
			"conn_id":     info.ConnID,
			"duration_ms": durationMS,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
	_ = observability.PublishEvent(ctx, eventRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload:   payload,
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}

func (g *Gateway) validateToken(header string) (int, error) {
	parts := strings.Split(header, " ")
	if len(parts) == 2 {
		return g.verifier.ValidateToken(parts[1])
	}
	return 0, errors.New("invalid token")
}

// Preview truncates content for the denormalized last-message snapshot.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= models.PreviewLength {
		return content
	}
	return string(runes[:models.PreviewLength])
}
