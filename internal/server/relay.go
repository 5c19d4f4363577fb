// Package server dispatches inbound frames to the auth, store, and hub
// layers. This file is the message pipeline: every frame is an independent
// unit of work, authenticated per request and answered with zero or more
// outbound frames.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/store"
)

// Relay wires the hub to the durable store and the token service and handles
// every request type on the wire.
type Relay struct {
	hub    *Hub
	store  *store.Store
	tokens *auth.Tokens
}

// NewRelay creates a Relay over the given collaborators.
func NewRelay(hub *Hub, st *store.Store, tokens *auth.Tokens) *Relay {
	return &Relay{hub: hub, store: st, tokens: tokens}
}

// Hub exposes the relay's hub for lifecycle coordination.
func (r *Relay) Hub() *Hub {
	return r.hub
}

// handleFrame parses one inbound frame and dispatches it. Malformed JSON and
// unknown types are logged and dropped with no reply; the connection stays
// open either way.
func (r *Relay) handleFrame(c *Client, raw []byte) {
	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		log.Printf("Malformed frame from %s: %v", c.addr, err)
		return
	}

	switch req.Type {
	case typeRegister:
		r.handleRegister(c, &req)
	case typeLogin:
		r.handleLogin(c, &req)
	case typeListChats:
		r.handleListChats(c, &req)
	case typeLoadChat:
		r.handleLoadChat(c, &req)
	case typeSendMessage:
		r.handleSendMessage(c, &req)
	case typeCreateGroup:
		r.handleCreateGroup(c, &req)
	default:
		log.Printf("Unknown frame type %q from %s", req.Type, c.addr)
	}
}

// sendFrame marshals v and queues it on the client's send channel.
func (r *Relay) sendFrame(c *Client, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("Error marshaling frame for %s: %v", c.addr, err)
		return
	}
	r.hub.safeSend(c, payload)
}

// sendError reports a failure to the client. Error frames never close the
// connection.
func (r *Relay) sendError(c *Client, message string) {
	r.sendFrame(c, errorFrame{Type: "error", Message: message})
}

// authenticate verifies the token of an authenticated request. On failure it
// sends an error frame and returns nil; callers must short-circuit.
func (r *Relay) authenticate(c *Client, token string) *auth.Claims {
	claims, err := r.tokens.Verify(token)
	if err != nil {
		r.sendError(c, "invalid token")
		return nil
	}
	return claims
}

func (r *Relay) handleRegister(c *Client, req *request) {
	if req.DisplayName == "" || req.Email == "" || req.Password == "" {
		r.sendError(c, "displayName, email and password are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("Register error for %s: %v", c.addr, err)
		r.sendError(c, "registration failed")
		return
	}

	userID, err := r.store.CreateUser(req.DisplayName, req.Email, hash)
	if errors.Is(err, store.ErrDuplicateEmail) {
		r.sendError(c, "email already registered")
		return
	}
	if err != nil {
		log.Printf("Register error for %s: %v", c.addr, err)
		r.sendError(c, "registration failed")
		return
	}

	r.sendFrame(c, registerSuccessFrame{Type: "register_success", UserID: userID})
}

func (r *Relay) handleLogin(c *Client, req *request) {
	user, err := r.store.GetUserByEmail(req.Email)
	if errors.Is(err, store.ErrNotFound) {
		r.sendError(c, "invalid credentials")
		return
	}
	if err != nil {
		log.Printf("Login error for %s: %v", c.addr, err)
		r.sendError(c, "login failed")
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		r.sendError(c, "invalid credentials")
		return
	}

	token, err := r.tokens.Issue(user.ID, user.Name)
	if err != nil {
		log.Printf("Token issue error for %s: %v", c.addr, err)
		r.sendError(c, "login failed")
		return
	}

	// Bind this connection as the user's live connection; a previous
	// binding for the same user is replaced but not closed.
	r.hub.Bind(user.ID, c)

	if err := r.store.RecordSession(user.ID, token, time.Now().UTC()); err != nil {
		// Audit only; the login still succeeds.
		log.Printf("Failed to record session for user %d: %v", user.ID, err)
	}

	r.sendFrame(c, loginSuccessFrame{Type: "login_success", Token: token})
}

func (r *Relay) handleListChats(c *Client, req *request) {
	claims := r.authenticate(c, req.Token)
	if claims == nil {
		return
	}

	chats, err := r.store.ListChatsForUser(claims.UserID)
	if err != nil {
		log.Printf("List chats error for user %d: %v", claims.UserID, err)
		r.sendError(c, "failed to list chats")
		return
	}

	infos := make([]chatInfo, 0, len(chats))
	for _, chat := range chats {
		infos = append(infos, chatInfo{ID: chat.ID, Name: chat.Name, Kind: chat.Kind})
	}
	r.sendFrame(c, chatListFrame{Type: "chat_list", Chats: infos})
}

func (r *Relay) handleLoadChat(c *Client, req *request) {
	claims := r.authenticate(c, req.Token)
	if claims == nil {
		return
	}

	if !r.requireMembership(c, req.ChatID, claims.UserID) {
		return
	}

	// The chat lock covers subscribe+read so a concurrent send cannot slip
	// between the subscription and the history snapshot.
	lock := r.hub.ChatLock(req.ChatID)
	lock.Lock()
	defer lock.Unlock()

	r.hub.Subscribe(c, req.ChatID)

	history, err := r.historyFrame(req.ChatID)
	if err != nil {
		log.Printf("Load chat %d error for user %d: %v", req.ChatID, claims.UserID, err)
		r.sendError(c, "failed to load chat history")
		return
	}
	r.sendFrame(c, history)
}

func (r *Relay) handleSendMessage(c *Client, req *request) {
	claims := r.authenticate(c, req.Token)
	if claims == nil {
		return
	}

	if req.Content == "" {
		r.sendError(c, "message content is required")
		return
	}

	if !r.requireMembership(c, req.ChatID, claims.UserID) {
		return
	}

	// persist -> re-read-all -> broadcast, serialized per chat so a racing
	// send cannot publish a stale snapshot over a newer one.
	lock := r.hub.ChatLock(req.ChatID)
	lock.Lock()
	defer lock.Unlock()

	if err := r.store.SaveMessage(req.ChatID, claims.UserID, req.Content, time.Now().UTC()); err != nil {
		log.Printf("Persist error for chat %d from user %d: %v", req.ChatID, claims.UserID, err)
		r.sendError(c, "failed to persist message")
		return
	}

	history, err := r.historyFrame(req.ChatID)
	if err != nil {
		log.Printf("History re-read error for chat %d: %v", req.ChatID, err)
		r.sendError(c, "failed to read chat history")
		return
	}

	payload, err := json.Marshal(history)
	if err != nil {
		log.Printf("Error marshaling history for chat %d: %v", req.ChatID, err)
		return
	}
	// Full snapshot to every subscriber; the sender hears back only through
	// this broadcast, and only if it is itself subscribed.
	r.hub.Broadcast(req.ChatID, payload)
}

func (r *Relay) handleCreateGroup(c *Client, req *request) {
	claims := r.authenticate(c, req.Token)
	if claims == nil {
		return
	}

	if req.GroupName == "" {
		r.sendError(c, "groupName is required")
		return
	}

	chatID, members, err := r.store.CreateGroupChat(req.GroupName, claims.UserID, req.ParticipantIDs)
	if err != nil {
		log.Printf("Create group error for user %d: %v", claims.UserID, err)
		r.sendError(c, "failed to create group")
		return
	}

	r.sendFrame(c, groupCreatedFrame{
		Type:         "group_created",
		ChatID:       chatID,
		GroupName:    req.GroupName,
		Participants: members,
	})
}

// requireMembership checks the durable membership relation and reports the
// failure to the client when the user may not see the chat.
func (r *Relay) requireMembership(c *Client, chatID, userID int64) bool {
	ok, err := r.store.IsMember(chatID, userID)
	if err != nil {
		log.Printf("Membership check error for chat %d user %d: %v", chatID, userID, err)
		r.sendError(c, "failed to verify chat membership")
		return false
	}
	if !ok {
		r.sendError(c, "not a member of this chat")
		return false
	}
	return true
}

// historyFrame reads the full ordered history for a chat.
func (r *Relay) historyFrame(chatID int64) (chatHistoryFrame, error) {
	messages, err := r.store.ChatHistory(chatID)
	if err != nil {
		return chatHistoryFrame{}, err
	}

	infos := make([]messageInfo, 0, len(messages))
	for _, m := range messages {
		infos = append(infos, messageInfo{
			SenderID: m.SenderID,
			Content:  m.Content,
			SentAt:   formatSentAt(m.SentAt),
		})
	}
	return chatHistoryFrame{Type: "chat_history", ChatID: chatID, Messages: infos}, nil
}
