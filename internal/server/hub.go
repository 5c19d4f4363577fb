// Package server coordinates connection registration, chat subscriptions, and
// broadcast fan-out for the Parley relay via the Hub type.
package server

import (
	"context"
	"log"
	"sync"
	"time"
)

// Hub owns the two process-local registries: the connection registry mapping
// an authenticated user id to its single live connection, and the subscription
// registry mapping a chat id to the set of connections currently viewing it.
// The two are deliberately separate; "is online" is not "is viewing this chat".
type Hub struct {
	clients     map[*Client]bool
	users       map[int64]*Client
	subscribers map[int64]map[*Client]struct{}
	chatOf      map[*Client]int64
	register    chan *Client
	unregister  chan *Client
	mutex       sync.RWMutex

	chatLocks map[int64]*sync.Mutex
	locksMu   sync.Mutex

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates an initialized Hub ready to manage connections.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[*Client]bool),
		users:       make(map[int64]*Client),
		subscribers: make(map[int64]map[*Client]struct{}),
		chatOf:      make(map[*Client]int64),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		chatLocks:   make(map[int64]*sync.Mutex),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// Run starts the hub's event loop, launching pump goroutines for each
// registered client and releasing both registries on unregistration.
// Call in a separate goroutine; it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mutex.Unlock()
			log.Printf("Client %s connected from %s. Total clients: %d", client.id, client.addr, clientCount)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closed = true
				h.unbindLocked(client)
				h.unsubscribeLocked(client)
				clientCount := len(h.clients)
				h.mutex.Unlock()
				// Close the channel after releasing the lock.
				close(client.send)
				log.Printf("Client %s disconnected from %s. Total clients: %d", client.id, client.addr, clientCount)
			} else {
				h.mutex.Unlock()
			}
		}
	}
}

// Bind records userID -> client in the connection registry. Idempotent
// replace, last writer wins; a displaced connection is left open and simply
// loses its binding. A client re-logging-in as a different user releases its
// previous identity first so the old entry cannot outlive the connection.
func (h *Hub) Bind(userID int64, client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if client.userID != 0 && client.userID != userID {
		h.unbindLocked(client)
	}
	client.userID = userID
	h.users[userID] = client
}

// unbindLocked drops the client's user binding, but only when the registry
// still points at this client. A stale connection displaced by a newer login
// must not evict the newer binding when it finally disconnects.
func (h *Hub) unbindLocked(client *Client) {
	if client.userID == 0 {
		return
	}
	if bound, ok := h.users[client.userID]; ok && bound == client {
		delete(h.users, client.userID)
	}
}

// Connection returns the live connection bound to userID, if any. The message
// pipeline never uses this; recipients are always derived from subscriptions.
func (h *Hub) Connection(userID int64) (*Client, bool) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	client, ok := h.users[userID]
	return client, ok
}

// Subscribe marks the client as viewing chatID, removing it from whichever
// chat it was viewing before. A connection views at most one chat at a time;
// re-subscribing to the same chat is a no-op.
func (h *Hub) Subscribe(client *Client, chatID int64) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.unsubscribeLocked(client)

	set, ok := h.subscribers[chatID]
	if !ok {
		set = make(map[*Client]struct{})
		h.subscribers[chatID] = set
	}
	set[client] = struct{}{}
	h.chatOf[client] = chatID
}

// UnsubscribeAll removes the client from whichever chat set it belongs to.
func (h *Hub) UnsubscribeAll(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.unsubscribeLocked(client)
}

func (h *Hub) unsubscribeLocked(client *Client) {
	chatID, ok := h.chatOf[client]
	if !ok {
		return
	}
	delete(h.chatOf, client)
	if set, ok := h.subscribers[chatID]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.subscribers, chatID)
		}
	}
}

// SubscribersOf returns a snapshot of the connections viewing chatID. The
// snapshot tolerates concurrent mutation; a connection disconnecting
// mid-broadcast is skipped by safeSend rather than crashing the dispatch.
func (h *Hub) SubscribersOf(chatID int64) []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	set := h.subscribers[chatID]
	clients := make([]*Client, 0, len(set))
	for client := range set {
		clients = append(clients, client)
	}
	return clients
}

// ChatLock returns the mutex serializing persist+re-read+broadcast for a
// chat, creating it on first use.
func (h *Hub) ChatLock(chatID int64) *sync.Mutex {
	h.locksMu.Lock()
	defer h.locksMu.Unlock()
	lock, ok := h.chatLocks[chatID]
	if !ok {
		lock = &sync.Mutex{}
		h.chatLocks[chatID] = lock
	}
	return lock
}

// Broadcast sends payload to every open connection viewing chatID. Closed or
// saturated connections are dropped silently; partial delivery failure is
// never surfaced to the sender.
func (h *Hub) Broadcast(chatID int64, payload []byte) {
	clients := h.SubscribersOf(chatID)

	var clientsToRemove []*Client
	for _, client := range clients {
		if !h.safeSend(client, payload) {
			clientsToRemove = append(clientsToRemove, client)
		}
	}
	h.removeFailedClients(clientsToRemove)
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeSend: %v", r)
		}
	}()

	// Hold the lock during the entire send so the client cannot be closed
	// out from under us.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// removeFailedClients removes clients that failed to receive messages and closes their channels.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		if _, exists := h.clients[client]; exists {
			delete(h.clients, client)
			client.closed = true
			h.unbindLocked(client)
			h.unsubscribeLocked(client)
			channelsToClose = append(channelsToClose, client.send)
			log.Printf("Client %s removed due to full send buffer", client.id)
		}
	}
	h.mutex.Unlock()

	// Close channels after releasing the lock.
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients closes all active client connections.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing client connection from %s: %v", client.addr, err)
				}
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all client
// goroutines to finish, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
