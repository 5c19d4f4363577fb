package server

import (
	"sync"
	"testing"
	"time"
)

// addTestClient creates a client without a real connection and registers it
// with the hub directly, bypassing the pump goroutines.
func addTestClient(h *Hub) *Client {
	c := NewClient(nil, h, nil, "test")
	h.mutex.Lock()
	h.clients[c] = true
	h.mutex.Unlock()
	return c
}

// dropTestClient mirrors the hub's unregister branch for clients that have no
// running pumps.
func dropTestClient(h *Hub, c *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.closed = true
		h.unbindLocked(c)
		h.unsubscribeLocked(c)
		h.mutex.Unlock()
		close(c.send)
		return
	}
	h.mutex.Unlock()
}

func subscriberSet(h *Hub, chatID int64) map[*Client]bool {
	set := make(map[*Client]bool)
	for _, c := range h.SubscribersOf(chatID) {
		set[c] = true
	}
	return set
}

func TestSubscribeMovesBetweenChats(t *testing.T) {
	h := NewHub()
	c := addTestClient(h)

	h.Subscribe(c, 1)
	if !subscriberSet(h, 1)[c] {
		t.Fatal("Client should be subscribed to chat 1")
	}

	h.Subscribe(c, 2)
	if subscriberSet(h, 1)[c] {
		t.Error("Client should have left chat 1")
	}
	if !subscriberSet(h, 2)[c] {
		t.Error("Client should be subscribed to chat 2")
	}
}

func TestSubscribeIsIdempotent(t *testing.T) {
	h := NewHub()
	c := addTestClient(h)

	h.Subscribe(c, 1)
	h.Subscribe(c, 1)

	if got := len(h.SubscribersOf(1)); got != 1 {
		t.Errorf("Expected 1 subscriber, got %d", got)
	}
}

func TestUnsubscribeAll(t *testing.T) {
	h := NewHub()
	c := addTestClient(h)

	h.Subscribe(c, 5)
	h.UnsubscribeAll(c)

	if len(h.SubscribersOf(5)) != 0 {
		t.Error("Expected no subscribers after UnsubscribeAll")
	}

	// No-op when not subscribed.
	h.UnsubscribeAll(c)
}

func TestBindLastWriterWins(t *testing.T) {
	h := NewHub()
	first := addTestClient(h)
	second := addTestClient(h)

	h.Bind(7, first)
	h.Bind(7, second)

	bound, ok := h.Connection(7)
	if !ok || bound != second {
		t.Error("Second login should own the binding")
	}
}

func TestStaleDisconnectDoesNotEvictNewerBinding(t *testing.T) {
	h := NewHub()
	first := addTestClient(h)
	second := addTestClient(h)

	h.Bind(7, first)
	h.Bind(7, second)

	// The displaced connection finally disconnects; the newer binding
	// must survive.
	dropTestClient(h, first)

	bound, ok := h.Connection(7)
	if !ok || bound != second {
		t.Error("Newer binding was evicted by a stale disconnect")
	}
}

func TestRebindReleasesPreviousIdentity(t *testing.T) {
	h := NewHub()
	c := addTestClient(h)

	// The same connection logs in as one user, then as another. The first
	// identity's entry must not survive the switch.
	h.Bind(1, c)
	h.Bind(2, c)

	if _, ok := h.Connection(1); ok {
		t.Error("Old identity still bound after re-login as a different user")
	}
	if bound, ok := h.Connection(2); !ok || bound != c {
		t.Error("New identity should be bound")
	}

	dropTestClient(h, c)
	if _, ok := h.Connection(1); ok {
		t.Error("Old identity leaked past disconnect")
	}
	if _, ok := h.Connection(2); ok {
		t.Error("Current identity leaked past disconnect")
	}
}

func TestDisconnectReleasesBothRegistries(t *testing.T) {
	h := NewHub()
	c := addTestClient(h)

	h.Bind(3, c)
	h.Subscribe(c, 9)
	dropTestClient(h, c)

	if _, ok := h.Connection(3); ok {
		t.Error("Connection registry entry leaked after disconnect")
	}
	if len(h.SubscribersOf(9)) != 0 {
		t.Error("Subscription leaked after disconnect")
	}
}

func TestBroadcastReachesOnlySubscribers(t *testing.T) {
	h := NewHub()
	viewer := addTestClient(h)
	other := addTestClient(h)

	h.Subscribe(viewer, 1)
	h.Subscribe(other, 2)

	h.Broadcast(1, []byte("snapshot"))

	select {
	case msg := <-viewer.send:
		if string(msg) != "snapshot" {
			t.Errorf("Unexpected payload %q", msg)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Subscriber did not receive broadcast")
	}

	select {
	case msg := <-other.send:
		t.Errorf("Non-subscriber received %q", msg)
	default:
	}
}

func TestBroadcastSkipsClosedClients(t *testing.T) {
	h := NewHub()
	open := addTestClient(h)
	gone := addTestClient(h)

	h.Subscribe(open, 1)
	h.Subscribe(gone, 1)
	dropTestClient(h, gone)

	// Must not panic on the closed client's channel.
	h.Broadcast(1, []byte("snapshot"))

	select {
	case <-open.send:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Open subscriber did not receive broadcast")
	}
}

func TestSubscribersOfToleratesConcurrentMutation(t *testing.T) {
	h := NewHub()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c := addTestClient(h)
				h.Subscribe(c, 1)
				_ = h.SubscribersOf(1)
				h.Broadcast(1, []byte("x"))
				dropTestClient(h, c)
			}
		}()
	}
	wg.Wait()

	if got := len(h.SubscribersOf(1)); got != 0 {
		t.Errorf("Expected empty subscriber set, got %d", got)
	}
}

func TestChatLockIsStablePerChat(t *testing.T) {
	h := NewHub()
	if h.ChatLock(1) != h.ChatLock(1) {
		t.Error("ChatLock must return the same mutex for the same chat")
	}
	if h.ChatLock(1) == h.ChatLock(2) {
		t.Error("Different chats must not share a lock")
	}
}
