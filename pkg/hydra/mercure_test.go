package hydra

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHub is a minimal Mercure hub: it accepts event-stream subscriptions,
// tracks how many are open, and broadcasts pushed events to every connection.
type testHub struct {
	server *httptest.Server
	active atomic.Int32

	mu      sync.Mutex
	topics  []string
	cookies []string
	conns   map[chan string]struct{}
}

func newTestHub(t *testing.T) *testHub {
	t.Helper()
	hub := &testHub{conns: make(map[chan string]struct{})}

	e := echo.New()
	e.HideBanner = true
	e.GET("/.well-known/mercure", func(c echo.Context) error {
		hub.mu.Lock()
		hub.topics = append(hub.topics, c.QueryParam("topic"))
		if cookie, err := c.Cookie("mercureAuthorization"); err == nil {
			hub.cookies = append(hub.cookies, cookie.Value)
		}
		events := make(chan string, 16)
		hub.conns[events] = struct{}{}
		hub.mu.Unlock()

		hub.active.Add(1)
		defer func() {
			hub.active.Add(-1)
			hub.mu.Lock()
			delete(hub.conns, events)
			hub.mu.Unlock()
		}()

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().WriteHeader(http.StatusOK)
		c.Response().Flush()

		for {
			select {
			case payload := <-events:
				fmt.Fprintf(c.Response(), "data: %s\n\n", payload)
				c.Response().Flush()
			case <-c.Request().Context().Done():
				return nil
			}
		}
	})

	hub.server = httptest.NewServer(e)
	t.Cleanup(hub.server.Close)
	return hub
}

func (h *testHub) url() string {
	return h.server.URL + "/.well-known/mercure"
}

func (h *testHub) publish(payload string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for events := range h.conns {
		events <- payload
	}
}

func (h *testHub) lastTopic() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.topics) == 0 {
		return ""
	}
	return h.topics[len(h.topics)-1]
}

func (h *testHub) lastCookie() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.cookies) == 0 {
		return ""
	}
	return h.cookies[len(h.cookies)-1]
}

func TestSubscribeDeliversTransformedDocuments(t *testing.T) {
	hub := newTestHub(t)
	m := NewSubscriptionManager(NewTransformer(NewDocumentCache()), SubscriptionOptions{
		Hub:    hub.url(),
		Client: hub.server.Client(),
	})
	defer m.Close()

	var mu sync.Mutex
	var received []Document
	m.Subscribe("/books/1", func(doc Document) {
		mu.Lock()
		received = append(received, doc)
		mu.Unlock()
	})

	require.Eventually(t, func() bool {
		return hub.active.Load() == 1
	}, time.Second, 10*time.Millisecond, "stream never opened")

	hub.publish(`{"@id": "/books/1", "title": "Moby-Dick", "author": {"@id": "/authors/7", "name": "Melville"}}`)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 10*time.Millisecond, "update never delivered")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/books/1", received[0].ID())
	assert.Equal(t, "/authors/7", received[0]["author"], "relations should arrive flattened")
}

func TestSubscribeSharesStreamPerTopic(t *testing.T) {
	hub := newTestHub(t)
	m := NewSubscriptionManager(NewTransformer(NewDocumentCache()), SubscriptionOptions{
		Hub:    hub.url(),
		Client: hub.server.Client(),
	})
	defer m.Close()

	m.Subscribe("/books/1", func(Document) {})
	m.Subscribe("/books/1", func(Document) {})

	require.Eventually(t, func() bool {
		return hub.active.Load() == 1
	}, time.Second, 10*time.Millisecond)

	// First unsubscribe only drops the refcount, the stream stays open.
	m.Unsubscribe("/books/1")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), hub.active.Load())

	m.Unsubscribe("/books/1")
	assert.Eventually(t, func() bool {
		return hub.active.Load() == 0
	}, time.Second, 10*time.Millisecond, "last unsubscribe should close the stream")
}

func TestPendingSubscriptionsUpgradeOnDiscovery(t *testing.T) {
	hub := newTestHub(t)
	m := NewSubscriptionManager(NewTransformer(NewDocumentCache()), SubscriptionOptions{
		Client: hub.server.Client(),
	})
	defer m.Close()

	m.Subscribe("/books/1", func(Document) {})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), hub.active.Load(), "no stream may open before the hub is known")
	assert.False(t, m.HubKnown())

	m.SetHub(hub.url())

	require.Eventually(t, func() bool {
		return hub.active.Load() == 1
	}, time.Second, 10*time.Millisecond, "pending subscription was not upgraded")
	assert.True(t, m.HubKnown())
}

func TestSetHubIsSetOnce(t *testing.T) {
	hub := newTestHub(t)
	m := NewSubscriptionManager(NewTransformer(NewDocumentCache()), SubscriptionOptions{
		Client: hub.server.Client(),
	})
	defer m.Close()

	m.SetHub(hub.url())
	m.SetHub("https://other.example.com/.well-known/mercure")

	m.Subscribe("/books/1", func(Document) {})
	require.Eventually(t, func() bool {
		return hub.active.Load() == 1
	}, time.Second, 10*time.Millisecond, "stream must go to the first discovered hub")
}

func TestSubscribeResolvesTopicsAndSendsCredential(t *testing.T) {
	hub := newTestHub(t)
	base, err := url.Parse("https://api.example.com/")
	require.NoError(t, err)

	m := NewSubscriptionManager(NewTransformer(NewDocumentCache()), SubscriptionOptions{
		Hub:       hub.url(),
		Token:     "not-a-real-jwt",
		TopicBase: base,
		Client:    hub.server.Client(),
	})
	defer m.Close()

	m.Subscribe("/books/{id}", func(Document) {})

	require.Eventually(t, func() bool {
		return hub.active.Load() == 1
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, "https://api.example.com/books/{id}", hub.lastTopic())
	assert.Equal(t, "not-a-real-jwt", hub.lastCookie())
}
