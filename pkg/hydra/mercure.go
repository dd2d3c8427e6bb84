package hydra

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/go-hclog"
)

// SubscriptionCallback receives one transformed document per inbound Mercure
// update. Messages are handled one at a time per topic, with no ordering
// guarantee relative to concurrent foreground requests.
type SubscriptionCallback func(Document)

// SubscriptionManager discovers a Mercure hub from response metadata, opens
// one event stream per subscribed topic, and reference-counts subscribers so
// repeated Subscribe calls for the same topic share a single stream.
//
// Until a hub is known, Subscribe records a pending intent; the first response
// that reveals the hub upgrades every pending subscription without the caller
// re-issuing Subscribe.
type SubscriptionManager struct {
	mu        sync.Mutex
	hub       *url.URL
	token     string
	topicBase *url.URL

	client      *http.Client
	transformer *Transformer
	logger      hclog.Logger

	subs map[string]*subscription
}

// subscription is the per-topic state machine: pending (no hub known yet),
// active (stream open), or gone once the refcount reaches zero.
type subscription struct {
	topic      string
	callback   SubscriptionCallback
	refcount   int
	subscribed bool
	cancel     context.CancelFunc
	events     chan []byte
}

// SubscriptionOptions configures a SubscriptionManager.
type SubscriptionOptions struct {
	// Hub presets the hub locator; when empty the hub is discovered from
	// response Link headers.
	Hub string

	// Token is the Mercure JWT, sent as a mercureAuthorization cookie on the
	// stream request when set.
	Token string

	// TopicBase resolves relative topics; usually the API entry point.
	TopicBase *url.URL

	Client *http.Client
	Logger hclog.Logger
}

// NewSubscriptionManager creates a manager. The transformer converts inbound
// JSON-LD messages into generic documents before callbacks run.
func NewSubscriptionManager(transformer *Transformer, opts SubscriptionOptions) *SubscriptionManager {
	client := opts.Client
	if client == nil {
		// Event streams are long-lived; the default client timeout must not
		// cut them off.
		client = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	m := &SubscriptionManager{
		token:       opts.Token,
		topicBase:   opts.TopicBase,
		client:      client,
		transformer: transformer,
		logger:      logger,
		subs:        make(map[string]*subscription),
	}
	if opts.Hub != "" {
		if u, err := url.Parse(opts.Hub); err == nil {
			m.hub = u
		} else {
			logger.Warn("invalid mercure hub override", "hub", opts.Hub, "error", err)
		}
	}
	return m
}

// HubKnown reports whether a hub locator has been configured or discovered.
func (m *SubscriptionManager) HubKnown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hub != nil
}

// SetHub records a discovered hub locator. The hub is set at most once per
// manager lifetime; later discoveries are ignored. Every pending subscription
// is upgraded to an active stream.
func (m *SubscriptionManager) SetHub(raw string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hub != nil {
		return
	}
	u, err := url.Parse(raw)
	if err != nil {
		m.logger.Warn("discovered mercure hub has an invalid locator", "hub", raw, "error", err)
		return
	}
	m.hub = u
	m.logger.Debug("mercure hub discovered", "hub", raw)
	for _, sub := range m.subs {
		if !sub.subscribed {
			m.start(sub)
		}
	}
}

// Subscribe registers a callback for a topic. A second Subscribe for the same
// topic shares the existing stream and only bumps the refcount.
func (m *SubscriptionManager) Subscribe(topic string, callback SubscriptionCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.subs[topic]; ok {
		sub.refcount++
		return
	}
	sub := &subscription{topic: topic, callback: callback, refcount: 1}
	m.subs[topic] = sub
	if m.hub != nil {
		m.start(sub)
	}
}

// Unsubscribe drops one subscriber from a topic. When the last subscriber is
// gone the event stream is closed and the record deleted. The refcount is
// clamped at teardown so it is never observed negative.
func (m *SubscriptionManager) Unsubscribe(topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[topic]
	if !ok {
		return
	}
	sub.refcount--
	if sub.refcount > 0 {
		return
	}
	if sub.subscribed && sub.cancel != nil {
		sub.cancel()
	}
	delete(m.subs, topic)
}

// Close tears down every open stream.
func (m *SubscriptionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for topic, sub := range m.subs {
		if sub.subscribed && sub.cancel != nil {
			sub.cancel()
		}
		delete(m.subs, topic)
	}
}

// start upgrades a record to an active stream. Callers hold m.mu.
func (m *SubscriptionManager) start(sub *subscription) {
	streamURL := *m.hub
	query := streamURL.Query()
	query.Add("topic", m.resolveTopic(sub.topic))
	streamURL.RawQuery = query.Encode()

	if m.token != "" {
		m.checkCredential()
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub.subscribed = true
	sub.cancel = cancel
	sub.events = make(chan []byte, 16)

	go m.readStream(ctx, sub, &streamURL)
	go m.handleEvents(sub)
}

// resolveTopic resolves a topic against the topic base, so both absolute
// IRIs and path-only topics ("/books/{id}") work.
func (m *SubscriptionManager) resolveTopic(topic string) string {
	if m.topicBase == nil {
		return topic
	}
	ref, err := url.Parse(topic)
	if err != nil {
		return topic
	}
	return m.topicBase.ResolveReference(ref).String()
}

// checkCredential sanity-checks the configured JWT. An expired or malformed
// token is still sent — the hub is authoritative — but the problem is logged
// so a silent dead stream is diagnosable.
func (m *SubscriptionManager) checkCredential() {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(m.token, claims); err != nil {
		m.logger.Warn("mercure token is not a well-formed JWT", "error", err)
		return
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}
	if exp.Before(time.Now()) {
		m.logger.Warn("mercure token is expired", "expired_at", exp.Time)
	}
}

// readStream opens the SSE connection and forwards raw event payloads to the
// subscription channel until the context is cancelled or the hub closes the
// stream. It owns the channel and closes it on exit, which stops the handler.
func (m *SubscriptionManager) readStream(ctx context.Context, sub *subscription, streamURL *url.URL) {
	defer close(sub.events)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL.String(), nil)
	if err != nil {
		m.logger.Error("mercure stream request", "topic", sub.topic, "error", err)
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if m.token != "" {
		req.AddCookie(&http.Cookie{Name: "mercureAuthorization", Value: m.token, Path: m.hub.Path, Secure: true})
	}

	resp, err := m.client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Error("mercure stream", "topic", sub.topic, "error", err)
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		m.logger.Error("mercure hub rejected the subscription", "topic", sub.topic, "status", resp.StatusCode)
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				payload := []byte(data.String())
				data.Reset()
				select {
				case sub.events <- payload:
				case <-ctx.Done():
					return
				}
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
		// Comment lines and other SSE fields (id, event, retry) are ignored.
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		m.logger.Warn("mercure stream closed", "topic", sub.topic, "error", err)
	}
}

// handleEvents is the single consumer of the subscription channel: it parses
// each message as JSON-LD, transforms it, and invokes the callback.
func (m *SubscriptionManager) handleEvents(sub *subscription) {
	for payload := range sub.events {
		var raw map[string]any
		if err := json.Unmarshal(payload, &raw); err != nil {
			m.logger.Warn("mercure message is not a JSON object", "topic", sub.topic, "error", err)
			continue
		}
		doc := m.transformer.Transform(raw, true, false, false)
		sub.callback(doc)
	}
}
