// Package apptest provides an in-memory app.Transport for tests that need a
// controllable broker connection.
package apptest

import (
	"context"
	"strconv"
	"sync"

	"classroom-live/internal/app"
	"classroom-live/internal/domain"
)

var _ app.Transport = (*Transport)(nil)

// Publication is one recorded publish.
type Publication struct {
	Destination string
	Body        []byte
}

// Transport records every call and lets tests drive the connection lifecycle.
// With AutoConnect set, Activate reports CONNECTED synchronously.
type Transport struct {
	AutoConnect bool
	PublishErr  error

	mu        sync.Mutex
	hooks     app.TransportHooks
	active    bool
	connected bool
	subs      map[string]subscription
	nextID    int
	published []Publication
	events    []string
}

type subscription struct {
	destination string
	handler     func([]byte)
}

func NewTransport() *Transport {
	return &Transport{
		AutoConnect: true,
		subs:        make(map[string]subscription),
	}
}

func (t *Transport) Activate(ctx context.Context, hooks app.TransportHooks) error {
	t.mu.Lock()
	t.hooks = hooks
	t.active = true
	t.events = append(t.events, "activate")
	auto := t.AutoConnect
	t.mu.Unlock()
	if auto {
		t.Connect()
	}
	return nil
}

func (t *Transport) Deactivate() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = false
	t.connected = false
	t.subs = make(map[string]subscription)
	t.events = append(t.events, "deactivate")
	return nil
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) Publish(destination string, body []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return domain.ErrNotConnected
	}
	t.events = append(t.events, "publish "+destination)
	t.published = append(t.published, Publication{Destination: destination, Body: append([]byte(nil), body...)})
	return t.PublishErr
}

func (t *Transport) Subscribe(destination string, handler func([]byte)) (app.Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil, domain.ErrNotConnected
	}
	t.nextID++
	id := "sub-" + strconv.Itoa(t.nextID)
	t.subs[id] = subscription{destination: destination, handler: handler}
	t.events = append(t.events, "subscribe "+destination)
	return &fakeSubscription{transport: t, id: id, destination: destination}, nil
}

type fakeSubscription struct {
	transport   *Transport
	id          string
	destination string
}

func (s *fakeSubscription) Unsubscribe() error {
	t := s.transport
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.subs[s.id]; !ok {
		return nil
	}
	delete(t.subs, s.id)
	t.events = append(t.events, "unsubscribe "+s.destination)
	return nil
}

// Connect simulates a successful (re)connect.
func (t *Transport) Connect() {
	t.mu.Lock()
	hooks := t.hooks
	t.connected = true
	t.events = append(t.events, "connected")
	t.mu.Unlock()
	if hooks.OnConnecting != nil {
		hooks.OnConnecting()
	}
	if hooks.OnConnect != nil {
		hooks.OnConnect()
	}
}

// Drop simulates a lost socket: subscriptions die with it.
func (t *Transport) Drop(err error) {
	t.mu.Lock()
	hooks := t.hooks
	t.connected = false
	t.subs = make(map[string]subscription)
	t.events = append(t.events, "dropped")
	t.mu.Unlock()
	if hooks.OnDisconnect != nil {
		hooks.OnDisconnect(err)
	}
}

// Fail simulates a broker ERROR frame.
func (t *Transport) Fail(err error) {
	t.mu.Lock()
	hooks := t.hooks
	t.mu.Unlock()
	if hooks.OnError != nil {
		hooks.OnError(err)
	}
}

// Deliver hands body to every live subscription on destination and returns
// how many handlers ran.
func (t *Transport) Deliver(destination string, body []byte) int {
	t.mu.Lock()
	var handlers []func([]byte)
	for _, sub := range t.subs {
		if sub.destination == destination {
			handlers = append(handlers, sub.handler)
		}
	}
	t.mu.Unlock()
	for _, h := range handlers {
		h(body)
	}
	return len(handlers)
}

// Published returns the recorded publications in order.
func (t *Transport) Published() []Publication {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Publication(nil), t.published...)
}

// PublishedTo returns the publications on one destination.
func (t *Transport) PublishedTo(destination string) []Publication {
	var out []Publication
	for _, p := range t.Published() {
		if p.Destination == destination {
			out = append(out, p)
		}
	}
	return out
}

// Events returns the ordered call log, e.g. "subscribe /topic/..." or "publish /app/...".
func (t *Transport) Events() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.events...)
}

// Subscriptions returns the destinations currently subscribed.
func (t *Transport) Subscriptions() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.subs))
	for _, sub := range t.subs {
		out = append(out, sub.destination)
	}
	return out
}

func (t *Transport) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}
