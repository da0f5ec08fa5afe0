package app

import "context"

// TransportHooks are invoked from the transport's reader goroutine.
type TransportHooks struct {
	OnConnecting func()
	OnConnect    func()
	OnDisconnect func(err error)
	OnError      func(err error)
}

// Subscription is one live topic subscription.
type Subscription interface {
	Unsubscribe() error
}

// Publisher is the narrow view the delivery channel needs of a connection.
type Publisher interface {
	Connected() bool
	Publish(destination string, body []byte) error
}

// Transport abstracts the broker connection (STOMP over WebSocket in production).
// Activate returns immediately; connection progress is reported through hooks,
// and reconnects (if any) are the transport's own policy.
type Transport interface {
	Publisher
	Activate(ctx context.Context, hooks TransportHooks) error
	Deactivate() error
	Subscribe(destination string, handler func(body []byte)) (Subscription, error)
}
