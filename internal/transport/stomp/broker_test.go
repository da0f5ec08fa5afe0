package stomp

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
)

// testBroker is a minimal in-process STOMP broker: it accepts CONNECT, records
// every client frame and routes MESSAGE frames to matching subscriptions.
type testBroker struct {
	server *httptest.Server
	frames chan *frame.Frame

	mu     sync.Mutex
	conns  []*brokerConn
	reject string
	seq    int
}

type brokerConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	subs    map[string]string
}

func newTestBroker(t *testing.T) *testBroker {
	t.Helper()
	b := &testBroker{frames: make(chan *frame.Frame, 256)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := &brokerConn{ws: ws, subs: make(map[string]string)}
		b.mu.Lock()
		b.conns = append(b.conns, c)
		b.mu.Unlock()
		b.serve(c)
	}))
	t.Cleanup(func() {
		b.dropAll()
		b.server.Close()
	})
	return b
}

func (b *testBroker) url() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http") + "/ws"
}

func (b *testBroker) serve(c *brokerConn) {
	defer c.ws.Close()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		f, err := frame.NewReader(bytes.NewReader(data)).Read()
		if err != nil || f == nil {
			continue
		}
		switch f.Command {
		case frame.CONNECT:
			b.mu.Lock()
			reject := b.reject
			b.mu.Unlock()
			if reject != "" {
				c.write(frame.New(frame.ERROR, frame.Message, reject))
			} else {
				c.write(frame.New(frame.CONNECTED, frame.Version, "1.2"))
			}
		case frame.SUBSCRIBE:
			b.mu.Lock()
			c.subs[f.Header.Get(frame.Id)] = f.Header.Get(frame.Destination)
			b.mu.Unlock()
		case frame.UNSUBSCRIBE:
			b.mu.Lock()
			delete(c.subs, f.Header.Get(frame.Id))
			b.mu.Unlock()
		}
		select {
		case b.frames <- f:
		default:
		}
	}
}

func (c *brokerConn) write(f *frame.Frame) {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.WriteMessage(websocket.TextMessage, buf.Bytes())
}

// deliver sends body to every subscription on destination and reports how
// many subscriptions received it.
func (b *testBroker) deliver(destination string, body []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	delivered := 0
	for _, c := range b.conns {
		for id, dest := range c.subs {
			if dest != destination {
				continue
			}
			b.seq++
			f := frame.New(frame.MESSAGE,
				frame.Destination, destination,
				frame.Subscription, id,
				frame.MessageId, strconv.Itoa(b.seq),
				frame.ContentType, "application/json",
			)
			f.Body = body
			c.write(f)
			delivered++
		}
	}
	return delivered
}

func (b *testBroker) sendError(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.conns {
		c.write(frame.New(frame.ERROR, frame.Message, msg))
	}
}

func (b *testBroker) rejectConnect(msg string) {
	b.mu.Lock()
	b.reject = msg
	b.mu.Unlock()
}

func (b *testBroker) dropAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.conns {
		_ = c.ws.Close()
	}
	b.conns = nil
}

// waitFrame returns the next recorded frame with the given command (and
// destination, when not empty), skipping any other frame.
func (b *testBroker) waitFrame(t *testing.T, command, destination string) *frame.Frame {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case f := <-b.frames:
			if f.Command != command {
				continue
			}
			if destination != "" && f.Header.Get(frame.Destination) != destination {
				continue
			}
			return f
		case <-deadline:
			t.Fatalf("timed out waiting for %s %s", command, destination)
			return nil
		}
	}
}

// nextFrame returns the next recorded frame of any command.
func (b *testBroker) nextFrame(t *testing.T) *frame.Frame {
	t.Helper()
	select {
	case f := <-b.frames:
		return f
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for a frame")
		return nil
	}
}
