package memory

import (
	"testing"

	"classroom-live/internal/app"
	"github.com/rs/zerolog"
)

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()
	key := app.SessionKey{RoomID: "room-1", UserID: "t1"}
	created := 0
	create := func() *app.RoomSession {
		created++
		return app.NewRoomSession(app.SessionConfig{RoomID: "room-1", UserID: "t1"}, nil, zerolog.Nop())
	}

	first, isNew := store.GetOrCreate(key, create)
	if first == nil || !isNew {
		t.Fatalf("expected new session")
	}
	second, isNew := store.GetOrCreate(key, create)
	if second != first || isNew {
		t.Fatalf("expected the same session to be reused")
	}
	if created != 1 {
		t.Fatalf("expected one creation, got %d", created)
	}
	if _, ok := store.Get(key); !ok {
		t.Fatalf("expected session present")
	}

	store.Delete(key)
	if _, ok := store.Get(key); ok {
		t.Fatalf("expected session removed")
	}
}

func TestSessionStoreKeysSorted(t *testing.T) {
	store := NewSessionStore()
	for _, key := range []app.SessionKey{{RoomID: "b", UserID: "1"}, {RoomID: "a", UserID: "2"}, {RoomID: "a", UserID: "1"}} {
		k := key
		store.GetOrCreate(k, func() *app.RoomSession {
			return app.NewRoomSession(app.SessionConfig{RoomID: k.RoomID, UserID: k.UserID}, nil, zerolog.Nop())
		})
	}
	keys := store.Keys()
	if len(keys) != 3 || keys[0].String() != "a:1" || keys[1].String() != "a:2" || keys[2].String() != "b:1" {
		t.Fatalf("unexpected key order %+v", keys)
	}
}
