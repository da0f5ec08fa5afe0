package http

import "net/http"

type inboundMessage struct {
	Type string `json:"type"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type startResult struct {
	Started bool `json:"started"`
}

// ServeStream upgrades to a websocket and pushes "room" and "snapshot" updates
// for one room. The only inbound command is "start", which asks the session to
// start the activity.
func (h *MonitorHandler) ServeStream(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomId")
	view, ok := h.room(roomID)
	if !ok {
		http.Error(w, "room not monitored", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("room_id", roomID).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	roomUpdates, cancelRoom := view.Session.Changes()
	defer cancelRoom()
	snapshots, cancelSnapshots := view.Monitor.Updates()
	defer cancelSnapshots()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug().Err(err).Str("room_id", roomID).Msg("ws write failed")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			var msg outboundMessage[any]
			select {
			case state, ok := <-roomUpdates:
				if !ok {
					return
				}
				msg = outboundMessage[any]{Type: "room", Payload: state}
			case _, ok := <-snapshots:
				if !ok {
					return
				}
				msg = outboundMessage[any]{Type: "snapshot", Payload: view.Monitor.State()}
			case <-closeSignals:
				return
			}
			select {
			case send <- msg:
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var reply outboundMessage[any]
		switch inbound.Type {
		case "start":
			started, err := view.Session.StartActivity()
			if err != nil {
				reply = outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			} else {
				reply = outboundMessage[any]{Type: "started", Payload: startResult{Started: started}}
			}
		default:
			reply = outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
		select {
		case send <- reply:
		case <-writerDone:
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
