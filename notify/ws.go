package notify

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn serializes writes to a gorilla connection. Gorilla panics on
// concurrent writes, and the pump and ping loops both write.
type wsConn struct {
	c       *websocket.Conn
	writeMu sync.Mutex
}

func (cw *wsConn) writeJSON(v interface{}) error {
	cw.writeMu.Lock()
	defer cw.writeMu.Unlock()
	cw.c.SetWriteDeadline(time.Now().Add(writeTimeout))
	return cw.c.WriteJSON(v)
}

func (cw *wsConn) writePing() error {
	cw.writeMu.Lock()
	defer cw.writeMu.Unlock()
	cw.c.SetWriteDeadline(time.Now().Add(writeTimeout))
	return cw.c.WriteMessage(websocket.PingMessage, nil)
}

// WSHandler returns an http.Handler that upgrades the request and streams
// every hub broadcast to the client as JSON.
func WSHandler(hub *Hub, logger Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		conn := &wsConn{c: raw}

		id := uuid.NewString()
		ch := make(chan Message, 10)
		hub.Register(id, ch)
		logger.Debug("Websocket client connected", "id", id, "remote", r.RemoteAddr)

		defer func() {
			hub.Unregister(id)
			raw.Close()
			logger.Debug("Websocket client disconnected", "id", id)
		}()

		// Drain reads so pong frames and client closes are noticed.
		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			for {
				if _, _, err := raw.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(pingInterval)
		defer ping.Stop()

		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if err := conn.writeJSON(&msg); err != nil {
					return
				}
			case <-ping.C:
				if err := conn.writePing(); err != nil {
					return
				}
			case <-readDone:
				return
			}
		}
	}
}
