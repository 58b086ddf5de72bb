package dronelinkapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"DroneLink-Apps/internal/dronelink"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsFrame is every server-to-client websocket message.
type wsFrame struct {
	Type      string           `json:"type"` // state, ack, error
	State     *dronelink.State `json:"state,omitempty"`
	Published *bool            `json:"published,omitempty"`
	Error     string           `json:"error,omitempty"`
}

type wsCommand struct {
	Operation string `json:"operation"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.link == nil {
		writeError(w, http.StatusServiceUnavailable, "dronelink unavailable")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("websocket upgrade: %v", err)
		return
	}

	clientID := uuid.New().String()
	log.Infof("websocket client connected: %s from %s", clientID, r.RemoteAddr)

	updates, cancel := s.link.Updates()
	replies := make(chan wsFrame, 16)
	done := make(chan struct{})
	go func() {
		defer cancel()
		s.writePump(conn, clientID, updates, replies, done)
	}()
	s.readPump(conn, clientID, replies)
	close(done)
	log.Infof("websocket client disconnected: %s", clientID)
}

// readPump turns client commands into operation publishes.
func (s *Server) readPump(conn *websocket.Conn, clientID string, replies chan<- wsFrame) {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warnf("websocket error for client %s: %v", clientID, err)
			}
			return
		}

		var cmd wsCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			reply(replies, wsFrame{Type: "error", Error: "invalid json"})
			continue
		}
		published, err := s.publish(cmd.Operation)
		if err != nil {
			reply(replies, wsFrame{Type: "error", Error: err.Error()})
			continue
		}
		reply(replies, wsFrame{Type: "ack", Published: &published})
	}
}

func reply(replies chan<- wsFrame, f wsFrame) {
	select {
	case replies <- f:
	default:
	}
}

// writePump is the only writer on conn.
func (s *Server) writePump(conn *websocket.Conn, clientID string, updates <-chan dronelink.State, replies <-chan wsFrame, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	write := func(f wsFrame) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(f); err != nil {
			log.Debugf("websocket write to %s: %v", clientID, err)
			return false
		}
		return true
	}

	for {
		select {
		case <-done:
			return
		case st, ok := <-updates:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if !write(wsFrame{Type: "state", State: &st}) {
				return
			}
		case f := <-replies:
			if !write(f) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
