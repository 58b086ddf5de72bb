package dronelinkapi

import (
	"encoding/json"
	"errors"
	"net/http"

	logging "github.com/ipfs/go-log/v2"

	"DroneLink-Apps/internal/dronelink"
)

var log = logging.Logger("dronelink-api")

type Server struct {
	link *dronelink.Coordinator
}

func NewServer(link *dronelink.Coordinator) *Server {
	return &Server{link: link}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/session", s.handleSession)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/operation", s.handleOperation)
	mux.HandleFunc("/api/peers", s.handlePeers)
	mux.HandleFunc("/api/stream", s.handleStream)
	mux.HandleFunc("/ws", s.handleWebSocket)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.link == nil {
		writeError(w, http.StatusServiceUnavailable, "dronelink unavailable")
		return
	}
	if r.Method == http.MethodOptions {
		writeNoContent(w)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	role, err := dronelink.ParseRole(req.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.link.StartSession(role); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": s.link.Snapshot()})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if s.link == nil {
		writeError(w, http.StatusServiceUnavailable, "dronelink unavailable")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": s.link.Snapshot()})
}

func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	if s.link == nil {
		writeError(w, http.StatusServiceUnavailable, "dronelink unavailable")
		return
	}
	if r.Method == http.MethodOptions {
		writeNoContent(w)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Operation string `json:"operation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	published, err := s.publish(req.Operation)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"published": published})
}

func (s *Server) publish(token string) (bool, error) {
	op, err := dronelink.ParseOperation(token)
	if err != nil {
		return false, err
	}
	return s.link.PublishOperation(op)
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	if s.link == nil {
		writeError(w, http.StatusServiceUnavailable, "dronelink unavailable")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	info, ok := s.link.Peers()
	if !ok {
		writeError(w, http.StatusNotFound, "no peer information for this session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"peers": info})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.link == nil {
		writeError(w, http.StatusServiceUnavailable, "dronelink unavailable")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	updates, cancel := s.link.Updates()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			b, err := json.Marshal(st)
			if err != nil {
				log.Warnf("encode state: %v", err)
				continue
			}
			if _, err := w.Write([]byte("event: state\ndata: " + string(b) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, dronelink.ErrInvalidRole), errors.Is(err, dronelink.ErrInvalidOperation):
		return http.StatusBadRequest
	case errors.Is(err, dronelink.ErrSessionActive), errors.Is(err, dronelink.ErrNoSession):
		return http.StatusConflict
	case errors.Is(err, dronelink.ErrClosed):
		return http.StatusGone
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeNoContent(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	w.WriteHeader(http.StatusNoContent)
}
