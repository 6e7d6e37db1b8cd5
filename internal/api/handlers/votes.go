package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/crowdbracket/crowdbracket/internal/broadcast"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

const (
	subscribeWriteWait = 10 * time.Second
	subscribePongWait  = 60 * time.Second
	subscribePingEvery = 50 * time.Second
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // overlays are served from arbitrary origins
	},
}

type VoteHandler struct {
	broadcaster *broadcast.Service
}

func NewVoteHandler(broadcaster *broadcast.Service) *VoteHandler {
	return &VoteHandler{broadcaster: broadcaster}
}

type submitResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

// Submit is POST /votes/{tournamentId}.
func (h *VoteHandler) Submit(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := uuid.Parse(chi.URLParam(r, "tournamentId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tournament id")
		return
	}

	var sub broadcast.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.broadcaster.Submit(r.Context(), tournamentID, sub); err != nil {
		switch {
		case errors.Is(err, broadcast.ErrEmptyVote), errors.Is(err, broadcast.ErrMissingVoter):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, broadcast.ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, err.Error())
		default:
			log.Printf("ERROR [votes.Submit] unexpected failure: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(submitResponse{OK: true})
}

type streamFrame struct {
	Type string               `json:"type"`
	Data *broadcast.VoteEvent `json:"data,omitempty"`
}

// Subscribe is GET /votes/{tournamentId}/subscribe: a long-lived push
// stream. Events are forwarded one per frame; batching is the remote
// subscriber's responsibility.
func (h *VoteHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := uuid.Parse(chi.URLParam(r, "tournamentId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tournament id")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ERROR [votes.Subscribe] upgrade failed: %v", err)
		return
	}

	subID := uuid.New().String()

	// A single mutex serializes the batch callback and the keepalive
	// pings; gorilla connections allow only one concurrent writer.
	var writeMu sync.Mutex
	writeFrame := func(frame streamFrame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(subscribeWriteWait))
		return conn.WriteJSON(frame)
	}

	if err := writeFrame(streamFrame{Type: "connected"}); err != nil {
		conn.Close()
		return
	}

	h.broadcaster.Subscribe(tournamentID, subID, broadcast.SubscriberConfig{MaxBatch: 1}, func(events []broadcast.VoteEvent) {
		for i := range events {
			if err := writeFrame(streamFrame{Type: "vote", Data: &events[i]}); err != nil {
				return
			}
		}
	})

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(subscribePingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				writeMu.Lock()
				conn.SetWriteDeadline(time.Now().Add(subscribeWriteWait))
				err := conn.WriteMessage(ws.PingMessage, nil)
				writeMu.Unlock()
				if err != nil {
					conn.Close()
					return
				}
			case <-stop:
				return
			}
		}
	}()

	// Consume the read side until the peer goes away, then tear down.
	conn.SetReadDeadline(time.Now().Add(subscribePongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(subscribePongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(stop)
	h.broadcaster.Unsubscribe(tournamentID, subID)
	conn.Close()
}
