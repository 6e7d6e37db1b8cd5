package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/crowdbracket/crowdbracket/internal/bracket"
	"github.com/crowdbracket/crowdbracket/internal/domain"
	"github.com/crowdbracket/crowdbracket/internal/live"
	"github.com/crowdbracket/crowdbracket/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type RunHandler struct {
	manager *live.Manager
}

func NewRunHandler(manager *live.Manager) *RunHandler {
	return &RunHandler{manager: manager}
}

type startRunRequest struct {
	SelectionSize int    `json:"selectionSize"`
	CategoryMode  bool   `json:"categoryMode"`
	Channel       string `json:"channel"`
}

// Start is POST /api/v1/runs/{tournamentId}.
func (h *RunHandler) Start(w http.ResponseWriter, r *http.Request) {
	tournamentID, ok := h.tournamentID(w, r)
	if !ok {
		return
	}

	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	run, err := h.manager.StartRun(r.Context(), tournamentID, live.StartInput{
		SelectionSize: req.SelectionSize,
		CategoryMode:  req.CategoryMode,
		Channel:       req.Channel,
	})
	if err != nil {
		switch {
		case errors.Is(err, live.ErrRunExists):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, bracket.ErrTooFewParticipants):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("ERROR [runs.Start] tournament %s: %v", tournamentID, err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	h.writeSnapshot(w, r, run, http.StatusCreated)
}

// Get is GET /api/v1/runs/{tournamentId}.
func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	tournamentID, ok := h.tournamentID(w, r)
	if !ok {
		return
	}

	run, found := h.manager.Get(tournamentID)
	if !found {
		writeError(w, http.StatusNotFound, live.ErrRunNotFound.Error())
		return
	}

	h.writeSnapshot(w, r, run, http.StatusOK)
}

type declareWinnerRequest struct {
	MatchIndex int `json:"matchIndex"`
	Side       int `json:"side"`
}

// DeclareWinner is POST /api/v1/runs/{tournamentId}/declare-winner.
func (h *RunHandler) DeclareWinner(w http.ResponseWriter, r *http.Request) {
	tournamentID, ok := h.tournamentID(w, r)
	if !ok {
		return
	}

	var req declareWinnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	side := domain.Side(req.Side)
	if !side.Valid() {
		writeError(w, http.StatusBadRequest, "side must be 1 or 2")
		return
	}

	run, found := h.manager.Get(tournamentID)
	if !found {
		writeError(w, http.StatusNotFound, live.ErrRunNotFound.Error())
		return
	}

	if _, err := run.DeclareWinner(r.Context(), req.MatchIndex, side); err != nil {
		switch {
		case errors.Is(err, bracket.ErrNotCurrentMatch),
			errors.Is(err, bracket.ErrMatchOutOfRange),
			errors.Is(err, bracket.ErrNoActiveRound):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, live.ErrRunStopped):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, bracket.ErrInvariantViolation):
			log.Printf("ERROR [runs.DeclareWinner] tournament %s halted: %v", tournamentID, err)
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			log.Printf("ERROR [runs.DeclareWinner] tournament %s: %v", tournamentID, err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	h.writeSnapshot(w, r, run, http.StatusOK)
}

type resumeRunRequest struct {
	SessionID string `json:"sessionId"`
	Channel   string `json:"channel"`
}

// Resume is POST /api/v1/runs/{tournamentId}/resume.
func (h *RunHandler) Resume(w http.ResponseWriter, r *http.Request) {
	tournamentID, ok := h.tournamentID(w, r)
	if !ok {
		return
	}

	var req resumeRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	run, err := h.manager.Resume(r.Context(), tournamentID, live.ResumeInput{
		SessionID: req.SessionID,
		Channel:   req.Channel,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCheckpointNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, live.ErrRunExists):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, bracket.ErrBadSnapshot):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			log.Printf("ERROR [runs.Resume] tournament %s: %v", tournamentID, err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	h.writeSnapshot(w, r, run, http.StatusOK)
}

// Stop is DELETE /api/v1/runs/{tournamentId}.
func (h *RunHandler) Stop(w http.ResponseWriter, r *http.Request) {
	tournamentID, ok := h.tournamentID(w, r)
	if !ok {
		return
	}

	if err := h.manager.StopRun(tournamentID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *RunHandler) tournamentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "tournamentId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tournament id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *RunHandler) writeSnapshot(w http.ResponseWriter, r *http.Request, run *live.Run, status int) {
	snap, err := run.Snapshot(r.Context())
	if err != nil {
		log.Printf("ERROR [runs.writeSnapshot] %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(snap)
}
