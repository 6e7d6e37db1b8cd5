package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/crowdbracket/crowdbracket/internal/domain"
	"github.com/crowdbracket/crowdbracket/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TournamentHandler struct {
	tournaments  repository.TournamentRepository
	participants repository.ParticipantRepository
}

func NewTournamentHandler(tournaments repository.TournamentRepository, participants repository.ParticipantRepository) *TournamentHandler {
	return &TournamentHandler{tournaments: tournaments, participants: participants}
}

type createParticipantRequest struct {
	Name     string  `json:"name"`
	MediaRef *string `json:"mediaRef,omitempty"`
	Category *string `json:"category,omitempty"`
}

type createTournamentRequest struct {
	Name         string                     `json:"name"`
	Channel      string                     `json:"channel"`
	Participants []createParticipantRequest `json:"participants"`
}

type tournamentResponse struct {
	Tournament   *domain.Tournament   `json:"tournament"`
	Participants []domain.Participant `json:"participants"`
}

// Create is POST /api/v1/tournaments. Participants are seeded in the
// order given; that order is the bracket's roster order.
func (h *TournamentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTournamentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	for _, p := range req.Participants {
		if p.Name == "" {
			writeError(w, http.StatusBadRequest, "every participant needs a name")
			return
		}
	}

	tournament := &domain.Tournament{
		ID:      uuid.New(),
		Name:    req.Name,
		Channel: req.Channel,
	}
	if err := h.tournaments.Create(r.Context(), tournament); err != nil {
		log.Printf("ERROR [tournaments.Create] %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	participants := make([]domain.Participant, 0, len(req.Participants))
	for i, p := range req.Participants {
		participant := domain.Participant{
			ID:           uuid.New(),
			TournamentID: tournament.ID,
			Name:         p.Name,
			MediaRef:     p.MediaRef,
			Category:     p.Category,
			Position:     i,
		}
		if err := h.participants.Create(r.Context(), &participant); err != nil {
			log.Printf("ERROR [tournaments.Create] participant %q: %v", p.Name, err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		participants = append(participants, participant)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(tournamentResponse{Tournament: tournament, Participants: participants})
}

// Get is GET /api/v1/tournaments/{tournamentId}.
func (h *TournamentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "tournamentId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tournament id")
		return
	}

	tournament, err := h.tournaments.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "tournament not found")
			return
		}
		log.Printf("ERROR [tournaments.Get] %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	participants, err := h.participants.GetByTournament(r.Context(), id)
	if err != nil {
		log.Printf("ERROR [tournaments.Get] participants: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tournamentResponse{Tournament: tournament, Participants: participants})
}
