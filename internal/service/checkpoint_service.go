package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/crowdbracket/crowdbracket/internal/domain"
	"github.com/crowdbracket/crowdbracket/internal/repository"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrCheckpointNotFound = errors.New("checkpoint not found")

// CheckpointService stores bracket snapshots keyed by (tournament,
// session) so a live run can resume after a process restart.
type CheckpointService struct {
	checkpointRepo repository.CheckpointRepository
}

func NewCheckpointService(checkpointRepo repository.CheckpointRepository) *CheckpointService {
	return &CheckpointService{checkpointRepo: checkpointRepo}
}

func (s *CheckpointService) Save(ctx context.Context, tournamentID uuid.UUID, sessionID string, state domain.BracketState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}

	return s.checkpointRepo.Upsert(ctx, &domain.BracketCheckpoint{
		ID:           uuid.New(),
		TournamentID: tournamentID,
		SessionID:    sessionID,
		State:        datatypes.JSON(payload),
	})
}

func (s *CheckpointService) Load(ctx context.Context, tournamentID uuid.UUID, sessionID string) (*domain.BracketState, error) {
	checkpoint, err := s.checkpointRepo.GetByIdentity(ctx, tournamentID, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCheckpointNotFound
		}
		return nil, err
	}

	var state domain.BracketState
	if err := json.Unmarshal(checkpoint.State, &state); err != nil {
		return nil, err
	}
	return &state, nil
}
