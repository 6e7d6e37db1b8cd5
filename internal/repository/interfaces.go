package repository

import (
	"context"

	"github.com/crowdbracket/crowdbracket/internal/domain"
	"github.com/google/uuid"
)

type TournamentRepository interface {
	Create(ctx context.Context, tournament *domain.Tournament) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Tournament, error)
}

// ParticipantRepository is the read model supplying ordered participants
// and category labels for bracket initialization.
type ParticipantRepository interface {
	Create(ctx context.Context, participant *domain.Participant) error
	GetByTournament(ctx context.Context, tournamentID uuid.UUID) ([]domain.Participant, error)
}

type VoteRepository interface {
	Create(ctx context.Context, vote *domain.VoteRecord) error
	Update(ctx context.Context, vote *domain.VoteRecord) error
	GetByIdentity(ctx context.Context, tournamentID uuid.UUID, matchIndex int, voterKey string) (*domain.VoteRecord, error)
	CountByIdentity(ctx context.Context, tournamentID uuid.UUID, matchIndex int, voterKey string) (int64, error)
}

type CheckpointRepository interface {
	Upsert(ctx context.Context, checkpoint *domain.BracketCheckpoint) error
	GetByIdentity(ctx context.Context, tournamentID uuid.UUID, sessionID string) (*domain.BracketCheckpoint, error)
}

type Repositories struct {
	Tournament  TournamentRepository
	Participant ParticipantRepository
	Vote        VoteRepository
	Checkpoint  CheckpointRepository
}
