package postgres

import (
	"context"

	"github.com/crowdbracket/crowdbracket/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type checkpointRepository struct {
	db *gorm.DB
}

func NewCheckpointRepository(db *gorm.DB) *checkpointRepository {
	return &checkpointRepository{db: db}
}

func (r *checkpointRepository) Upsert(ctx context.Context, checkpoint *domain.BracketCheckpoint) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tournament_id"}, {Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"state", "updated_at"}),
		}).
		Create(checkpoint).Error
}

func (r *checkpointRepository) GetByIdentity(ctx context.Context, tournamentID uuid.UUID, sessionID string) (*domain.BracketCheckpoint, error) {
	var checkpoint domain.BracketCheckpoint
	err := r.db.WithContext(ctx).
		Where("tournament_id = ? AND session_id = ?", tournamentID, sessionID).
		First(&checkpoint).Error
	if err != nil {
		return nil, err
	}
	return &checkpoint, nil
}
