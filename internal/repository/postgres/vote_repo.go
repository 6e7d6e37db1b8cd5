package postgres

import (
	"context"

	"github.com/crowdbracket/crowdbracket/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type voteRepository struct {
	db *gorm.DB
}

func NewVoteRepository(db *gorm.DB) *voteRepository {
	return &voteRepository{db: db}
}

func (r *voteRepository) Create(ctx context.Context, vote *domain.VoteRecord) error {
	return r.db.WithContext(ctx).Create(vote).Error
}

func (r *voteRepository) Update(ctx context.Context, vote *domain.VoteRecord) error {
	return r.db.WithContext(ctx).Save(vote).Error
}

func (r *voteRepository) GetByIdentity(ctx context.Context, tournamentID uuid.UUID, matchIndex int, voterKey string) (*domain.VoteRecord, error) {
	var vote domain.VoteRecord
	err := r.db.WithContext(ctx).
		Where("tournament_id = ? AND match_index = ? AND voter_key = ?", tournamentID, matchIndex, voterKey).
		First(&vote).Error
	if err != nil {
		return nil, err
	}
	return &vote, nil
}

func (r *voteRepository) CountByIdentity(ctx context.Context, tournamentID uuid.UUID, matchIndex int, voterKey string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.VoteRecord{}).
		Where("tournament_id = ? AND match_index = ? AND voter_key = ?", tournamentID, matchIndex, voterKey).
		Count(&count).Error
	return count, err
}
