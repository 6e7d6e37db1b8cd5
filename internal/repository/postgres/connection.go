package postgres

import (
	"github.com/crowdbracket/crowdbracket/internal/domain"
	"github.com/crowdbracket/crowdbracket/internal/repository"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewConnection(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// Auto-migrate tables
	err = db.AutoMigrate(
		&domain.Tournament{},
		&domain.Participant{},
		&domain.VoteRecord{},
		&domain.BracketCheckpoint{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}

func NewRepositories(db *gorm.DB) *repository.Repositories {
	return &repository.Repositories{
		Tournament:  NewTournamentRepository(db),
		Participant: NewParticipantRepository(db),
		Vote:        NewVoteRepository(db),
		Checkpoint:  NewCheckpointRepository(db),
	}
}
