package service

import (
	"github.com/crowdbracket/crowdbracket/internal/config"
	"github.com/crowdbracket/crowdbracket/internal/repository"
)

type Services struct {
	Auth       *AuthService
	Vote       *VoteService
	Checkpoint *CheckpointService
}

func NewServices(repos *repository.Repositories, cfg *config.Config) *Services {
	return &Services{
		Auth:       NewAuthService(cfg),
		Vote:       NewVoteService(repos.Vote),
		Checkpoint: NewCheckpointService(repos.Checkpoint),
	}
}
