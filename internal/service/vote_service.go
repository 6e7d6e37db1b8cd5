package service

import (
	"context"
	"errors"
	"log"

	"github.com/crowdbracket/crowdbracket/internal/domain"
	"github.com/crowdbracket/crowdbracket/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var ErrMissingVoter = errors.New("vote requires a voterId or voterName")

// Postgres SQLSTATE codes treated as benign races at the durable layer.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// VoteService is the persistence gateway: at most one durable row per
// (tournament, match, voter), idempotent under retries and concurrent
// duplicate inserts.
type VoteService struct {
	voteRepo repository.VoteRepository
}

func NewVoteService(voteRepo repository.VoteRepository) *VoteService {
	return &VoteService{voteRepo: voteRepo}
}

type RecordVoteInput struct {
	TournamentID  uuid.UUID
	ParticipantID uuid.UUID
	MatchIndex    int
	VoterID       string
	VoterName     string
}

// RecordVote records one vote per (tournament, match, voter identity).
// A resubmission with a different target is a vote change and updates the
// existing row. Unique-constraint and foreign-key violations are races or
// junk input, not faults: they are logged and swallowed with a nil record.
func (s *VoteService) RecordVote(ctx context.Context, in RecordVoteInput) (*domain.VoteRecord, error) {
	voterKey := in.VoterID
	if voterKey == "" {
		voterKey = in.VoterName
	}
	if voterKey == "" {
		return nil, ErrMissingVoter
	}

	existing, err := s.voteRepo.GetByIdentity(ctx, in.TournamentID, in.MatchIndex, voterKey)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if existing != nil {
		existing.ParticipantID = in.ParticipantID
		if err := s.voteRepo.Update(ctx, existing); err != nil {
			if isBenignConflict(err) {
				log.Printf("WARN [vote.RecordVote] conflict updating vote for voter %s: %v", voterKey, err)
				return nil, nil
			}
			return nil, err
		}
		return existing, nil
	}

	record := &domain.VoteRecord{
		ID:            uuid.New(),
		TournamentID:  in.TournamentID,
		MatchIndex:    in.MatchIndex,
		VoterKey:      voterKey,
		ParticipantID: in.ParticipantID,
	}
	if in.VoterID != "" {
		record.VoterID = &in.VoterID
	}
	if in.VoterName != "" {
		record.VoterName = &in.VoterName
	}

	if err := s.voteRepo.Create(ctx, record); err != nil {
		if isBenignConflict(err) {
			log.Printf("WARN [vote.RecordVote] conflict inserting vote for voter %s: %v", voterKey, err)
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

// isBenignConflict reports whether err is a unique-constraint race (a
// concurrent duplicate insert) or a foreign-key violation (unknown
// tournament or participant).
func isBenignConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation || pgErr.Code == pgForeignKeyViolation
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrForeignKeyViolated)
}
