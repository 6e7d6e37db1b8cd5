package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// BracketCheckpoint is a durable snapshot of a live run, keyed by
// (tournament, session) and upserted in place so resume always sees the
// latest round state.
type BracketCheckpoint struct {
	ID           uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TournamentID uuid.UUID      `json:"tournamentId" gorm:"type:uuid;not null;uniqueIndex:idx_checkpoint_identity"`
	SessionID    string         `json:"sessionId" gorm:"not null;uniqueIndex:idx_checkpoint_identity"`
	State        datatypes.JSON `json:"state" gorm:"not null"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`

	Tournament *Tournament `json:"-" gorm:"foreignKey:TournamentID"`
}

func (BracketCheckpoint) TableName() string {
	return "bracket_checkpoints"
}

// BracketState is the JSON payload stored in a checkpoint. It carries
// everything the engine needs to resume mid-run, including the selected
// participants themselves (the roster may have been sampled at start).
type BracketState struct {
	State        string            `json:"state"`
	Round        int               `json:"round"`
	Matches      []MatchState      `json:"matches"`
	CurrentMatch int               `json:"currentMatch"`
	Advancing    []Participant     `json:"advancing"`
	Winner       *Participant      `json:"winner,omitempty"`
	Second       *Participant      `json:"second,omitempty"`
	Third        *Participant      `json:"third,omitempty"`
	CategoryMode bool              `json:"categoryMode"`
	CategoryWins map[string]int    `json:"categoryWins,omitempty"`
}

// MatchState is one match of the current round in snapshot form.
type MatchState struct {
	Round        int         `json:"round"`
	Index        int         `json:"index"`
	Participant1 Participant `json:"participant1"`
	Participant2 Participant `json:"participant2"`
	Score1       int         `json:"score1"`
	Score2       int         `json:"score2"`
}
