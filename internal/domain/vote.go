package domain

import (
	"time"

	"github.com/google/uuid"
)

// VoteRecord is the durable form of a vote: at most one row per
// (tournament, match index, voter key). Resubmission with a different
// target is a vote change and updates the row in place.
type VoteRecord struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TournamentID  uuid.UUID `json:"tournamentId" gorm:"type:uuid;not null;uniqueIndex:idx_vote_identity"`
	MatchIndex    int       `json:"matchIndex" gorm:"not null;uniqueIndex:idx_vote_identity"`
	VoterKey      string    `json:"voterKey" gorm:"not null;uniqueIndex:idx_vote_identity"`
	VoterID       *string   `json:"voterId,omitempty"`
	VoterName     *string   `json:"voterName,omitempty"`
	ParticipantID uuid.UUID `json:"participantId" gorm:"type:uuid;not null"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`

	Tournament  *Tournament  `json:"-" gorm:"foreignKey:TournamentID"`
	Participant *Participant `json:"-" gorm:"foreignKey:ParticipantID"`
}

func (VoteRecord) TableName() string {
	return "vote_records"
}
