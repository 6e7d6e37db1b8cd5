package domain

import (
	"time"

	"github.com/google/uuid"
)

// Side identifies one of the two slots in a head-to-head match.
type Side int

const (
	SideNone Side = 0
	Side1    Side = 1
	Side2    Side = 2
)

// Valid reports whether the side is one of the two match slots.
func (s Side) Valid() bool {
	return s == Side1 || s == Side2
}

type Tournament struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name      string    `json:"name" gorm:"not null"`
	Channel   string    `json:"channel"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Tournament) TableName() string {
	return "tournaments"
}

// Participant is a seeded tournament entry. Identity is immutable after
// setup; only the live run mutates per-match scores, never the row.
type Participant struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TournamentID uuid.UUID `json:"tournamentId" gorm:"type:uuid;not null;index"`
	Name         string    `json:"name" gorm:"not null"`
	MediaRef     *string   `json:"mediaRef,omitempty"`
	Category     *string   `json:"category,omitempty"`
	Position     int       `json:"position" gorm:"not null;default:0"`
	CreatedAt    time.Time `json:"createdAt"`

	Tournament *Tournament `json:"-" gorm:"foreignKey:TournamentID"`
}

func (Participant) TableName() string {
	return "participants"
}

// CategoryLabel returns the participant's category tag, or "" when untagged.
func (p *Participant) CategoryLabel() string {
	if p.Category == nil {
		return ""
	}
	return *p.Category
}
