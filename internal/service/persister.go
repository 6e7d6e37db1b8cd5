package service

import (
	"context"
	"log"

	"github.com/crowdbracket/crowdbracket/internal/broadcast"
	"github.com/google/uuid"
)

// VotePersister adapts the persistence gateway to the broadcast service's
// fire-and-forget hand-off. The vote value is the target participant id;
// a value that isn't one is logged and dropped, never surfaced. The match
// index travels on the event itself, stamped at accept time, so a declare
// racing the async write cannot shift the vote into the next match.
type VotePersister struct {
	votes *VoteService
}

func NewVotePersister(votes *VoteService) *VotePersister {
	return &VotePersister{votes: votes}
}

func (p *VotePersister) PersistVote(ctx context.Context, ev broadcast.VoteEvent) error {
	participantID, err := uuid.Parse(ev.Vote)
	if err != nil {
		log.Printf("WARN [persister.PersistVote] vote %q is not a participant id, skipping durable write", ev.Vote)
		return nil
	}

	_, err = p.votes.RecordVote(ctx, RecordVoteInput{
		TournamentID:  ev.TournamentID,
		ParticipantID: participantID,
		MatchIndex:    ev.MatchIndex,
		VoterID:       ev.VoterID,
		VoterName:     ev.VoterName,
	})
	return err
}
