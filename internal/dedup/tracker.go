// Package dedup tracks which voters have already been counted, per match
// and per tournament run.
package dedup

import "github.com/google/uuid"

// MatchKey identifies a match structurally. Two keys built from the same
// round, index, and participant pair compare equal regardless of where
// they were constructed, so re-supplying the current match never wipes
// the voted set.
type MatchKey struct {
	Round        int
	Index        int
	Participant1 uuid.UUID
	Participant2 uuid.UUID
}

// Tracker holds the per-match voted set and the tournament-scoped
// super-vote-used set. It has no internal locking; the live run actor
// owns it and serializes all access.
type Tracker struct {
	current    MatchKey
	hasCurrent bool
	voted      map[string]struct{}
	superUsed  map[string]struct{}
}

func New() *Tracker {
	return &Tracker{
		voted:     make(map[string]struct{}),
		superUsed: make(map[string]struct{}),
	}
}

// SetCurrentMatch switches the tracker to a new match, clearing the voted
// set. A structurally identical key is a no-op.
func (t *Tracker) SetCurrentMatch(key MatchKey) {
	if t.hasCurrent && key == t.current {
		return
	}
	t.current = key
	t.hasCurrent = true
	t.voted = make(map[string]struct{})
}

func (t *Tracker) HasVoted(voter string) bool {
	_, ok := t.voted[voter]
	return ok
}

func (t *Tracker) MarkVoted(voter string) {
	t.voted[voter] = struct{}{}
}

// HasSuperVoted reports whether the voter has spent their one super vote
// this run. The set survives match changes.
func (t *Tracker) HasSuperVoted(voter string) bool {
	_, ok := t.superUsed[voter]
	return ok
}

func (t *Tracker) MarkSuperVoted(voter string) {
	t.superUsed[voter] = struct{}{}
}

// Reset clears both sets. Called only on tournament (re)start.
func (t *Tracker) Reset() {
	t.hasCurrent = false
	t.voted = make(map[string]struct{})
	t.superUsed = make(map[string]struct{})
}
