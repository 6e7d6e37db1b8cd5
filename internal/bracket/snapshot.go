package bracket

import (
	"errors"

	"github.com/crowdbracket/crowdbracket/internal/domain"
)

var ErrBadSnapshot = errors.New("bracket snapshot is inconsistent")

// Snapshot captures the full engine state for checkpointing.
func (e *Engine) Snapshot() domain.BracketState {
	st := domain.BracketState{
		State:        string(e.state),
		Round:        e.round,
		CurrentMatch: e.current,
		CategoryMode: e.categoryMode,
		Advancing:    append([]domain.Participant(nil), e.advancing...),
		Winner:       e.winner,
		Second:       e.second,
		Third:        e.third,
	}
	for _, m := range e.matches {
		st.Matches = append(st.Matches, domain.MatchState{
			Round:        m.Round,
			Index:        m.Index,
			Participant1: m.Item1.Participant,
			Participant2: m.Item2.Participant,
			Score1:       m.Item1.Score,
			Score2:       m.Item2.Score,
		})
	}
	if e.categoryMode {
		st.CategoryWins = e.CategoryWins()
	}
	return st
}

// Restore rebuilds an engine from a checkpoint snapshot.
func Restore(st domain.BracketState) (*Engine, error) {
	switch State(st.State) {
	case StateNotStarted, StateRoundInProgress, StateWinnerDeclared, StateHalted:
	default:
		return nil, ErrBadSnapshot
	}
	if State(st.State) == StateRoundInProgress {
		if len(st.Matches) == 0 || st.CurrentMatch < 0 || st.CurrentMatch >= len(st.Matches) {
			return nil, ErrBadSnapshot
		}
	}

	e := &Engine{
		state:        State(st.State),
		round:        st.Round,
		current:      st.CurrentMatch,
		categoryMode: st.CategoryMode,
		categoryWins: make(map[string]int),
		advancing:    append([]domain.Participant(nil), st.Advancing...),
		winner:       st.Winner,
		second:       st.Second,
		third:        st.Third,
	}
	for _, m := range st.Matches {
		e.matches = append(e.matches, Match{
			Round: m.Round,
			Index: m.Index,
			Item1: MatchParticipant{Participant: m.Participant1, Score: m.Score1},
			Item2: MatchParticipant{Participant: m.Participant2, Score: m.Score2},
		})
	}
	for k, v := range st.CategoryWins {
		e.categoryWins[k] = v
	}
	return e, nil
}
