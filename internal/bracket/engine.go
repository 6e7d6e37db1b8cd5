package bracket

import (
	"errors"
	"math/rand"

	"github.com/crowdbracket/crowdbracket/internal/domain"
)

var (
	ErrTooFewParticipants = errors.New("at least 2 eligible participants are required")
	ErrNoActiveRound      = errors.New("no round in progress")
	ErrMatchOutOfRange    = errors.New("match index out of range for current round")
	ErrNotCurrentMatch    = errors.New("match is not the current match")
	ErrInvariantViolation = errors.New("bracket invariant violated")
)

// State is the engine lifecycle. WinnerDeclared and Halted are terminal;
// there is no implicit reset.
type State string

const (
	StateNotStarted      State = "not_started"
	StateRoundInProgress State = "round_in_progress"
	StateWinnerDeclared  State = "winner_declared"
	StateHalted          State = "halted"
)

// MatchParticipant pairs a participant with its live per-match score.
type MatchParticipant struct {
	Participant domain.Participant
	Score       int
}

// Match is one head-to-head pairing of the current round. Matches exist
// only while their round is in progress.
type Match struct {
	Round int
	Index int
	Item1 MatchParticipant
	Item2 MatchParticipant
}

// Options configures bracket construction.
type Options struct {
	// SelectionSize limits how many roster entries play. Zero means the
	// full roster. When smaller than the roster, entries are sampled
	// uniformly without replacement.
	SelectionSize int
	// CategoryMode tallies wins per participant category. Observational
	// only; it never influences pairing.
	CategoryMode bool
}

// Outcome reports what a DeclareWinner call resolved.
type Outcome struct {
	Winner         domain.Participant
	Loser          domain.Participant
	RoundAdvanced  bool
	NewRound       int
	WinnerDeclared bool
}

// Engine is the single-elimination state machine. It is not safe for
// concurrent use; the live run actor owns it.
type Engine struct {
	state        State
	round        int
	matches      []Match
	current      int
	advancing    []domain.Participant
	winner       *domain.Participant
	second       *domain.Participant
	third        *domain.Participant
	categoryMode bool
	categoryWins map[string]int
}

// New samples, shuffles, and pairs the roster into the first round.
func New(roster []domain.Participant, opts Options) (*Engine, error) {
	if len(roster) < 2 {
		return nil, ErrTooFewParticipants
	}

	selection := opts.SelectionSize
	if selection <= 0 || selection > len(roster) {
		selection = len(roster)
	}
	if selection < 2 {
		return nil, ErrTooFewParticipants
	}

	pool := make([]domain.Participant, len(roster))
	copy(pool, roster)
	rand.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	pool = pool[:selection]

	e := &Engine{
		state:        StateNotStarted,
		categoryMode: opts.CategoryMode,
		categoryWins: make(map[string]int),
	}
	if err := e.startRound(1, pool); err != nil {
		return nil, err
	}
	return e, nil
}

// startRound pairs the pool consecutively (0v1, 2v3, ...). An odd count
// seeds exactly one bye directly into the advancing list.
func (e *Engine) startRound(round int, pool []domain.Participant) error {
	if len(pool) == 0 {
		e.state = StateHalted
		return ErrInvariantViolation
	}

	matches := make([]Match, 0, len(pool)/2)
	for i := 0; i+1 < len(pool); i += 2 {
		matches = append(matches, Match{
			Round: round,
			Index: len(matches),
			Item1: MatchParticipant{Participant: pool[i]},
			Item2: MatchParticipant{Participant: pool[i+1]},
		})
	}

	e.round = round
	e.matches = matches
	e.current = 0
	e.advancing = e.advancing[:0]
	if len(pool)%2 == 1 {
		e.advancing = append(e.advancing, pool[len(pool)-1])
	}

	if len(matches) == 0 {
		// A lone bye is immediately the winner.
		if len(e.advancing) == 1 {
			w := e.advancing[0]
			e.winner = &w
			e.state = StateWinnerDeclared
			return nil
		}
		e.state = StateHalted
		return ErrInvariantViolation
	}

	e.state = StateRoundInProgress
	return nil
}

// DeclareWinner resolves the current match in favor of side, appends the
// winner to the advancing list, and advances the match pointer or the
// round. Only the current match may be declared.
func (e *Engine) DeclareWinner(matchIndex int, side domain.Side) (Outcome, error) {
	if e.state != StateRoundInProgress {
		return Outcome{}, ErrNoActiveRound
	}
	if matchIndex < 0 || matchIndex >= len(e.matches) {
		return Outcome{}, ErrMatchOutOfRange
	}
	if matchIndex != e.current {
		return Outcome{}, ErrNotCurrentMatch
	}
	if !side.Valid() {
		return Outcome{}, ErrMatchOutOfRange
	}

	m := e.matches[matchIndex]
	winner, loser := m.Item1.Participant, m.Item2.Participant
	if side == domain.Side2 {
		winner, loser = loser, winner
	}

	if e.categoryMode {
		if cat := winner.CategoryLabel(); cat != "" {
			e.categoryWins[cat]++
		}
	}

	e.advancing = append(e.advancing, winner)
	out := Outcome{Winner: winner, Loser: loser}

	if matchIndex < len(e.matches)-1 {
		e.current++
		return out, nil
	}

	// Last match of the round.
	switch len(e.advancing) {
	case 0:
		e.state = StateHalted
		return out, ErrInvariantViolation
	case 1:
		w := e.advancing[0]
		e.winner = &w
		e.second = &loser
		e.state = StateWinnerDeclared
		out.WinnerDeclared = true
		return out, nil
	case 2:
		// Semifinal boundary: the next round is the final.
		e.third = &loser
	}

	pool := make([]domain.Participant, len(e.advancing))
	copy(pool, e.advancing)
	if err := e.startRound(e.round+1, pool); err != nil {
		return out, err
	}
	out.RoundAdvanced = true
	out.NewRound = e.round
	out.WinnerDeclared = e.state == StateWinnerDeclared
	return out, nil
}

// AddScore applies a signed delta to one side of the current match,
// clamping the result at zero.
func (e *Engine) AddScore(side domain.Side, delta int) error {
	if e.state != StateRoundInProgress {
		return ErrNoActiveRound
	}
	if !side.Valid() {
		return ErrMatchOutOfRange
	}
	m := &e.matches[e.current]
	target := &m.Item1
	if side == domain.Side2 {
		target = &m.Item2
	}
	target.Score += delta
	if target.Score < 0 {
		target.Score = 0
	}
	return nil
}

// SetScore moves one side of the current match to an exact score by
// applying the signed delta needed to reach it.
func (e *Engine) SetScore(side domain.Side, target int) error {
	if e.state != StateRoundInProgress {
		return ErrNoActiveRound
	}
	if !side.Valid() {
		return ErrMatchOutOfRange
	}
	m := e.matches[e.current]
	current := m.Item1.Score
	if side == domain.Side2 {
		current = m.Item2.Score
	}
	return e.AddScore(side, target-current)
}

func (e *Engine) State() State { return e.state }

func (e *Engine) Round() int { return e.round }

// CurrentMatch returns a copy of the match the pointer is on, and false
// when no round is in progress.
func (e *Engine) CurrentMatch() (Match, bool) {
	if e.state != StateRoundInProgress {
		return Match{}, false
	}
	return e.matches[e.current], true
}

func (e *Engine) CurrentMatchIndex() int { return e.current }

// Matches returns a copy of the current round's matches.
func (e *Engine) Matches() []Match {
	out := make([]Match, len(e.matches))
	copy(out, e.matches)
	return out
}

// Advancing returns a copy of the participants moving to the next round.
func (e *Engine) Advancing() []domain.Participant {
	out := make([]domain.Participant, len(e.advancing))
	copy(out, e.advancing)
	return out
}

// Podium returns winner, second, and third; entries are nil until decided.
func (e *Engine) Podium() (winner, second, third *domain.Participant) {
	return e.winner, e.second, e.third
}

// CategoryWins returns a copy of the per-category win tally.
func (e *Engine) CategoryWins() map[string]int {
	out := make(map[string]int, len(e.categoryWins))
	for k, v := range e.categoryWins {
		out[k] = v
	}
	return out
}
