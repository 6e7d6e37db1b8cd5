package live

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/crowdbracket/crowdbracket/internal/bracket"
	"github.com/crowdbracket/crowdbracket/internal/broadcast"
	"github.com/crowdbracket/crowdbracket/internal/chat"
	"github.com/crowdbracket/crowdbracket/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoster(n int) []domain.Participant {
	out := make([]domain.Participant, n)
	for i := range out {
		out[i] = domain.Participant{
			ID:       uuid.New(),
			Name:     fmt.Sprintf("entry-%d", i+1),
			Position: i,
		}
	}
	return out
}

// eventSink records every fanned-out vote event.
type eventSink struct {
	mu     sync.Mutex
	events []broadcast.VoteEvent
}

func (s *eventSink) fn(events []broadcast.VoteEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
}

func (s *eventSink) snapshot() []broadcast.VoteEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]broadcast.VoteEvent, len(s.events))
	copy(out, s.events)
	return out
}

// newTestRun wires a run with no chat gateway and no checkpoint store.
// Tests inject events straight through the chat handler path.
func newTestRun(t *testing.T, n int) (*Run, *eventSink) {
	t.Helper()

	engine, err := bracket.New(testRoster(n), bracket.Options{})
	require.NoError(t, err)

	broadcaster := broadcast.NewService(broadcast.Config{
		Cooldown:          time.Millisecond,
		PruneHorizon:      time.Second,
		PruneInterval:     time.Second,
		BatchWindow:       time.Second,
		FastBatchWindow:   time.Millisecond,
		AdaptiveThreshold: 10,
		MaxBatch:          100,
		PersistTimeout:    time.Second,
	}, nil)

	tid := uuid.New()
	sink := &eventSink{}
	broadcaster.Subscribe(tid, "sink", broadcast.SubscriberConfig{MaxBatch: 1}, sink.fn)

	run := newRun(tid, uuid.New().String(), engine, broadcaster, nil, ChatConfig{})
	run.start()
	t.Cleanup(run.Stop)
	return run, sink
}

// currentScores blocks until the loop has drained everything enqueued
// before the call, then returns the current match's scores.
func currentScores(t *testing.T, run *Run) (int, int) {
	t.Helper()

	for len(run.chatEvents) > 0 {
		time.Sleep(time.Millisecond)
	}
	// The loop is a single goroutine: once the queue is empty, a snapshot
	// request is served only after any in-flight event finishes.
	snap, err := run.Snapshot(context.Background())
	require.NoError(t, err)
	require.Less(t, snap.CurrentMatch, len(snap.Matches))
	m := snap.Matches[snap.CurrentMatch]
	return m.Score1, m.Score2
}

func vote(user string, side domain.Side) chat.Event {
	return chat.Event{Type: chat.EventVote, User: user, Side: side}
}

func superVote(user string, side domain.Side) chat.Event {
	return chat.Event{Type: chat.EventSuperVote, User: user, Side: side}
}

func TestRun_StandardVoteDedup(t *testing.T) {
	run, _ := newTestRun(t, 4)

	run.enqueueChat(vote("alice", domain.Side1))
	run.enqueueChat(vote("alice", domain.Side1))
	run.enqueueChat(vote("alice", domain.Side2))
	run.enqueueChat(vote("bob", domain.Side2))

	s1, s2 := currentScores(t, run)
	assert.Equal(t, 1, s1, "alice counts once per match")
	assert.Equal(t, 1, s2, "bob is a different voter")
}

func TestRun_SuperVote(t *testing.T) {
	run, sink := newTestRun(t, 4)

	run.enqueueChat(superVote("bob", domain.Side2))

	s1, s2 := currentScores(t, run)
	assert.Equal(t, 0, s1)
	assert.Equal(t, 2, s2, "a super vote is worth two")

	// Two discrete events, not one doubled event.
	events := sink.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, events[0].Vote, events[1].Vote)
	assert.Greater(t, events[1].Seq, events[0].Seq)

	// The super vote also consumes bob's standard vote for this match,
	// and a second super vote this run is ignored.
	run.enqueueChat(vote("bob", domain.Side2))
	run.enqueueChat(superVote("bob", domain.Side1))
	_, s2 = currentScores(t, run)
	assert.Equal(t, 2, s2)
}

func TestRun_ModeratorCommands(t *testing.T) {
	run, _ := newTestRun(t, 4)

	ev, ok := chat.Parse("mod", "..set vote 1 10", "mod")
	require.True(t, ok)
	run.enqueueChat(ev)

	s1, _ := currentScores(t, run)
	assert.Equal(t, 10, s1)

	// Moderator mutations skip the dedup ledger entirely: repeat at will.
	ev, ok = chat.Parse("mod", "add 1 5", "mod")
	require.True(t, ok)
	run.enqueueChat(ev)
	run.enqueueChat(ev)

	s1, _ = currentScores(t, run)
	assert.Equal(t, 20, s1)

	// Removal clamps at zero.
	ev, ok = chat.Parse("mod", "remove 1 100", "mod")
	require.True(t, ok)
	run.enqueueChat(ev)
	s1, _ = currentScores(t, run)
	assert.Equal(t, 0, s1)
}

func TestRun_PublishedVoteTargetsParticipant(t *testing.T) {
	run, sink := newTestRun(t, 4)

	snap, err := run.Snapshot(context.Background())
	require.NoError(t, err)
	want := snap.Matches[0].Participant2.ID.String()

	run.enqueueChat(vote("alice", domain.Side2))
	currentScores(t, run)

	events := sink.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, want, events[0].Vote)
	assert.Equal(t, "alice", events[0].VoterName)
	assert.Equal(t, run.tournamentID, events[0].TournamentID)
}

func TestRun_DeclareWinnerResetsDedup(t *testing.T) {
	run, _ := newTestRun(t, 4)

	run.enqueueChat(vote("alice", domain.Side1))
	currentScores(t, run)

	out, err := run.DeclareWinner(context.Background(), 0, domain.Side1)
	require.NoError(t, err)
	assert.False(t, out.RoundAdvanced)

	// New match, fresh voted set.
	run.enqueueChat(vote("alice", domain.Side2))
	s1, s2 := currentScores(t, run)
	assert.Equal(t, 0, s1, "scores never carry across matches")
	assert.Equal(t, 1, s2)
}

func TestRun_DeclareWinnerGuards(t *testing.T) {
	run, _ := newTestRun(t, 6)

	_, err := run.DeclareWinner(context.Background(), 2, domain.Side1)
	assert.ErrorIs(t, err, bracket.ErrNotCurrentMatch)

	_, err = run.DeclareWinner(context.Background(), 9, domain.Side1)
	assert.ErrorIs(t, err, bracket.ErrMatchOutOfRange)
}

func TestRun_TerminalStateIgnoresVotes(t *testing.T) {
	run, sink := newTestRun(t, 2)

	out, err := run.DeclareWinner(context.Background(), 0, domain.Side1)
	require.NoError(t, err)
	require.True(t, out.WinnerDeclared)

	run.enqueueChat(vote("alice", domain.Side1))
	snap, err := run.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, string(bracket.StateWinnerDeclared), snap.State)
	assert.Empty(t, sink.snapshot())

	_, err = run.DeclareWinner(context.Background(), 0, domain.Side1)
	assert.ErrorIs(t, err, bracket.ErrNoActiveRound)
}

func TestRun_FullBracketToPodium(t *testing.T) {
	run, _ := newTestRun(t, 5)

	for {
		snap, err := run.Snapshot(context.Background())
		require.NoError(t, err)
		if snap.State != string(bracket.StateRoundInProgress) {
			break
		}
		_, err = run.DeclareWinner(context.Background(), snap.CurrentMatch, domain.Side1)
		require.NoError(t, err)
	}

	snap, err := run.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, string(bracket.StateWinnerDeclared), snap.State)
	require.NotNil(t, snap.Winner)
	require.NotNil(t, snap.Second)
	require.NotNil(t, snap.Third)
}

func TestRun_StopIsIdempotent(t *testing.T) {
	run, _ := newTestRun(t, 4)

	run.Stop()
	run.Stop()

	_, err := run.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrRunStopped)

	_, err = run.DeclareWinner(context.Background(), 0, domain.Side1)
	assert.ErrorIs(t, err, ErrRunStopped)
}
