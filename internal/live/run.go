// Package live hosts the authoritative in-memory state of a running
// tournament: the bracket engine, the per-match scores, and the dedup
// ledger. One goroutine per run serializes every check-then-act against
// that state, so vote bursts can never double-count.
package live

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/crowdbracket/crowdbracket/internal/bracket"
	"github.com/crowdbracket/crowdbracket/internal/broadcast"
	"github.com/crowdbracket/crowdbracket/internal/chat"
	"github.com/crowdbracket/crowdbracket/internal/dedup"
	"github.com/crowdbracket/crowdbracket/internal/domain"
	"github.com/crowdbracket/crowdbracket/internal/service"
	"github.com/google/uuid"
)

var ErrRunStopped = errors.New("live run has stopped")

const checkpointTimeout = 5 * time.Second

type declareRequest struct {
	matchIndex int
	side       domain.Side
	reply      chan declareResult
}

type declareResult struct {
	outcome bracket.Outcome
	err     error
}

// MatchView is one match of the current round as exposed to the API.
type MatchView struct {
	Round        int                `json:"round"`
	Index        int                `json:"index"`
	Participant1 domain.Participant `json:"participant1"`
	Participant2 domain.Participant `json:"participant2"`
	Score1       int                `json:"score1"`
	Score2       int                `json:"score2"`
}

// Snapshot is a point-in-time view of a run.
type Snapshot struct {
	TournamentID uuid.UUID            `json:"tournamentId"`
	SessionID    string               `json:"sessionId"`
	State        string               `json:"state"`
	Round        int                  `json:"round"`
	CurrentMatch int                  `json:"currentMatch"`
	Matches      []MatchView          `json:"matches"`
	Advancing    []domain.Participant `json:"advancing"`
	Winner       *domain.Participant  `json:"winner,omitempty"`
	Second       *domain.Participant  `json:"second,omitempty"`
	Third        *domain.Participant  `json:"third,omitempty"`
	CategoryWins map[string]int       `json:"categoryWins,omitempty"`
	ChatState    chat.ConnState       `json:"chatState"`
}

// Run owns one live tournament. All state mutation happens on the loop
// goroutine; the chat client and the API reach it through channels.
type Run struct {
	tournamentID uuid.UUID
	sessionID    string
	channel      string

	engine      *bracket.Engine
	tracker     *dedup.Tracker
	broadcaster *broadcast.Service
	checkpoints *service.CheckpointService
	chatClient  *chat.Client

	currentIdx atomic.Int64

	chatEvents chan chat.Event
	declare    chan *declareRequest
	snapshots  chan chan Snapshot
	stop       chan struct{}
	done       chan struct{}
	chatDown   chan struct{}
	stopped    atomic.Bool
}

// ChatConfig locates the chat gateway for a run. A zero value disables
// ingestion (used by the control-plane-only tests).
type ChatConfig struct {
	GatewayURL string
	Channel    string
	Operator   string
}

func newRun(
	tournamentID uuid.UUID,
	sessionID string,
	engine *bracket.Engine,
	broadcaster *broadcast.Service,
	checkpoints *service.CheckpointService,
	chatCfg ChatConfig,
) *Run {
	r := &Run{
		tournamentID: tournamentID,
		sessionID:    sessionID,
		channel:      chatCfg.Channel,
		engine:       engine,
		tracker:      dedup.New(),
		broadcaster:  broadcaster,
		checkpoints:  checkpoints,
		chatEvents:   make(chan chat.Event, 256),
		declare:      make(chan *declareRequest),
		snapshots:    make(chan chan Snapshot),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		chatDown:     make(chan struct{}),
	}

	if chatCfg.GatewayURL != "" && chatCfg.Channel != "" {
		r.chatClient = chat.NewClient(chatCfg.GatewayURL, chatCfg.Channel, chatCfg.Operator, r.enqueueChat)
	}
	return r
}

func (r *Run) start() {
	if m, ok := r.engine.CurrentMatch(); ok {
		r.tracker.SetCurrentMatch(matchKey(m))
		r.currentIdx.Store(int64(m.Index))
	}
	if r.chatClient != nil {
		r.chatClient.Start(context.Background())
	}
	go r.loop()
}

// enqueueChat is the chat client's handler. It runs on the client's read
// goroutine and blocks until the loop accepts the event, preserving
// gateway delivery order.
func (r *Run) enqueueChat(ev chat.Event) {
	select {
	case r.chatEvents <- ev:
	case <-r.stop:
	case <-r.chatDown:
	}
}

func (r *Run) loop() {
	defer close(r.done)
	for {
		select {
		case ev := <-r.chatEvents:
			r.handleChat(ev)
		case req := <-r.declare:
			req.reply <- r.handleDeclare(req)
		case reply := <-r.snapshots:
			reply <- r.snapshot()
		case <-r.stop:
			r.teardownChat()
			return
		}
	}
}

// Stop tears down the run and its chat client. Idempotent.
func (r *Run) Stop() {
	if r.stopped.CompareAndSwap(false, true) {
		close(r.stop)
	}
	<-r.done
}

// DeclareWinner resolves the current match and advances the bracket.
func (r *Run) DeclareWinner(ctx context.Context, matchIndex int, side domain.Side) (bracket.Outcome, error) {
	req := &declareRequest{matchIndex: matchIndex, side: side, reply: make(chan declareResult, 1)}
	select {
	case r.declare <- req:
	case <-r.done:
		return bracket.Outcome{}, ErrRunStopped
	case <-ctx.Done():
		return bracket.Outcome{}, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res.outcome, res.err
	case <-ctx.Done():
		return bracket.Outcome{}, ctx.Err()
	}
}

// Snapshot returns the current run state.
func (r *Run) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	select {
	case r.snapshots <- reply:
	case <-r.done:
		return Snapshot{}, ErrRunStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// CurrentMatchIndex is safe to call from any goroutine; the persistence
// adapter uses it on the durable-write path.
func (r *Run) CurrentMatchIndex() int {
	return int(r.currentIdx.Load())
}

func (r *Run) handleChat(ev chat.Event) {
	if r.engine.State() != bracket.StateRoundInProgress {
		return
	}

	switch ev.Type {
	case chat.EventVote:
		if r.tracker.HasVoted(ev.User) {
			return
		}
		r.tracker.MarkVoted(ev.User)
		if err := r.engine.AddScore(ev.Side, 1); err != nil {
			log.Printf("ERROR [live.handleChat] vote score failed: %v", err)
			return
		}
		r.publishVote(ev.User, ev.Side)

	case chat.EventSuperVote:
		if r.tracker.HasSuperVoted(ev.User) {
			return
		}
		r.tracker.MarkSuperVoted(ev.User)
		r.tracker.MarkVoted(ev.User)
		// Two discrete +1 mutations, not one +2: downstream views animate
		// per vote unit.
		for i := 0; i < 2; i++ {
			if err := r.engine.AddScore(ev.Side, 1); err != nil {
				log.Printf("ERROR [live.handleChat] super vote score failed: %v", err)
				return
			}
			r.publishVote(ev.User, ev.Side)
		}

	case chat.EventModerator:
		// Direct mutation; the dedup ledger is never consulted or touched.
		var err error
		switch ev.Op {
		case chat.OpAdd:
			err = r.engine.AddScore(ev.Side, ev.Amount)
		case chat.OpRemove:
			err = r.engine.AddScore(ev.Side, -ev.Amount)
		case chat.OpSet:
			err = r.engine.SetScore(ev.Side, ev.Amount)
		}
		if err != nil {
			log.Printf("ERROR [live.handleChat] moderator %s failed: %v", ev.Op, err)
		}
	}
}

func (r *Run) publishVote(voter string, side domain.Side) {
	m, ok := r.engine.CurrentMatch()
	if !ok {
		return
	}
	target := m.Item1.Participant
	if side == domain.Side2 {
		target = m.Item2.Participant
	}
	ev := broadcast.VoteEvent{
		TournamentID: r.tournamentID,
		VoterName:    voter,
		Vote:         target.ID.String(),
		MatchIndex:   r.engine.CurrentMatchIndex(),
	}
	r.broadcaster.Publish(r.tournamentID, &ev)
}

func (r *Run) handleDeclare(req *declareRequest) declareResult {
	out, err := r.engine.DeclareWinner(req.matchIndex, req.side)
	if err != nil {
		if errors.Is(err, bracket.ErrInvariantViolation) {
			log.Printf("CRITICAL [live.handleDeclare] tournament %s halted: %v", r.tournamentID, err)
			r.teardownChat()
		}
		return declareResult{outcome: out, err: err}
	}

	// Flush in-flight subscriber buffers before the match boundary moves,
	// so no buffered vote is delivered under the next match's identity.
	r.broadcaster.FlushAll(r.tournamentID)

	if m, ok := r.engine.CurrentMatch(); ok {
		r.tracker.SetCurrentMatch(matchKey(m))
		r.currentIdx.Store(int64(m.Index))
	} else {
		// Terminal state: the tournament is no longer active, so the
		// (channel, tournament-active) identity has changed.
		r.teardownChat()
	}

	r.saveCheckpoint()
	return declareResult{outcome: out}
}

func (r *Run) saveCheckpoint() {
	if r.checkpoints == nil {
		return
	}
	state := r.engine.Snapshot()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), checkpointTimeout)
		defer cancel()
		if err := r.checkpoints.Save(ctx, r.tournamentID, r.sessionID, state); err != nil {
			log.Printf("ERROR [live.saveCheckpoint] tournament %s: %v", r.tournamentID, err)
		}
	}()
}

func (r *Run) snapshot() Snapshot {
	snap := Snapshot{
		TournamentID: r.tournamentID,
		SessionID:    r.sessionID,
		State:        string(r.engine.State()),
		Round:        r.engine.Round(),
		CurrentMatch: r.engine.CurrentMatchIndex(),
		Advancing:    r.engine.Advancing(),
	}
	for _, m := range r.engine.Matches() {
		snap.Matches = append(snap.Matches, MatchView{
			Round:        m.Round,
			Index:        m.Index,
			Participant1: m.Item1.Participant,
			Participant2: m.Item2.Participant,
			Score1:       m.Item1.Score,
			Score2:       m.Item2.Score,
		})
	}
	snap.Winner, snap.Second, snap.Third = r.engine.Podium()
	if wins := r.engine.CategoryWins(); len(wins) > 0 {
		snap.CategoryWins = wins
	}
	snap.ChatState = chat.StateDisconnected
	if r.chatClient != nil {
		snap.ChatState = r.chatClient.State()
	}
	return snap
}

func (r *Run) teardownChat() {
	if r.chatClient == nil {
		return
	}
	// Release any handler blocked on the event channel before waiting
	// for the client to exit.
	close(r.chatDown)
	r.chatClient.Close()
	r.chatClient = nil
}

func matchKey(m bracket.Match) dedup.MatchKey {
	return dedup.MatchKey{
		Round:        m.Round,
		Index:        m.Index,
		Participant1: m.Item1.Participant.ID,
		Participant2: m.Item2.Participant.ID,
	}
}
