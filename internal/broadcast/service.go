// Package broadcast accepts externally submitted vote notifications,
// rate-limits them per voter, and fans them out to subscribers with
// bounded-latency batching.
package broadcast

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptyVote     = errors.New("vote must be a non-empty string")
	ErrMissingVoter  = errors.New("vote requires a voterId or voterName")
	ErrRateLimited   = errors.New("voter is rate limited")
	ErrNoSubscriber  = errors.New("no such subscriber")
)

// Submission is the raw ingress payload of POST /votes/{tournamentId}.
// Timestamp is a client-supplied epoch in milliseconds.
type Submission struct {
	VoterID   string `json:"voterId,omitempty"`
	VoterName string `json:"voterName,omitempty"`
	Vote      string `json:"vote"`
	Timestamp *int64 `json:"ts,omitempty"`
}

// VoteEvent is one accepted vote as delivered to subscribers. Seq is a
// process-wide monotonic sequence number; within a batch events are in
// ingestion order and a later batch never contains an earlier event.
type VoteEvent struct {
	TournamentID uuid.UUID  `json:"tournamentId"`
	VoterID      string     `json:"voterId,omitempty"`
	VoterName    string     `json:"voterName,omitempty"`
	Vote         string     `json:"vote"`
	Seq          uint64     `json:"seq"`
	MatchIndex   int        `json:"matchIndex"`
	ReceivedAt   time.Time  `json:"receivedAt"`
	SubmittedAt  *time.Time `json:"submittedAt,omitempty"`
}

// MatchIndexFunc reports the match currently accepting votes for a
// tournament, zero when no run is live. Submit stamps each accepted
// event with it so durable rows keep the match the vote was cast in,
// even when a winner is declared before the async write lands.
type MatchIndexFunc func(tournamentID uuid.UUID) int

// Persister durably records an accepted vote. Calls are fire-and-forget
// relative to fan-out: a slow or failed write never blocks delivery, and
// its result never feeds back into live state.
type Persister interface {
	PersistVote(ctx context.Context, ev VoteEvent) error
}

// Config tunes the service. Durations have working defaults via
// DefaultConfig.
type Config struct {
	Cooldown          time.Duration // min spacing per (tournament, voter)
	PruneHorizon      time.Duration // rate-limit entries older than this are dropped
	PruneInterval     time.Duration
	BatchWindow       time.Duration
	FastBatchWindow   time.Duration
	AdaptiveThreshold int
	MaxBatch          int
	PersistTimeout    time.Duration
}

func DefaultConfig() Config {
	return Config{
		Cooldown:          500 * time.Millisecond,
		PruneHorizon:      60 * time.Second,
		PruneInterval:     30 * time.Second,
		BatchWindow:       250 * time.Millisecond,
		FastBatchWindow:   50 * time.Millisecond,
		AdaptiveThreshold: 20,
		MaxBatch:          100,
		PersistTimeout:    5 * time.Second,
	}
}

type rlKey struct {
	tournament uuid.UUID
	voter      string
}

// Service owns the rate-limit ledger and the subscriber registry. Both
// are constructor-scoped; nothing here is package-global.
type Service struct {
	cfg       Config
	persister Persister
	seq       atomic.Uint64

	// pubMu spans sequence assignment and enqueueing so concurrent
	// publishes cannot hand a later batch an earlier event.
	pubMu sync.Mutex

	mu         sync.Mutex
	lastSeen   map[rlKey]time.Time
	subs       map[uuid.UUID]map[string]*Subscriber
	matchIndex MatchIndexFunc
}

func NewService(cfg Config, persister Persister) *Service {
	def := DefaultConfig()
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.PruneHorizon <= 0 {
		cfg.PruneHorizon = def.PruneHorizon
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = def.PruneInterval
	}
	if cfg.BatchWindow <= 0 {
		cfg.BatchWindow = def.BatchWindow
	}
	if cfg.FastBatchWindow <= 0 {
		cfg.FastBatchWindow = def.FastBatchWindow
	}
	if cfg.AdaptiveThreshold <= 0 {
		cfg.AdaptiveThreshold = def.AdaptiveThreshold
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = def.MaxBatch
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = def.PersistTimeout
	}
	return &Service{
		cfg:       cfg,
		persister: persister,
		lastSeen:  make(map[rlKey]time.Time),
		subs:      make(map[uuid.UUID]map[string]*Subscriber),
	}
}

// Submit validates and rate-limits a submission, fans the accepted event
// out to every subscriber of the tournament, and hands it to the
// persister asynchronously.
func (s *Service) Submit(ctx context.Context, tournamentID uuid.UUID, sub Submission) (*VoteEvent, error) {
	if strings.TrimSpace(sub.Vote) == "" {
		return nil, ErrEmptyVote
	}
	voter := sub.VoterID
	if voter == "" {
		voter = sub.VoterName
	}
	if voter == "" {
		return nil, ErrMissingVoter
	}

	now := time.Now()
	key := rlKey{tournament: tournamentID, voter: voter}

	s.mu.Lock()
	if last, ok := s.lastSeen[key]; ok && now.Sub(last) < s.cfg.Cooldown {
		s.mu.Unlock()
		return nil, ErrRateLimited
	}
	s.lastSeen[key] = now
	s.mu.Unlock()

	ev := VoteEvent{
		TournamentID: tournamentID,
		VoterID:      sub.VoterID,
		VoterName:    sub.VoterName,
		Vote:         strings.TrimSpace(sub.Vote),
		ReceivedAt:   now,
	}
	if sub.Timestamp != nil {
		at := time.UnixMilli(*sub.Timestamp)
		ev.SubmittedAt = &at
	}
	if fn := s.matchIndexFunc(); fn != nil {
		ev.MatchIndex = fn(tournamentID)
	}
	s.Publish(tournamentID, &ev)

	if s.persister != nil {
		go func(ev VoteEvent) {
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PersistTimeout)
			defer cancel()
			if err := s.persister.PersistVote(ctx, ev); err != nil {
				log.Printf("ERROR [broadcast.Submit] persist vote seq=%d failed: %v", ev.Seq, err)
			}
		}(ev)
	}

	return &ev, nil
}

// Publish assigns the event a sequence number and fans it out to every
// subscriber of the tournament. Used directly by the live run for
// chat-ingested vote events, which bypass rate limiting and persistence.
func (s *Service) Publish(tournamentID uuid.UUID, ev *VoteEvent) {
	// Sequence assignment and enqueueing stay under one lock: without it
	// a concurrent publish could take a later seq yet enqueue first.
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	ev.Seq = s.seq.Add(1)
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}

	s.mu.Lock()
	targets := make([]*Subscriber, 0, len(s.subs[tournamentID]))
	for _, sub := range s.subs[tournamentID] {
		targets = append(targets, sub)
	}
	s.mu.Unlock()

	for _, sub := range targets {
		sub.enqueue(*ev)
	}
}

// SetMatchIndexFunc wires the live run manager in after construction;
// the broadcast service and the manager depend on each other at startup.
func (s *Service) SetMatchIndexFunc(fn MatchIndexFunc) {
	s.mu.Lock()
	s.matchIndex = fn
	s.mu.Unlock()
}

func (s *Service) matchIndexFunc() MatchIndexFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchIndex
}

// Subscribe registers a batch callback for one tournament's events. Zero
// fields in cfg inherit the service defaults.
func (s *Service) Subscribe(tournamentID uuid.UUID, id string, cfg SubscriberConfig, fn BatchFunc) *Subscriber {
	if cfg.Window <= 0 {
		cfg.Window = s.cfg.BatchWindow
	}
	if cfg.FastWindow <= 0 {
		cfg.FastWindow = s.cfg.FastBatchWindow
	}
	if cfg.AdaptiveThreshold <= 0 {
		cfg.AdaptiveThreshold = s.cfg.AdaptiveThreshold
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = s.cfg.MaxBatch
	}

	sub := newSubscriber(id, cfg, fn)
	s.mu.Lock()
	if s.subs[tournamentID] == nil {
		s.subs[tournamentID] = make(map[string]*Subscriber)
	}
	if old, ok := s.subs[tournamentID][id]; ok {
		old.close()
	}
	s.subs[tournamentID][id] = sub
	s.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscriber, discarding anything still buffered.
func (s *Service) Unsubscribe(tournamentID uuid.UUID, id string) error {
	s.mu.Lock()
	sub, ok := s.subs[tournamentID][id]
	if ok {
		delete(s.subs[tournamentID], id)
	}
	s.mu.Unlock()
	if !ok {
		return ErrNoSubscriber
	}
	sub.close()
	return nil
}

// FlushAll forces immediate delivery for every subscriber of the
// tournament. The live run calls this at match-transition boundaries.
func (s *Service) FlushAll(tournamentID uuid.UUID) {
	s.mu.Lock()
	targets := make([]*Subscriber, 0, len(s.subs[tournamentID]))
	for _, sub := range s.subs[tournamentID] {
		targets = append(targets, sub)
	}
	s.mu.Unlock()

	for _, sub := range targets {
		sub.Flush()
	}
}

// Run drives periodic pruning of the rate-limit ledger until ctx is
// cancelled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.prune(now)
		}
	}
}

func (s *Service) prune(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, seen := range s.lastSeen {
		if now.Sub(seen) > s.cfg.PruneHorizon {
			delete(s.lastSeen, key)
		}
	}
}
