package live

import (
	"context"
	"errors"
	"sync"

	"github.com/crowdbracket/crowdbracket/internal/bracket"
	"github.com/crowdbracket/crowdbracket/internal/broadcast"
	"github.com/crowdbracket/crowdbracket/internal/repository"
	"github.com/crowdbracket/crowdbracket/internal/service"
	"github.com/google/uuid"
)

var (
	ErrRunNotFound = errors.New("no live run for tournament")
	ErrRunExists   = errors.New("tournament already has a live run")
)

// Manager holds at most one live run per tournament. Starting, resuming,
// and stopping all tear down and rebuild the chat client, so a run's
// connection identity always matches its (channel, tournament-active)
// pair.
type Manager struct {
	participants repository.ParticipantRepository
	broadcaster  *broadcast.Service
	checkpoints  *service.CheckpointService

	chatGatewayURL string
	operator       string

	mu   sync.Mutex
	runs map[uuid.UUID]*Run
}

func NewManager(
	participants repository.ParticipantRepository,
	broadcaster *broadcast.Service,
	checkpoints *service.CheckpointService,
	chatGatewayURL, operator string,
) *Manager {
	return &Manager{
		participants:   participants,
		broadcaster:    broadcaster,
		checkpoints:    checkpoints,
		chatGatewayURL: chatGatewayURL,
		operator:       operator,
		runs:           make(map[uuid.UUID]*Run),
	}
}

type StartInput struct {
	SelectionSize int
	CategoryMode  bool
	Channel       string
}

// StartRun seeds a fresh bracket from the tournament's participant read
// model and begins ingesting chat votes from the given channel.
func (m *Manager) StartRun(ctx context.Context, tournamentID uuid.UUID, in StartInput) (*Run, error) {
	roster, err := m.participants.GetByTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	engine, err := bracket.New(roster, bracket.Options{
		SelectionSize: in.SelectionSize,
		CategoryMode:  in.CategoryMode,
	})
	if err != nil {
		return nil, err
	}

	run := newRun(tournamentID, uuid.New().String(), engine, m.broadcaster, m.checkpoints, ChatConfig{
		GatewayURL: m.chatGatewayURL,
		Channel:    in.Channel,
		Operator:   m.operator,
	})

	m.mu.Lock()
	if _, exists := m.runs[tournamentID]; exists {
		m.mu.Unlock()
		return nil, ErrRunExists
	}
	m.runs[tournamentID] = run
	m.mu.Unlock()

	run.start()
	return run, nil
}

type ResumeInput struct {
	SessionID string
	Channel   string
}

// Resume rebuilds a run from its latest checkpoint.
func (m *Manager) Resume(ctx context.Context, tournamentID uuid.UUID, in ResumeInput) (*Run, error) {
	state, err := m.checkpoints.Load(ctx, tournamentID, in.SessionID)
	if err != nil {
		return nil, err
	}

	engine, err := bracket.Restore(*state)
	if err != nil {
		return nil, err
	}

	run := newRun(tournamentID, in.SessionID, engine, m.broadcaster, m.checkpoints, ChatConfig{
		GatewayURL: m.chatGatewayURL,
		Channel:    in.Channel,
		Operator:   m.operator,
	})

	m.mu.Lock()
	if _, exists := m.runs[tournamentID]; exists {
		m.mu.Unlock()
		return nil, ErrRunExists
	}
	m.runs[tournamentID] = run
	m.mu.Unlock()

	run.start()
	return run, nil
}

func (m *Manager) Get(tournamentID uuid.UUID) (*Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[tournamentID]
	return run, ok
}

// StopRun stops a run and forgets it.
func (m *Manager) StopRun(tournamentID uuid.UUID) error {
	m.mu.Lock()
	run, ok := m.runs[tournamentID]
	if ok {
		delete(m.runs, tournamentID)
	}
	m.mu.Unlock()
	if !ok {
		return ErrRunNotFound
	}
	run.Stop()
	return nil
}

// StopAll stops every run; used during graceful shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	runs := make([]*Run, 0, len(m.runs))
	for _, run := range m.runs {
		runs = append(runs, run)
	}
	m.runs = make(map[uuid.UUID]*Run)
	m.mu.Unlock()

	for _, run := range runs {
		run.Stop()
	}
}

// CurrentMatchIndex is the broadcast.MatchIndexFunc stamping accepted
// votes at ingress. Returns 0 when the tournament has no live run.
func (m *Manager) CurrentMatchIndex(tournamentID uuid.UUID) int {
	run, ok := m.Get(tournamentID)
	if !ok {
		return 0
	}
	return run.CurrentMatchIndex()
}
