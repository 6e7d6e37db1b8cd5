package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/crowdbracket/crowdbracket/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TournamentBuilder creates test tournaments with a builder pattern
type TournamentBuilder struct {
	name         string
	channel      string
	participants []string
	categories   map[string]string
}

// NewTournamentBuilder creates a new TournamentBuilder with default values
func NewTournamentBuilder() *TournamentBuilder {
	return &TournamentBuilder{
		name:       fmt.Sprintf("tournament_%s", uuid.New().String()[:8]),
		channel:    "test-channel",
		categories: make(map[string]string),
	}
}

// WithName sets the tournament name
func (b *TournamentBuilder) WithName(name string) *TournamentBuilder {
	b.name = name
	return b
}

// WithChannel sets the chat channel
func (b *TournamentBuilder) WithChannel(channel string) *TournamentBuilder {
	b.channel = channel
	return b
}

// WithParticipants appends named participants in seed order
func (b *TournamentBuilder) WithParticipants(names ...string) *TournamentBuilder {
	b.participants = append(b.participants, names...)
	return b
}

// WithParticipantCount appends n generated participants
func (b *TournamentBuilder) WithParticipantCount(n int) *TournamentBuilder {
	for i := 0; i < n; i++ {
		b.participants = append(b.participants, fmt.Sprintf("entry-%d", len(b.participants)+1))
	}
	return b
}

// WithCategory tags a named participant with a category
func (b *TournamentBuilder) WithCategory(name, category string) *TournamentBuilder {
	b.categories[name] = category
	return b
}

// Build creates the tournament and its participants in the database
func (b *TournamentBuilder) Build(t *testing.T, db *gorm.DB) (*domain.Tournament, []domain.Participant) {
	t.Helper()

	tournament := &domain.Tournament{
		ID:        uuid.New(),
		Name:      b.name,
		Channel:   b.channel,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.Create(tournament).Error; err != nil {
		t.Fatalf("failed to create tournament: %v", err)
	}

	participants := make([]domain.Participant, 0, len(b.participants))
	for i, name := range b.participants {
		p := domain.Participant{
			ID:           uuid.New(),
			TournamentID: tournament.ID,
			Name:         name,
			Position:     i,
			CreatedAt:    time.Now(),
		}
		if cat, ok := b.categories[name]; ok {
			p.Category = &cat
		}
		if err := db.Create(&p).Error; err != nil {
			t.Fatalf("failed to create participant %q: %v", name, err)
		}
		participants = append(participants, p)
	}

	return tournament, participants
}

// LoginAsHost authenticates against the test server and returns a bearer token
func LoginAsHost(t *testing.T, ts *TestServer) string {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"password": HostPassword})
	resp, err := http.Post(ts.APIURL("/auth/login"), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("failed to log in: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login returned status %d", resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	return out.AccessToken
}

// AuthorizedRequest builds a request carrying the host bearer token
func AuthorizedRequest(t *testing.T, method, url, token string, payload any) *http.Request {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
