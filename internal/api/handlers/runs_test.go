package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/crowdbracket/crowdbracket/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runSnapshot struct {
	TournamentID string `json:"tournamentId"`
	SessionID    string `json:"sessionId"`
	State        string `json:"state"`
	Round        int    `json:"round"`
	CurrentMatch int    `json:"currentMatch"`
	Matches      []struct {
		Round  int `json:"round"`
		Index  int `json:"index"`
		Score1 int `json:"score1"`
		Score2 int `json:"score2"`
	} `json:"matches"`
	Winner *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"winner"`
}

func doRun(t *testing.T, ts *testutil.TestServer, token, method, path string, payload any) (*http.Response, *runSnapshot) {
	t.Helper()

	req := testutil.AuthorizedRequest(t, method, ts.APIURL(path), token, payload)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	if resp.StatusCode >= 300 {
		return resp, nil
	}
	var snap runSnapshot
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	}
	return resp, &snap
}

func TestRunLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ts := testutil.NewTestServer(t)
	token := testutil.LoginAsHost(t, ts)

	tournament, _ := testutil.NewTournamentBuilder().
		WithParticipantCount(4).
		Build(t, ts.DB.DB)
	base := "/runs/" + tournament.ID.String()

	// Start
	resp, snap := doRun(t, ts, token, http.MethodPost, base, map[string]any{})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotNil(t, snap)
	assert.Equal(t, "round_in_progress", snap.State)
	assert.Equal(t, 1, snap.Round)
	assert.Len(t, snap.Matches, 2)
	sessionID := snap.SessionID
	require.NotEmpty(t, sessionID)

	// Starting again conflicts.
	resp, _ = doRun(t, ts, token, http.MethodPost, base, map[string]any{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Get
	resp, snap = doRun(t, ts, token, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, sessionID, snap.SessionID)

	// Declare the first match; the pointer advances.
	resp, snap = doRun(t, ts, token, http.MethodPost, base+"/declare-winner", map[string]any{"matchIndex": 0, "side": 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, snap.CurrentMatch)

	// Declaring a non-current match conflicts.
	resp, _ = doRun(t, ts, token, http.MethodPost, base+"/declare-winner", map[string]any{"matchIndex": 0, "side": 1})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Play to the end.
	resp, snap = doRun(t, ts, token, http.MethodPost, base+"/declare-winner", map[string]any{"matchIndex": 1, "side": 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, snap.Round)

	resp, snap = doRun(t, ts, token, http.MethodPost, base+"/declare-winner", map[string]any{"matchIndex": 0, "side": 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "winner_declared", snap.State)
	require.NotNil(t, snap.Winner)

	// Stop
	resp, _ = doRun(t, ts, token, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doRun(t, ts, token, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunResume(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ts := testutil.NewTestServer(t)
	token := testutil.LoginAsHost(t, ts)

	tournament, _ := testutil.NewTournamentBuilder().
		WithParticipantCount(4).
		Build(t, ts.DB.DB)
	base := "/runs/" + tournament.ID.String()

	resp, snap := doRun(t, ts, token, http.MethodPost, base, map[string]any{})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sessionID := snap.SessionID

	resp, snap = doRun(t, ts, token, http.MethodPost, base+"/declare-winner", map[string]any{"matchIndex": 0, "side": 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	wantMatch := snap.CurrentMatch

	// Checkpoint writes are async; wait until one lands.
	require.Eventually(t, func() bool {
		_, err := ts.Services.Checkpoint.Load(context.Background(), tournament.ID, sessionID)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	resp, _ = doRun(t, ts, token, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, snap = doRun(t, ts, token, http.MethodPost, base+"/resume", map[string]any{"sessionId": sessionID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, sessionID, snap.SessionID)
	assert.Equal(t, wantMatch, snap.CurrentMatch)

	resp, _ = doRun(t, ts, token, http.MethodPost, base+"/resume", map[string]any{"sessionId": "no-such-session"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "a live run already exists")

	resp, _ = doRun(t, ts, token, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = doRun(t, ts, token, http.MethodPost, base+"/resume", map[string]any{"sessionId": "no-such-session"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunAuth(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ts := testutil.NewTestServer(t)
	base := "/runs/" + uuid.New().String()

	req := testutil.AuthorizedRequest(t, http.MethodGet, ts.APIURL(base), "not-a-real-token", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// No token at all.
	noAuth, err := http.NewRequest(http.MethodGet, ts.APIURL(base), nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(noAuth)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRunStartValidation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ts := testutil.NewTestServer(t)
	token := testutil.LoginAsHost(t, ts)

	// Tournament with a roster too small to pair.
	tournament, _ := testutil.NewTournamentBuilder().
		WithParticipantCount(1).
		Build(t, ts.DB.DB)
	resp, _ := doRun(t, ts, token, http.MethodPost, "/runs/"+tournament.ID.String(), map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRun(t, ts, token, http.MethodPost, "/runs/not-a-uuid", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
