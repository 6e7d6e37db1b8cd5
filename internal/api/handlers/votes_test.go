package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/crowdbracket/crowdbracket/internal/testutil"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postVote(t *testing.T, ts *testutil.TestServer, tournamentID string, payload map[string]any) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(
		fmt.Sprintf("%s/votes/%s", ts.BaseURL(), tournamentID),
		"application/json",
		bytes.NewReader(body),
	)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestVoteSubmit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ts := testutil.NewTestServer(t)
	tid := uuid.New().String()

	t.Run("Accepted", func(t *testing.T) {
		resp := postVote(t, ts, tid, map[string]any{"voterName": "alice", "vote": "entry-1"})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out struct {
			OK bool `json:"ok"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.True(t, out.OK)
	})

	t.Run("NumericTimestamp", func(t *testing.T) {
		resp := postVote(t, ts, tid, map[string]any{
			"voterName": "carol",
			"vote":      "entry-1",
			"ts":        1724800000000,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out struct {
			OK bool `json:"ok"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.True(t, out.OK)
	})

	t.Run("RateLimited", func(t *testing.T) {
		resp := postVote(t, ts, tid, map[string]any{"voterName": "burst", "vote": "entry-1"})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = postVote(t, ts, tid, map[string]any{"voterName": "burst", "vote": "entry-1"})
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	})

	t.Run("EmptyVote", func(t *testing.T) {
		resp := postVote(t, ts, tid, map[string]any{"voterName": "alice"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("MissingVoter", func(t *testing.T) {
		resp := postVote(t, ts, tid, map[string]any{"vote": "entry-1"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("BadTournamentID", func(t *testing.T) {
		resp := postVote(t, ts, "not-a-uuid", map[string]any{"voterName": "alice", "vote": "entry-1"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestVoteSubscribe(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ts := testutil.NewTestServer(t)
	tid := uuid.New().String()

	conn, _, err := websocket.DefaultDialer.Dial(ts.SubscribeURL(tid), nil)
	require.NoError(t, err)
	defer conn.Close()

	var frame struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "connected", frame.Type)

	resp := postVote(t, ts, tid, map[string]any{"voterName": "alice", "vote": "entry-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "vote", frame.Type)

	var ev struct {
		Vote      string `json:"vote"`
		VoterName string `json:"voterName"`
		Seq       uint64 `json:"seq"`
	}
	require.NoError(t, json.Unmarshal(frame.Data, &ev))
	assert.Equal(t, "entry-1", ev.Vote)
	assert.Equal(t, "alice", ev.VoterName)
	assert.NotZero(t, ev.Seq)
}

func TestVoteSubscribe_OtherTournamentIsSilent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ts := testutil.NewTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(ts.SubscribeURL(uuid.New().String()), nil)
	require.NoError(t, err)
	defer conn.Close()

	var frame struct {
		Type string `json:"type"`
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, "connected", frame.Type)

	// A vote for a different tournament never reaches this stream.
	resp := postVote(t, ts, uuid.New().String(), map[string]any{"voterName": "alice", "vote": "entry-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	err = conn.ReadJSON(&frame)
	assert.Error(t, err, "expected a read timeout, not a frame")
}
