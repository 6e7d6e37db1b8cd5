package service_test

import (
	"context"
	"testing"

	"github.com/crowdbracket/crowdbracket/internal/domain"
	"github.com/crowdbracket/crowdbracket/internal/repository/postgres"
	"github.com/crowdbracket/crowdbracket/internal/service"
	"github.com/crowdbracket/crowdbracket/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointService(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	checkpointService := service.NewCheckpointService(repos.Checkpoint)
	ctx := context.Background()

	state := func(round, current int) domain.BracketState {
		return domain.BracketState{
			State:        "round_in_progress",
			Round:        round,
			CurrentMatch: current,
			Matches: []domain.MatchState{
				{Round: round, Index: 0, Score1: 3, Score2: 1},
			},
		}
	}

	t.Run("SaveAndLoad", func(t *testing.T) {
		testDB.Truncate(t)
		tournament, _ := testutil.NewTournamentBuilder().WithParticipantCount(2).Build(t, testDB.DB)
		sessionID := uuid.New().String()

		require.NoError(t, checkpointService.Save(ctx, tournament.ID, sessionID, state(1, 0)))

		loaded, err := checkpointService.Load(ctx, tournament.ID, sessionID)
		require.NoError(t, err)
		assert.Equal(t, 1, loaded.Round)
		assert.Equal(t, 0, loaded.CurrentMatch)
		require.Len(t, loaded.Matches, 1)
		assert.Equal(t, 3, loaded.Matches[0].Score1)
	})

	t.Run("SaveOverwritesSameSession", func(t *testing.T) {
		testDB.Truncate(t)
		tournament, _ := testutil.NewTournamentBuilder().WithParticipantCount(2).Build(t, testDB.DB)
		sessionID := uuid.New().String()

		require.NoError(t, checkpointService.Save(ctx, tournament.ID, sessionID, state(1, 0)))
		require.NoError(t, checkpointService.Save(ctx, tournament.ID, sessionID, state(2, 1)))

		loaded, err := checkpointService.Load(ctx, tournament.ID, sessionID)
		require.NoError(t, err)
		assert.Equal(t, 2, loaded.Round, "latest checkpoint wins")
		assert.Equal(t, 1, loaded.CurrentMatch)
	})

	t.Run("SessionsAreIsolated", func(t *testing.T) {
		testDB.Truncate(t)
		tournament, _ := testutil.NewTournamentBuilder().WithParticipantCount(2).Build(t, testDB.DB)

		require.NoError(t, checkpointService.Save(ctx, tournament.ID, "session-a", state(1, 0)))
		require.NoError(t, checkpointService.Save(ctx, tournament.ID, "session-b", state(3, 0)))

		loaded, err := checkpointService.Load(ctx, tournament.ID, "session-a")
		require.NoError(t, err)
		assert.Equal(t, 1, loaded.Round)
	})

	t.Run("LoadMissing", func(t *testing.T) {
		testDB.Truncate(t)
		_, err := checkpointService.Load(ctx, uuid.New(), "nope")
		assert.ErrorIs(t, err, service.ErrCheckpointNotFound)
	})
}
