//go:build integration

package store_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hodazia/kubecredentials/internal/verification/models"
	"github.com/Hodazia/kubecredentials/internal/verification/store"
	"github.com/Hodazia/kubecredentials/pkg/testutil/containers"
)

func testHash(seed string) string {
	return seed + strings.Repeat("0", 64-len(seed))
}

func newEntry(hash string, outcome models.Outcome) *models.LogEntry {
	return &models.LogEntry{
		ContentHash:       hash,
		Verified:          outcome == models.OutcomeValid,
		Outcome:           outcome,
		WorkerID:          "verifier-1",
		VerifiedAt:        time.Now().UTC().Truncate(time.Microsecond),
		RequestAttributes: json.RawMessage(`{"holderName":"Marta Oduya"}`),
		ClientIP:          "203.0.113.9",
		ClientAgent:       "chrome/linux/webkit",
	}
}

func TestPostgresStore(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	s := store.NewPostgres(pc.DB)
	ctx := context.Background()

	t.Run("append assigns increasing ids", func(t *testing.T) {
		require.NoError(t, pc.TruncateAll(ctx))

		first := newEntry(testHash("a1"), models.OutcomeValid)
		second := newEntry(testHash("b2"), models.OutcomeNotFound)
		require.NoError(t, s.Append(ctx, first))
		require.NoError(t, s.Append(ctx, second))

		assert.Greater(t, first.ID, int64(0))
		assert.Greater(t, second.ID, first.ID)

		count, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("history reports latest attempt per hash", func(t *testing.T) {
		require.NoError(t, pc.TruncateAll(ctx))

		hash := testHash("c3")
		require.NoError(t, s.Append(ctx, newEntry(hash, models.OutcomeUpstreamError)))
		require.NoError(t, s.Append(ctx, newEntry(hash, models.OutcomeValid)))
		require.NoError(t, s.Append(ctx, newEntry(testHash("d4"), models.OutcomeNotFound)))

		history, err := s.History(ctx, 100)
		require.NoError(t, err)
		require.Len(t, history, 2)

		assert.Equal(t, testHash("d4"), history[0].ContentHash)
		assert.Equal(t, models.OutcomeNotFound, history[0].Outcome)
		assert.Equal(t, hash, history[1].ContentHash)
		assert.Equal(t, models.OutcomeValid, history[1].Outcome)
		assert.True(t, history[1].Verified)
		assert.Equal(t, "203.0.113.9", history[1].ClientIP)
		assert.Equal(t, "chrome/linux/webkit", history[1].ClientAgent)
		assert.JSONEq(t, `{"holderName":"Marta Oduya"}`, string(history[1].RequestAttributes))
	})

	t.Run("history honors limit", func(t *testing.T) {
		require.NoError(t, pc.TruncateAll(ctx))

		for _, seed := range []string{"e1", "e2", "e3", "e4"} {
			require.NoError(t, s.Append(ctx, newEntry(testHash(seed), models.OutcomeValid)))
		}

		history, err := s.History(ctx, 2)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, testHash("e4"), history[0].ContentHash)
		assert.Equal(t, testHash("e3"), history[1].ContentHash)
	})

	t.Run("nullable client columns round-trip empty", func(t *testing.T) {
		require.NoError(t, pc.TruncateAll(ctx))

		entry := newEntry(testHash("f5"), models.OutcomeNotFound)
		entry.ClientIP = ""
		entry.ClientAgent = ""
		entry.RequestAttributes = nil
		require.NoError(t, s.Append(ctx, entry))

		history, err := s.History(ctx, 10)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Empty(t, history[0].ClientIP)
		assert.Empty(t, history[0].ClientAgent)
		assert.Empty(t, history[0].RequestAttributes)
	})
}
