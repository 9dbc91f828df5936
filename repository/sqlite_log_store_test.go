package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"jurismemo-backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempLogStore(t *testing.T) *SQLiteLogStore {
	t.Helper()
	s, err := NewSQLiteLogStore(filepath.Join(t.TempDir(), "logs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleLog(memo string, createdAt time.Time) *models.EvaluationLog {
	return &models.EvaluationLog{
		Memo: memo,
		Chunks: []models.Chunk{{
			ID:         "7",
			ECLI:       "ECLI:NL:CRVB:2020:1",
			Text:       "fragment",
			Similarity: 0.81,
			Metadata:   map[string]interface{}{"court": "CRvB"},
		}},
		Evaluation: models.EvaluationVerdict{
			CitationPrecision:   1,
			PredictedECLIs:      []string{"ECLI:NL:CRVB:2020:1"},
			ReferenceECLIs:      []string{"ECLI:NL:CRVB:2020:1"},
			UngroundedSentences: []string{},
			Threshold:           0.7,
			SimilarityMetric:    "cosine",
			NumSentences:        1,
			NumChunks:           1,
		},
		SimilarityMetric: "cosine",
		Threshold:        0.7,
		CreatedAt:        createdAt,
	}
}

func TestSQLiteLogStoreRoundTrip(t *testing.T) {
	s := tempLogStore(t)
	ctx := context.Background()

	log := sampleLog("memo", time.Time{})
	require.NoError(t, s.Insert(ctx, log))
	assert.NotEqual(t, uuid.Nil, log.ID)
	assert.False(t, log.CreatedAt.IsZero())

	got, err := s.GetByID(ctx, log.ID)
	require.NoError(t, err)

	assert.Equal(t, log.ID, got.ID)
	assert.Equal(t, "memo", got.Memo)
	assert.Equal(t, log.Evaluation, got.Evaluation)
	require.Len(t, got.Chunks, 1)
	assert.Equal(t, models.ChunkID("7"), got.Chunks[0].ID)
	assert.Equal(t, "CRvB", got.Chunks[0].Court())
	assert.True(t, log.CreatedAt.Equal(got.CreatedAt))
}

func TestSQLiteLogStoreListNewestFirst(t *testing.T) {
	s := tempLogStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Insert(ctx, sampleLog("oud", base)))
	require.NoError(t, s.Insert(ctx, sampleLog("nieuwst", base.Add(2*time.Second+120*time.Millisecond))))
	require.NoError(t, s.Insert(ctx, sampleLog("midden", base.Add(2*time.Second+100*time.Millisecond))))

	logs, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, []string{"nieuwst", "midden", "oud"}, []string{logs[0].Memo, logs[1].Memo, logs[2].Memo})

	limited, err := s.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "nieuwst", limited[0].Memo)
}

func TestSQLiteLogStoreNotFound(t *testing.T) {
	s := tempLogStore(t)

	_, err := s.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
