package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aistudio/internal/domain"
)

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "a.json", want: "a.json"},
		{key: "./nested/b.json", want: "nested/b.json"},
		{key: "/abs/c.json", want: "abs/c.json"},
		{key: `win\d.json`, want: "win/d.json"},
		{key: "x/../y.json", want: "y.json"},
		{key: "../escape.json", wantErr: true},
		{key: "..", wantErr: true},
		{key: "  ", wantErr: true},
	}
	for _, tc := range tests {
		got, err := sanitizeKey(tc.key)
		if tc.wantErr {
			assert.Error(t, err, tc.key)
			continue
		}
		require.NoError(t, err, tc.key)
		assert.Equal(t, tc.want, got)
	}
}

func TestWriteBatchReportRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	rec := domain.BatchRecord{ID: "0d9c7c1e-6a43-4a43-9d51-1f0a3d3c2b11", TotalImages: 2, MaxAttempts: "3", StartedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	rec.Finish(domain.BatchStatusCompleted, []domain.AttemptOutcome{
		{OK: true, ArtifactPath: "outputs/a_1.png", Filename: "a_1.png", Attempts: 1},
		{ErrorMessage: "No such file", Filename: "a_2.png", Attempts: 1},
	}, rec.StartedAt.Add(time.Minute))

	key, err := store.WriteBatchReport(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, rec.ID+".json", key)

	_, err = os.Stat(filepath.Join(store.BasePath(), key))
	require.NoError(t, err)

	got, err := store.ReadBatchReport(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, 1, got.Succeeded)
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, rec.Outcomes, got.Outcomes)
}

func TestReadBatchReportMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.ReadBatchReport(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWriteOverwritesAtomically(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Write(ctx, "r.json", []byte("first"))
	require.NoError(t, err)
	_, err = store.Write(ctx, "r.json", []byte("second"))
	require.NoError(t, err)

	data, err := store.Read(ctx, "r.json")
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(store.BasePath())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}
