package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo, err := NewDiskRepository(filepath.Join(t.TempDir(), "snapshots"))
	require.NoError(t, err)

	s, found, err := repo.Load(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, s.Len())

	want := sampleStore(t)
	require.NoError(t, repo.Save(ctx, "c1", want))
	require.NoError(t, repo.Save(ctx, "c2", want))

	got, found, err := repo.Load(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, want.Entries(), got.Entries())

	ids, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, ids)

	require.NoError(t, repo.Delete(ctx, "c1"))
	require.NoError(t, repo.Delete(ctx, "c1"))
	_, found, err = repo.Load(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDiskRepository_SaveLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, err := NewDiskRepository(dir)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Save(ctx, "c1", sampleStore(t)))
	}
	des, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, des, 1)
	assert.Equal(t, "c1.idx", des[0].Name())
}

func TestDiskRepository_Corrupt(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, err := NewDiskRepository(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.idx"), []byte("garbage"), 0644))

	_, _, err = repo.Load(ctx, "bad")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestDiskRepository_InvalidKey(t *testing.T) {
	ctx := context.Background()
	repo, err := NewDiskRepository(t.TempDir())
	require.NoError(t, err)

	_, _, err = repo.Load(ctx, "../escape")
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.ErrorIs(t, repo.Save(ctx, "a/b", sampleStore(t)), ErrInvalidKey)
	assert.ErrorIs(t, repo.Delete(ctx, ""), ErrInvalidKey)
}

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()

	f1 := filepath.Join(dir, "f1.txt")
	require.NoError(t, os.WriteFile(f1, []byte("hello"), 0644))
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "a"), []byte("ab"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "b"), []byte("c"), 0644))

	tests := []struct {
		name  string
		paths []string
		want  int64
	}{
		{"single file", []string{f1}, 5},
		{"directory", []string{sub}, 3},
		{"file and dir", []string{f1, sub}, 8},
		{"missing skipped", []string{f1, filepath.Join(dir, "nonexistent"), sub}, 8},
		{"empty skipped", []string{"", f1}, 5},
	}
	for _, tt := range tests {
		t.Run(strings.ReplaceAll(tt.name, " ", "_"), func(t *testing.T) {
			got, err := DiskUsageBytes(tt.paths...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
