package blob_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/library/internal/domain"
	"github.com/mkrupp/library/internal/repo/blob"
)

func setupFileSystemBlobTestRepo(t *testing.T) (*blob.FileSystemRepository, string) {
	t.Helper()

	tempDir := t.TempDir()

	repo, err := blob.NewFileSystemBlobRepository(context.Background(), "test", "bin",
		blob.FileSystemBlobRepositoryConfig{Basedir: tempDir})
	require.NoError(t, err)

	return repo, tempDir
}

func TestFileSystemBlobRepository_StoreAndFetch(t *testing.T) {
	t.Parallel()

	repo, tempDir := setupFileSystemBlobTestRepo(t)
	ctx := context.Background()

	tests := []struct {
		name string
		id   domain.BlobID
		body []byte
	}{
		{name: "regular blob", id: "a1b2c3d4e5f6", body: []byte("original content")},
		{name: "short id is padded", id: "7", body: []byte("short")},
		{name: "empty blob", id: "emptyblob", body: []byte{}},
		{name: "large blob", id: "largeblob", body: make([]byte, 8<<20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			unlock, err := repo.Lock(ctx, tt.id, true)
			require.NoError(t, err)
			t.Cleanup(unlock)

			require.NoError(t, repo.Store(ctx, domain.NewBlob(tt.id, tt.body)))
			assert.True(t, repo.Exists(ctx, tt.id))

			assert.True(t, strings.HasPrefix(repo.GetFilename(tt.id), filepath.Join(tempDir, "test")))

			got, err := repo.Fetch(ctx, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.body, got.Bytes())
		})
	}
}

func TestFileSystemBlobRepository_Overwrite(t *testing.T) {
	t.Parallel()

	repo, _ := setupFileSystemBlobTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, domain.NewBlob("cafebabe", []byte("a much longer first version"))))
	require.NoError(t, repo.Store(ctx, domain.NewBlob("cafebabe", []byte("short"))))

	got, err := repo.Fetch(ctx, "cafebabe")
	require.NoError(t, err)
	assert.Equal(t, "short", string(got.Bytes()))

	entries, err := os.ReadDir(filepath.Dir(repo.GetFilename("cafebabe")))
	require.NoError(t, err)

	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-", "temp files must not be left behind")
	}
}

func TestFileSystemBlobRepository_Missing(t *testing.T) {
	t.Parallel()

	repo, _ := setupFileSystemBlobTestRepo(t)
	ctx := context.Background()

	assert.False(t, repo.Exists(ctx, "missingblob"))

	_, err := repo.Fetch(ctx, "missingblob")
	require.ErrorIs(t, err, blob.ErrNotFound)

	err = repo.Delete(ctx, "missingblob")
	require.ErrorIs(t, err, blob.ErrNotFound)
}

func TestFileSystemBlobRepository_DeleteAll(t *testing.T) {
	t.Parallel()

	repo, _ := setupFileSystemBlobTestRepo(t)
	ctx := context.Background()

	for _, id := range []domain.BlobID{"abcdef012345", "abcdef012345_64", "abcdef012345_128", "abcdef999999_64"} {
		require.NoError(t, repo.Store(ctx, domain.NewBlob(id, []byte(id))))
	}

	require.NoError(t, repo.DeleteAll(ctx, "abcdef012345", "_*"))

	assert.True(t, repo.Exists(ctx, "abcdef012345"))
	assert.False(t, repo.Exists(ctx, "abcdef012345_64"))
	assert.False(t, repo.Exists(ctx, "abcdef012345_128"))
	assert.True(t, repo.Exists(ctx, "abcdef999999_64"))

	require.NoError(t, repo.Delete(ctx, "abcdef012345"))
	assert.False(t, repo.Exists(ctx, "abcdef012345"))
}

func TestFileSystemBlobRepository_Lock(t *testing.T) {
	t.Parallel()

	repo, _ := setupFileSystemBlobTestRepo(t)
	ctx := context.Background()

	t.Run("shared locks coexist", func(t *testing.T) {
		t.Parallel()

		unlock1, err := repo.Lock(ctx, "sharedlock", false)
		require.NoError(t, err)
		defer unlock1()

		unlock2, err := repo.Lock(ctx, "sharedlock", false)
		require.NoError(t, err)
		defer unlock2()
	})

	t.Run("exclusive lock serializes writers", func(t *testing.T) {
		t.Parallel()

		var (
			wg      sync.WaitGroup
			m       sync.Mutex
			inside  int
			maxSeen int
		)

		for range 4 {
			wg.Add(1)

			go func() {
				defer wg.Done()

				unlock, err := repo.Lock(ctx, "exclusivelock", true)
				if !assert.NoError(t, err) {
					return
				}
				defer unlock()

				m.Lock()
				inside++
				maxSeen = max(maxSeen, inside)
				m.Unlock()

				m.Lock()
				inside--
				m.Unlock()
			}()
		}

		wg.Wait()
		assert.Equal(t, 1, maxSeen)
	})

	t.Run("can reacquire after release", func(t *testing.T) {
		t.Parallel()

		unlock, err := repo.Lock(ctx, "relock", true)
		require.NoError(t, err)
		unlock()

		unlock, err = repo.Lock(ctx, "relock", true)
		require.NoError(t, err)
		unlock()
	})
}
