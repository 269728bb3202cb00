package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mkrupp/library/internal/domain"
	"github.com/mkrupp/library/internal/infra/logging"
)

var ErrBytesWrittenMismatch = errors.New("bytes written mismatch")

const (
	dirPrefixLength = 2 // 16^2 = 256 directories per level
	dirPrefixDepth  = 3
	idMinLength     = dirPrefixDepth * dirPrefixLength
)

// FileSystemBlobRepositoryConfig holds configuration for the filesystem-based blob repository.
type FileSystemBlobRepositoryConfig struct {
	// Basedir is the root directory for blob storage
	Basedir string `env:"BASEDIR" default:"var/storage/blob"`
}

// FileSystemBlobRepositoryFactory returns a RepositoryFactory creating
// FileSystemRepository instances below cfg.Basedir.
func FileSystemBlobRepositoryFactory(cfg FileSystemBlobRepositoryConfig) RepositoryFactory {
	return func(ctx context.Context, subdir string, ext string) (Repository, error) {
		return NewFileSystemBlobRepository(ctx, subdir, ext, cfg)
	}
}

// NewFileSystemBlobRepository creates a repository storing blobs as
// <basedir>/<subdir>/<aa>/<bb>/<cc>/<id>.<ext>.
func NewFileSystemBlobRepository(
	ctx context.Context,
	subdir string,
	ext string,
	cfg FileSystemBlobRepositoryConfig,
) (*FileSystemRepository, error) {
	repo := &FileSystemRepository{
		root: filepath.Join(cfg.Basedir, subdir),
		ext:  ext,
		log: logging.GetLogger("repo.blob").With(logging.Group("repo",
			"basedir", cfg.Basedir,
			"subdir", subdir,
			"ext", ext,
		)),
	}

	if err := os.MkdirAll(repo.root, 0o755); err != nil {
		repo.log.ErrorContext(ctx, "init storage failed", "error", err)

		return nil, fmt.Errorf("init storage: %w", err)
	}

	return repo, nil
}

// FileSystemRepository implements Repository on the local filesystem. Blobs
// are sharded over nested directories named after ID prefixes.
type FileSystemRepository struct {
	root string
	ext  string
	log  logging.Logger
}

var _ Repository = (*FileSystemRepository)(nil)

// Lock implements Repository.Lock with flock(2) on a sidecar lock file.
func (fsRepo *FileSystemRepository) Lock(ctx context.Context, id domain.BlobID, exclusive bool) (release func(), err error) {
	lockfile := fsRepo.GetFilename(id) + ".lock"
	log := fsRepo.log.With(logging.Group("blob", "id", id, "exclusive", exclusive))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "lock failed", "error", err)
		}
	}()

	if err := os.MkdirAll(filepath.Dir(lockfile), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir all: %w", err)
	}

	file, err := os.OpenFile(lockfile, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	mode := syscall.LOCK_SH
	if exclusive {
		mode = syscall.LOCK_EX
	}

	if err := syscall.Flock(int(file.Fd()), mode); err != nil {
		_ = file.Close()

		return nil, fmt.Errorf("flock: %w", err)
	}

	return func() {
		_ = syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		_ = file.Close()
	}, nil
}

// Exists implements Repository.Exists.
func (fsRepo *FileSystemRepository) Exists(_ context.Context, id domain.BlobID) bool {
	_, err := os.Stat(fsRepo.GetFilename(id))

	return err == nil
}

// Store implements Repository.Store. The blob is written to a temp file and
// renamed into place so readers never observe partial content.
func (fsRepo *FileSystemRepository) Store(ctx context.Context, blob *domain.Blob) (err error) {
	filename := fsRepo.GetFilename(blob.ID)
	log := fsRepo.log.With(logging.Group("blob", "id", blob.ID, "size", blob.Size()))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "blob store failed", "error", err)
		} else {
			log.DebugContext(ctx, "blob stored")
		}
	}()

	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("mkdir all: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(filename), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}

	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	written, err := blob.WriteTo(tmp)
	if err != nil {
		_ = tmp.Close()

		return fmt.Errorf("write: %w", err)
	} else if written != blob.Size() {
		_ = tmp.Close()

		return fmt.Errorf("%w: expected %d, got %d", ErrBytesWrittenMismatch, blob.Size(), written)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("sync: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}

	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("rename: %w", err)
	}

	return nil
}

// Fetch implements Repository.Fetch.
func (fsRepo *FileSystemRepository) Fetch(ctx context.Context, id domain.BlobID) (*domain.Blob, error) {
	body, err := os.ReadFile(fsRepo.GetFilename(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = errors.Join(ErrNotFound, err)
		} else {
			fsRepo.log.ErrorContext(ctx, "blob fetch failed", logging.Group("blob", "id", id), "error", err)
		}

		return nil, fmt.Errorf("read blob: %w", err)
	}

	return domain.NewBlob(id, body), nil
}

// Delete implements Repository.Delete.
func (fsRepo *FileSystemRepository) Delete(ctx context.Context, id domain.BlobID) error {
	if err := os.Remove(fsRepo.GetFilename(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = errors.Join(ErrNotFound, err)
		}

		return fmt.Errorf("remove blob: %w", err)
	}

	fsRepo.log.DebugContext(ctx, "blob deleted", logging.Group("blob", "id", id))

	return nil
}

// DeleteAll implements Repository.DeleteAll.
func (fsRepo *FileSystemRepository) DeleteAll(ctx context.Context, id domain.BlobID, pattern string) (err error) {
	log := fsRepo.log.With(logging.Group("blob", "id", id, "pattern", pattern))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "blob delete pattern failed", "error", err)
		} else {
			log.DebugContext(ctx, "blob pattern deleted")
		}
	}()

	matches, err := filepath.Glob(fsRepo.getBasename(id) + pattern + "." + fsRepo.ext)
	if err != nil {
		return fmt.Errorf("glob: %w", err)
	}

	for _, filename := range matches {
		if err := os.Remove(filename); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove: %w", err)
		}
	}

	return nil
}

// GetFilename returns the full filesystem path for a blob with the given ID.
func (fsRepo *FileSystemRepository) GetFilename(id domain.BlobID) string {
	return fsRepo.getBasename(id) + "." + fsRepo.ext
}

// getBasename maps an ID to its sharded path without extension, for example
// 5f/56/69/5f56692f0df9. IDs shorter than the shard depth are zero-padded.
// The shard directories derive from the leading characters only, so an ID
// and its suffixed variants share a directory.
func (fsRepo *FileSystemRepository) getBasename(id domain.BlobID) string {
	basename := strings.NewReplacer("/", "", string(filepath.Separator), "", "..", "").Replace(string(id))
	if len(basename) < idMinLength {
		basename = strings.Repeat("0", idMinLength-len(basename)) + basename
	}

	parts := make([]string, 0, dirPrefixDepth+2)
	parts = append(parts, fsRepo.root)

	for i := range dirPrefixDepth {
		parts = append(parts, basename[i*dirPrefixLength:(i+1)*dirPrefixLength])
	}

	return filepath.Join(append(parts, basename)...)
}
