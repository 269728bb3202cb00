package blob

import (
	"context"
	"errors"

	"github.com/mkrupp/library/internal/domain"
)

// ErrNotFound is returned when a blob does not exist.
var ErrNotFound = errors.New("blob not found")

// Repository defines the interface for blob storage operations.
type Repository interface {
	// Lock acquires a lock on the blob with the given ID.
	// If exclusive is true, acquires a write lock, otherwise a read lock.
	// Returns a function to release the lock.
	Lock(ctx context.Context, id domain.BlobID, exclusive bool) (func(), error)

	// Exists checks if a blob with the given ID exists.
	Exists(ctx context.Context, id domain.BlobID) bool

	// Store persists a blob, replacing any previous content atomically.
	Store(ctx context.Context, blob *domain.Blob) error

	// Fetch retrieves a blob by its ID. Returns ErrNotFound if it is missing.
	Fetch(ctx context.Context, id domain.BlobID) (*domain.Blob, error)

	// Delete removes a blob. Returns ErrNotFound if it is missing.
	Delete(ctx context.Context, id domain.BlobID) error

	// DeleteAll removes all blobs whose ID is id followed by a suffix
	// matching pattern.
	DeleteAll(ctx context.Context, id domain.BlobID, pattern string) error
}

// RepositoryFactory creates a Repository storing blobs with extension ext in
// the namespace name.
type RepositoryFactory func(ctx context.Context, name string, ext string) (Repository, error)
