package coversvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mkrupp/library/internal/domain"
	"github.com/mkrupp/library/internal/infra/logging"
	"github.com/mkrupp/library/internal/repo/blob"
)

// CoverService defines the interface for managing book cover images.
type CoverService interface {
	// Store validates data and saves it as the cover of the given book,
	// replacing any previous cover and its resized variants.
	Store(ctx context.Context, bookID int64, filename string, data []byte) (domain.CoverMeta, error)

	// Fetch returns the cover of the given book. A non-zero width returns a
	// variant resized to that width.
	Fetch(ctx context.Context, bookID int64, width int) (domain.Cover, error)

	// Delete removes the cover of the given book and all of its variants.
	Delete(ctx context.Context, bookID int64) error

	// MaxSize returns the maximum allowed upload size in bytes.
	MaxSize() int64
}

// BookLookup is the part of the catalog the cover service depends on.
type BookLookup interface {
	Get(ctx context.Context, id int64) (domain.Book, error)
}

// NewCoverService creates a BlobCoverService storing originals, metadata and
// resized variants in repositories created by repoFactory.
func NewCoverService(
	ctx context.Context,
	repoFactory blob.RepositoryFactory,
	books BookLookup,
	cfg CoverConfig,
) (*BlobCoverService, error) {
	interpol, err := getInterpolatorByName(cfg.Interpolator)
	if err != nil {
		return nil, err
	}

	dataRepo, err := repoFactory(ctx, "covers", "bin")
	if err != nil {
		return nil, fmt.Errorf("new data repository: %w", err)
	}

	metaRepo, err := repoFactory(ctx, "covers", "json")
	if err != nil {
		return nil, fmt.Errorf("new meta repository: %w", err)
	}

	cacheRepo, err := repoFactory(ctx, "cache", "bin")
	if err != nil {
		return nil, fmt.Errorf("new cache repository: %w", err)
	}

	return &BlobCoverService{
		dataRepo:  dataRepo,
		metaRepo:  metaRepo,
		cacheRepo: cacheRepo,
		books:     books,
		interpol:  interpol,
		cfg:       cfg,
		log:       logging.GetLogger("svc.coversvc.blob_cover_service"),
		Now:       time.Now,
	}, nil
}

// DeleteForBook removes the cover of a deleted book. A book without a cover
// is not an error.
func (coverSvc *BlobCoverService) DeleteForBook(ctx context.Context, bookID int64) error {
	if err := coverSvc.Delete(ctx, bookID); err != nil && !errors.Is(err, domain.ErrCoverNotFound) {
		return err
	}

	return nil
}

// MaxSize implements CoverService.MaxSize.
func (coverSvc *BlobCoverService) MaxSize() int64 {
	return coverSvc.cfg.MaxSize
}
