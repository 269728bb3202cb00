package coversvc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/image/draw"

	"github.com/mkrupp/library/internal/domain"
	"github.com/mkrupp/library/internal/infra/logging"
	"github.com/mkrupp/library/internal/repo/blob"
)

//nolint:gochecknoglobals
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BlobCoverService implements CoverService on blob repositories. Originals
// and their JSON metadata share a blob ID derived from the book ID; resized
// variants are cached as <id>_<width>.
type BlobCoverService struct {
	dataRepo  blob.Repository
	metaRepo  blob.Repository
	cacheRepo blob.Repository
	books     BookLookup
	interpol  draw.Interpolator
	cfg       CoverConfig
	log       logging.Logger

	Now func() time.Time
}

var _ CoverService = (*BlobCoverService)(nil)

// Store implements CoverService.Store.
func (coverSvc *BlobCoverService) Store(
	ctx context.Context,
	bookID int64,
	filename string,
	data []byte,
) (meta domain.CoverMeta, err error) {
	log := coverSvc.log.With(logging.Group("cover", "book_id", bookID, "filename", filename, "size", len(data)))

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "cover store failed", "error", err)
		} else {
			log.InfoContext(ctx, "cover stored", logging.Group("cover", "mime_type", meta.MIMEType))
		}
	}()

	format, config, err := coverSvc.checkUploadConstraints(int64(len(data)), data)
	if err != nil {
		return domain.CoverMeta{}, err
	}

	if _, err := coverSvc.books.Get(ctx, bookID); err != nil {
		return domain.CoverMeta{}, fmt.Errorf("get book: %w", err)
	}

	id := domain.CoverBlobID(bookID)

	unlock, err := coverSvc.dataRepo.Lock(ctx, id, true)
	if err != nil {
		return domain.CoverMeta{}, fmt.Errorf("lock cover: %w", err)
	}
	defer unlock()

	meta = domain.CoverMeta{
		BookID:     bookID,
		Filename:   filepath.Base(filename),
		MIMEType:   format.mimeType,
		Hash:       domain.ContentHash(data),
		Size:       int64(len(data)),
		Width:      config.Width,
		Height:     config.Height,
		UploadedAt: coverSvc.Now().UTC(),
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return domain.CoverMeta{}, fmt.Errorf("marshal meta: %w", err)
	}

	if err := coverSvc.dataRepo.Store(ctx, domain.NewBlob(id, data)); err != nil {
		return domain.CoverMeta{}, fmt.Errorf("store data: %w", err)
	}

	if err := coverSvc.metaRepo.Store(ctx, domain.NewBlob(id, metaJSON)); err != nil {
		return domain.CoverMeta{}, fmt.Errorf("store meta: %w", err)
	}

	if err := coverSvc.cacheRepo.DeleteAll(ctx, id, "_*"); err != nil {
		return domain.CoverMeta{}, fmt.Errorf("clear cache: %w", err)
	}

	return meta, nil
}

// checkUploadConstraints validates size and content type of an upload and
// returns its detected format and dimensions.
func (coverSvc *BlobCoverService) checkUploadConstraints(size int64, data []byte) (imageFormat, image.Config, error) {
	if size > coverSvc.cfg.MaxSize {
		return imageFormat{}, image.Config{}, domain.ErrCoverTooLarge.With(
			"cover image too large: %d bytes exceeds %d", size, coverSvc.cfg.MaxSize)
	}

	format, err := detectFormat(data)
	if err != nil {
		return imageFormat{}, image.Config{}, err
	}

	config, err := format.config(bytes.NewReader(data))
	if err != nil {
		return imageFormat{}, image.Config{}, domain.ErrCoverTypeUnsupported.With(
			"cover image could not be decoded as %s", format.mimeType)
	}

	if config.Width < 1 || config.Height < 1 {
		return imageFormat{}, image.Config{}, domain.ErrCoverTypeUnsupported.With("cover image has no pixels")
	}

	if pixels := int64(config.Width) * int64(config.Height); pixels > coverSvc.cfg.MaxPixels {
		return imageFormat{}, image.Config{}, domain.ErrCoverTooLarge.With(
			"cover image too large: %dx%d exceeds %d pixels", config.Width, config.Height, coverSvc.cfg.MaxPixels)
	}

	return format, config, nil
}

// Fetch implements CoverService.Fetch.
func (coverSvc *BlobCoverService) Fetch(ctx context.Context, bookID int64, width int) (cover domain.Cover, err error) {
	log := coverSvc.log.With(logging.Group("cover", "book_id", bookID, "width", width))

	defer func() {
		if err != nil {
			log.DebugContext(ctx, "cover fetch failed", "error", err)
		} else {
			log.DebugContext(ctx, "cover fetched")
		}
	}()

	if width < 0 || width > coverSvc.cfg.MaxWidth {
		return domain.Cover{}, domain.Validationf("width must be between 1 and %d", coverSvc.cfg.MaxWidth)
	}

	id := domain.CoverBlobID(bookID)

	unlock, err := coverSvc.dataRepo.Lock(ctx, id, false)
	if err != nil {
		return domain.Cover{}, fmt.Errorf("lock cover: %w", err)
	}
	defer unlock()

	cover, err = coverSvc.fetchOriginal(ctx, id)
	if err != nil {
		return domain.Cover{}, err
	}

	if width == 0 || width == cover.Meta.Width {
		return cover, nil
	}

	if err := coverSvc.checkResizeConstraints(cover.Meta, width); err != nil {
		return domain.Cover{}, err
	}

	return coverSvc.fetchResized(ctx, id, cover, width)
}

// checkResizeConstraints bounds the bitmap a resize to width would allocate.
func (coverSvc *BlobCoverService) checkResizeConstraints(meta domain.CoverMeta, width int) error {
	height := scaledHeight(meta.Width, meta.Height, width)

	maxHeight := int64(coverSvc.cfg.MaxWidth) * int64(max(1, coverSvc.cfg.MaxAspectRatio))
	if int64(height) > maxHeight || int64(width)*int64(height) > coverSvc.cfg.MaxPixels {
		return domain.Validationf("cover cannot be resized to width %d: height %d exceeds the limit", width, height)
	}

	return nil
}

func (coverSvc *BlobCoverService) fetchOriginal(ctx context.Context, id domain.BlobID) (domain.Cover, error) {
	metaBlob, err := coverSvc.metaRepo.Fetch(ctx, id)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return domain.Cover{}, domain.ErrCoverNotFound
		}

		return domain.Cover{}, fmt.Errorf("fetch meta: %w", err)
	}

	var meta domain.CoverMeta
	if err := json.Unmarshal(metaBlob.Bytes(), &meta); err != nil {
		return domain.Cover{}, fmt.Errorf("unmarshal meta: %w", err)
	}

	dataBlob, err := coverSvc.dataRepo.Fetch(ctx, id)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return domain.Cover{}, domain.ErrCoverNotFound
		}

		return domain.Cover{}, fmt.Errorf("fetch data: %w", err)
	}

	return domain.Cover{Meta: meta, Data: dataBlob.Bytes()}, nil
}

func (coverSvc *BlobCoverService) fetchResized(
	ctx context.Context,
	id domain.BlobID,
	original domain.Cover,
	width int,
) (domain.Cover, error) {
	cacheID := domain.BlobID(string(id) + "_" + strconv.Itoa(width))
	mimeType := outputType(original.Meta.MIMEType)

	if cached, err := coverSvc.cacheRepo.Fetch(ctx, cacheID); err == nil {
		if format, err := formatByType(mimeType); err == nil {
			if config, err := format.config(bytes.NewReader(cached.Bytes())); err == nil {
				return variant(original.Meta, cached.Bytes(), mimeType, config.Width, config.Height), nil
			}
		}
	} else if !errors.Is(err, blob.ErrNotFound) {
		return domain.Cover{}, fmt.Errorf("fetch cache: %w", err)
	}

	data, mimeType, height, err := resizeImage(original.Data, original.Meta.MIMEType, width, coverSvc.interpol)
	if err != nil {
		return domain.Cover{}, fmt.Errorf("resize: %w", err)
	}

	if err := coverSvc.cacheRepo.Store(ctx, domain.NewBlob(cacheID, data)); err != nil {
		return domain.Cover{}, fmt.Errorf("store cache: %w", err)
	}

	return variant(original.Meta, data, mimeType, width, height), nil
}

func variant(meta domain.CoverMeta, data []byte, mimeType string, width, height int) domain.Cover {
	meta.MIMEType = mimeType
	meta.Hash = domain.ContentHash(data)
	meta.Size = int64(len(data))
	meta.Width = width
	meta.Height = height

	return domain.Cover{Meta: meta, Data: data}
}

// Delete implements CoverService.Delete.
func (coverSvc *BlobCoverService) Delete(ctx context.Context, bookID int64) (err error) {
	log := coverSvc.log.With(logging.Group("cover", "book_id", bookID))

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "cover delete failed", "error", err)
		} else {
			log.InfoContext(ctx, "cover deleted")
		}
	}()

	id := domain.CoverBlobID(bookID)

	unlock, err := coverSvc.dataRepo.Lock(ctx, id, true)
	if err != nil {
		return fmt.Errorf("lock cover: %w", err)
	}
	defer unlock()

	if !coverSvc.metaRepo.Exists(ctx, id) {
		return domain.ErrCoverNotFound
	}

	if err := coverSvc.metaRepo.Delete(ctx, id); err != nil && !errors.Is(err, blob.ErrNotFound) {
		return fmt.Errorf("delete meta: %w", err)
	}

	if err := coverSvc.dataRepo.Delete(ctx, id); err != nil && !errors.Is(err, blob.ErrNotFound) {
		return fmt.Errorf("delete data: %w", err)
	}

	if err := coverSvc.cacheRepo.DeleteAll(ctx, id, "_*"); err != nil {
		return fmt.Errorf("delete cache: %w", err)
	}

	return nil
}
