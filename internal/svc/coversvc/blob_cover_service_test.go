package coversvc_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/library/internal/domain"
	"github.com/mkrupp/library/internal/repo/blob"
	"github.com/mkrupp/library/internal/svc/coversvc"
)

type bookSet map[int64]bool

func (b bookSet) Get(_ context.Context, id int64) (domain.Book, error) {
	if !b[id] {
		return domain.Book{}, domain.ErrBookNotFound
	}

	return domain.Book{ID: id, Title: "Dune", Author: "Herbert", TotalCopies: 1, AvailableCopies: 1}, nil
}

func testConfig() coversvc.CoverConfig {
	return coversvc.CoverConfig{
		MaxSize:            1 << 20,
		MaxWidth:           1024,
		MaxPixels:          1 << 20,
		MaxAspectRatio:     4,
		Interpolator:       "catmullrom",
		MultipartMaxMemory: 1 << 20,
	}
}

func setupTestService(t *testing.T, cfg coversvc.CoverConfig) *coversvc.BlobCoverService {
	t.Helper()

	factory := blob.FileSystemBlobRepositoryFactory(blob.FileSystemBlobRepositoryConfig{Basedir: t.TempDir()})

	svc, err := coversvc.NewCoverService(context.Background(), factory, bookSet{1: true, 2: true}, cfg)
	require.NoError(t, err)

	svc.Now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

	return svc
}

func testImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff}) //nolint:gosec
		}
	}

	return img
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(width, height)))

	return buf.Bytes()
}

func jpegBytes(t *testing.T, width, height int) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(width, height), nil))

	return buf.Bytes()
}

func TestNewCoverService_UnknownInterpolator(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Interpolator = "lanczos"

	factory := blob.FileSystemBlobRepositoryFactory(blob.FileSystemBlobRepositoryConfig{Basedir: t.TempDir()})

	_, err := coversvc.NewCoverService(context.Background(), factory, bookSet{}, cfg)
	require.ErrorIs(t, err, coversvc.ErrUnknownInterpolator)
}

func TestStore(t *testing.T) {
	t.Parallel()

	pngData := pngBytes(t, 40, 60)

	tests := []struct {
		name     string
		bookID   int64
		data     []byte
		maxSize  int64
		wantErr  error
		wantType string
	}{
		{name: "png", bookID: 1, data: pngData, wantType: coversvc.MIMETypePNG},
		{name: "jpeg", bookID: 2, data: jpegBytes(t, 40, 60), wantType: coversvc.MIMETypeJPEG},
		{name: "unknown book", bookID: 99, data: pngData, wantErr: domain.ErrBookNotFound},
		{name: "text", bookID: 1, data: []byte("hello, world"), wantErr: domain.ErrCoverTypeUnsupported},
		{name: "truncated png", bookID: 1, data: pngData[:12], wantErr: domain.ErrCoverTypeUnsupported},
		{name: "too large", bookID: 1, data: pngData, maxSize: 16, wantErr: domain.ErrCoverTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig()
			if tt.maxSize > 0 {
				cfg.MaxSize = tt.maxSize
			}

			svc := setupTestService(t, cfg)

			meta, err := svc.Store(context.Background(), tt.bookID, "covers/front.img", tt.data)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.bookID, meta.BookID)
			assert.Equal(t, "front.img", meta.Filename)
			assert.Equal(t, tt.wantType, meta.MIMEType)
			assert.Equal(t, 40, meta.Width)
			assert.Equal(t, 60, meta.Height)
			assert.Equal(t, int64(len(tt.data)), meta.Size)
			assert.Equal(t, domain.ContentHash(tt.data), meta.Hash)
		})
	}
}

func TestFetch_OriginalAndResized(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := setupTestService(t, testConfig())
	data := pngBytes(t, 40, 60)

	_, err := svc.Store(ctx, 1, "front.png", data)
	require.NoError(t, err)

	original, err := svc.Fetch(ctx, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, data, original.Data)
	assert.Equal(t, coversvc.MIMETypePNG, original.Meta.MIMEType)

	resized, err := svc.Fetch(ctx, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 20, resized.Meta.Width)
	assert.Equal(t, 30, resized.Meta.Height)

	config, err := png.DecodeConfig(bytes.NewReader(resized.Data))
	require.NoError(t, err)
	assert.Equal(t, 20, config.Width)
	assert.Equal(t, 30, config.Height)

	cached, err := svc.Fetch(ctx, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, resized.Data, cached.Data)
	assert.Equal(t, resized.Meta.Hash, cached.Meta.Hash)
}

func TestFetch_JPEGStaysJPEG(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := setupTestService(t, testConfig())

	_, err := svc.Store(ctx, 1, "front.jpg", jpegBytes(t, 80, 40))
	require.NoError(t, err)

	resized, err := svc.Fetch(ctx, 1, 40)
	require.NoError(t, err)
	assert.Equal(t, coversvc.MIMETypeJPEG, resized.Meta.MIMEType)
	assert.Equal(t, 20, resized.Meta.Height)

	_, err = jpeg.DecodeConfig(bytes.NewReader(resized.Data))
	require.NoError(t, err)
}

func TestFetch_Rejects(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := setupTestService(t, testConfig())

	_, err := svc.Fetch(ctx, 1, 0)
	require.ErrorIs(t, err, domain.ErrCoverNotFound)

	_, err = svc.Store(ctx, 1, "front.png", pngBytes(t, 10, 10))
	require.NoError(t, err)

	for _, width := range []int{-1, 1025} {
		_, err = svc.Fetch(ctx, 1, width)
		require.ErrorIs(t, err, domain.ErrValidation, "width %d", width)
	}
}

func TestStore_RejectsTooManyPixels(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxPixels = 40 * 60

	svc := setupTestService(t, cfg)

	_, err := svc.Store(context.Background(), 1, "ok.png", pngBytes(t, 40, 60))
	require.NoError(t, err)

	_, err = svc.Store(context.Background(), 1, "big.png", pngBytes(t, 41, 60))
	require.ErrorIs(t, err, domain.ErrCoverTooLarge)
}

func TestFetch_RejectsUnboundedResize(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := setupTestService(t, testConfig())

	_, err := svc.Store(ctx, 1, "strip.png", pngBytes(t, 1, 100))
	require.NoError(t, err)

	_, err = svc.Fetch(ctx, 1, 1024)
	require.ErrorIs(t, err, domain.ErrValidation)

	resized, err := svc.Fetch(ctx, 1, 40)
	require.NoError(t, err)
	assert.Equal(t, 4000, resized.Meta.Height)
}

func TestStore_ReplacesAndClearsCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := setupTestService(t, testConfig())

	_, err := svc.Store(ctx, 1, "a.png", pngBytes(t, 40, 40))
	require.NoError(t, err)

	first, err := svc.Fetch(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, first.Meta.Height)

	_, err = svc.Store(ctx, 1, "b.png", pngBytes(t, 40, 80))
	require.NoError(t, err)

	second, err := svc.Fetch(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 20, second.Meta.Height)
	assert.Equal(t, "b.png", second.Meta.Filename)
}

func TestDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := setupTestService(t, testConfig())

	require.ErrorIs(t, svc.Delete(ctx, 1), domain.ErrCoverNotFound)
	require.NoError(t, svc.DeleteForBook(ctx, 1))

	_, err := svc.Store(ctx, 1, "a.png", pngBytes(t, 40, 40))
	require.NoError(t, err)

	_, err = svc.Fetch(ctx, 1, 10)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, 1))

	_, err = svc.Fetch(ctx, 1, 0)
	require.ErrorIs(t, err, domain.ErrCoverNotFound)

	_, err = svc.Fetch(ctx, 1, 10)
	require.ErrorIs(t, err, domain.ErrCoverNotFound)
}
