package coversvc

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/mkrupp/library/internal/domain"
)

const (
	MIMETypeJPEG = "image/jpeg"
	MIMETypePNG  = "image/png"
	MIMETypeGIF  = "image/gif"
	MIMETypeBMP  = "image/bmp"
	MIMETypeTIFF = "image/tiff"
	MIMETypeWebP = "image/webp"
)

type imageFormat struct {
	mimeType string
	matches  func([]byte) bool
	decode   func(io.Reader) (image.Image, error)
	config   func(io.Reader) (image.Config, error)
}

func hasPrefix(prefixes ...string) func([]byte) bool {
	return func(data []byte) bool {
		for _, prefix := range prefixes {
			if bytes.HasPrefix(data, []byte(prefix)) {
				return true
			}
		}

		return false
	}
}

func isWebP(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}

//nolint:gochecknoglobals
var imageFormats = []imageFormat{
	{MIMETypeJPEG, hasPrefix("\xFF\xD8\xFF"), jpeg.Decode, jpeg.DecodeConfig},
	{MIMETypePNG, hasPrefix("\x89PNG\r\n\x1A\n"), png.Decode, png.DecodeConfig},
	{MIMETypeGIF, hasPrefix("GIF87a", "GIF89a"), gif.Decode, gif.DecodeConfig},
	{MIMETypeBMP, hasPrefix("BM"), bmp.Decode, bmp.DecodeConfig},
	{MIMETypeTIFF, hasPrefix("II*\x00", "MM\x00*"), tiff.Decode, tiff.DecodeConfig},
	{MIMETypeWebP, isWebP, webp.Decode, webp.DecodeConfig},
}

// detectFormat identifies the image format from the content's magic bytes.
func detectFormat(data []byte) (imageFormat, error) {
	for _, format := range imageFormats {
		if format.matches(data) {
			return format, nil
		}
	}

	return imageFormat{}, domain.ErrCoverTypeUnsupported
}

func formatByType(mimeType string) (imageFormat, error) {
	for _, format := range imageFormats {
		if format.mimeType == mimeType {
			return format, nil
		}
	}

	return imageFormat{}, fmt.Errorf("%w: %q", domain.ErrCoverTypeUnsupported, mimeType)
}

// outputType is the encoding of resized variants: JPEG sources stay JPEG,
// everything else becomes PNG.
func outputType(sourceType string) string {
	if sourceType == MIMETypeJPEG {
		return MIMETypeJPEG
	}

	return MIMETypePNG
}

func encodeImage(w io.Writer, img image.Image, mimeType string) error {
	switch mimeType {
	case MIMETypeJPEG:
		//nolint:exhaustruct,mnd
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 85})
	default:
		return png.Encode(w, img)
	}
}
