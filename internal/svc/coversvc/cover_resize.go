package coversvc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"strings"

	"golang.org/x/image/draw"
)

// ErrUnknownInterpolator is returned when an unsupported interpolation method is configured.
var ErrUnknownInterpolator = errors.New("unknown interpolator")

//nolint:gochecknoglobals
var interpolMap = map[string]draw.Interpolator{
	"nearestneighbor": draw.NearestNeighbor,
	"catmullrom":      draw.CatmullRom,
	"bilinear":        draw.BiLinear,
	"approxbilinear":  draw.ApproxBiLinear,
}

func getInterpolatorByName(name string) (draw.Interpolator, error) {
	interpol, ok := interpolMap[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInterpolator, name)
	}

	return interpol, nil
}

// scaledHeight returns the height of a srcWidth x srcHeight image scaled to
// width with its aspect ratio kept.
func scaledHeight(srcWidth, srcHeight, width int) int {
	return int(max(1, int64(srcHeight)*int64(width)/int64(max(1, srcWidth))))
}

// resizeImage scales data to width keeping the aspect ratio and returns the
// encoded result with its MIME type and height.
func resizeImage(data []byte, sourceType string, width int, interpol draw.Interpolator) (_ []byte, mimeType string, height int, err error) {
	format, err := formatByType(sourceType)
	if err != nil {
		return nil, "", 0, err
	}

	original, err := format.decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", 0, fmt.Errorf("decode image: %w", err)
	}

	bounds := original.Bounds()
	height = scaledHeight(bounds.Dx(), bounds.Dy(), width)

	bitmap := image.NewRGBA(image.Rect(0, 0, width, height))
	interpol.Scale(bitmap, bitmap.Bounds(), original, bounds, draw.Over, nil)

	mimeType = outputType(sourceType)

	var buf bytes.Buffer
	if err := encodeImage(&buf, bitmap, mimeType); err != nil {
		return nil, "", 0, fmt.Errorf("encode image: %w", err)
	}

	return buf.Bytes(), mimeType, height, nil
}
