package coversvc

// CoverConfig holds configuration parameters for the cover service.
type CoverConfig struct {
	// MaxSize is the maximum allowed upload size in bytes. Default is 5MiB.
	MaxSize int64 `env:"MAX_SIZE" default:"5242880"`

	// MaxWidth is the largest width a cover may be resized to
	MaxWidth int `env:"MAX_WIDTH" default:"1024"`

	// MaxPixels bounds width*height of uploaded covers and of resized
	// variants. Default is 16 megapixels.
	MaxPixels int64 `env:"MAX_PIXELS" default:"16777216"`

	// MaxAspectRatio bounds the height of a resized variant to
	// MaxAspectRatio*MaxWidth.
	MaxAspectRatio int `env:"MAX_ASPECT_RATIO" default:"4"`

	// Interpolator specifies the image scaling algorithm to use.
	// Valid values are: "nearestneighbor", "catmullrom", "bilinear", "approxbilinear"
	Interpolator string `env:"INTERPOLATOR" default:"catmullrom"`

	// MultipartMaxMemory is the part of a multipart upload kept in memory
	MultipartMaxMemory int64 `env:"MULTIPART_MAX_MEMORY" default:"1048576"`
}
