package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// CoverMeta describes the stored cover image of a book.
type CoverMeta struct {
	BookID     int64     `json:"book_id"`
	Filename   string    `json:"filename"`
	MIMEType   string    `json:"mime_type"`
	Hash       string    `json:"hash"`
	Size       int64     `json:"size"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Cover is a cover image with its metadata. Data may be a resized variant of
// the stored original.
type Cover struct {
	Meta CoverMeta
	Data []byte
}

// CoverBlobID derives the blob ID under which a book's cover is stored. The
// ID is a hash so covers spread evenly over the sharded blob directories.
func CoverBlobID(bookID int64) BlobID {
	sum := sha256.Sum256([]byte("cover:" + strconv.FormatInt(bookID, 10)))

	return BlobID(hex.EncodeToString(sum[:12]))
}

// ContentHash returns the hex SHA-256 of data, used as the cover ETag.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])
}
