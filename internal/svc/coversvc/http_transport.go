package coversvc

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mkrupp/library/internal/domain"
	"github.com/mkrupp/library/internal/infra/logging"
	http_ "github.com/mkrupp/library/internal/infra/transport/http"
)

const (
	// MultipartFileName is the form field carrying the uploaded cover.
	MultipartFileName = "cover"

	// URLBookIDParam is the URL parameter naming the book.
	URLBookIDParam = "book_id"

	// URLWidthParam is the query parameter selecting a resized variant.
	URLWidthParam = "width"
)

var ErrNoMultipartFile = domain.Validationf("multipart field %q is required", MultipartFileName)

// HTTPTransport serves the /covers endpoints.
type HTTPTransport struct {
	coverSvc CoverService
	cfg      CoverConfig
	log      logging.Logger
	router   chi.Router
}

var _ http_.HTTPTransport = (*HTTPTransport)(nil)

// NewHTTPTransport creates the /covers router. Downloads require a token,
// uploads and deletions the LIBRARIAN role.
func NewHTTPTransport(coverSvc CoverService, validator http_.TokenValidator, cfg CoverConfig) *HTTPTransport {
	ht := &HTTPTransport{
		coverSvc: coverSvc,
		cfg:      cfg,
		log:      logging.GetLogger("svc.coversvc.http_transport"),
		router:   chi.NewRouter(),
	}

	ht.router.Use(http_.Authenticating(validator, ht.log))
	ht.router.Get("/{"+URLBookIDParam+"}", http_.Handle(ht.log, ht.handleDownload))

	ht.router.Group(func(r chi.Router) {
		r.Use(http_.RequireRole(domain.RoleLibrarian))
		r.Put("/{"+URLBookIDParam+"}", http_.Handle(ht.log, ht.handleUpload))
		r.Delete("/{"+URLBookIDParam+"}", http_.Handle(ht.log, ht.handleDelete))
	})

	return ht
}

// ServeHTTP implements http.Handler. Routes are relative to the /covers mount.
func (ht *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ht.router.ServeHTTP(w, r)
}

type coverResponse struct {
	Cover domain.CoverMeta `json:"cover"`
}

func (ht *HTTPTransport) handleUpload(w http.ResponseWriter, r *http.Request) error {
	bookID, err := http_.PathID(r, URLBookIDParam)
	if err != nil {
		return err
	}

	// Leave room for the multipart envelope around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, ht.coverSvc.MaxSize()+ht.cfg.MultipartMaxMemory)

	if err := r.ParseMultipartForm(ht.cfg.MultipartMaxMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return domain.ErrCoverTooLarge
		}

		return domain.Validationf("invalid multipart form")
	}

	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile(MultipartFileName)
	if err != nil {
		return ErrNoMultipartFile
	}
	defer file.Close()

	if header.Size > ht.coverSvc.MaxSize() {
		return domain.ErrCoverTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(file, ht.coverSvc.MaxSize()+1))
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}

	meta, err := ht.coverSvc.Store(r.Context(), bookID, header.Filename, data)
	if err != nil {
		return fmt.Errorf("store cover: %w", err)
	}

	return http_.WriteJSON(w, http.StatusOK, coverResponse{Cover: meta})
}

func (ht *HTTPTransport) handleDownload(w http.ResponseWriter, r *http.Request) error {
	bookID, err := http_.PathID(r, URLBookIDParam)
	if err != nil {
		return err
	}

	width, err := http_.QueryInt(r, URLWidthParam, 0)
	if err != nil {
		return err
	}

	cover, err := ht.coverSvc.Fetch(r.Context(), bookID, width)
	if err != nil {
		return fmt.Errorf("fetch cover: %w", err)
	}

	etag := `"` + cover.Meta.Hash + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, max-age=0, must-revalidate")

	if match := r.Header.Get("If-None-Match"); match != "" && (match == etag || match == "*") {
		w.WriteHeader(http.StatusNotModified)

		return nil
	}

	w.Header().Set("Content-Type", cover.Meta.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(cover.Data)))
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(cover.Data); err != nil {
		ht.log.DebugContext(r.Context(), "cover write failed", "error", err)
	}

	return nil
}

func (ht *HTTPTransport) handleDelete(w http.ResponseWriter, r *http.Request) error {
	bookID, err := http_.PathID(r, URLBookIDParam)
	if err != nil {
		return err
	}

	if err := ht.coverSvc.Delete(r.Context(), bookID); err != nil {
		return fmt.Errorf("delete cover: %w", err)
	}

	return http_.WriteJSON(w, http.StatusOK, http_.MessageResponse{Message: "cover deleted"})
}
