package catalogsvc

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mkrupp/library/internal/domain"
	"github.com/mkrupp/library/internal/infra/logging"
	http_ "github.com/mkrupp/library/internal/infra/transport/http"
)

// HTTPTransport serves the /books endpoints.
type HTTPTransport struct {
	catalogSvc *CatalogService
	log        logging.Logger
	router     chi.Router
}

// NewHTTPTransport creates the /books router. Reads require a token, writes
// and the CSV export require the LIBRARIAN role.
func NewHTTPTransport(catalogSvc *CatalogService, validator http_.TokenValidator) *HTTPTransport {
	ht := &HTTPTransport{
		catalogSvc: catalogSvc,
		log:        logging.GetLogger("svc.catalogsvc.http_transport"),
		router:     chi.NewRouter(),
	}

	ht.router.Use(http_.Authenticating(validator, ht.log))
	ht.router.Get("/", http_.Handle(ht.log, ht.handleList))
	ht.router.Get("/search", http_.Handle(ht.log, ht.handleSearch))
	ht.router.Get("/low-stock", http_.Handle(ht.log, ht.handleLowStock))
	ht.router.Get("/genres", http_.Handle(ht.log, ht.handleGenres))
	ht.router.Get("/{id}", http_.Handle(ht.log, ht.handleGet))

	ht.router.Group(func(r chi.Router) {
		r.Use(http_.RequireRole(domain.RoleLibrarian))
		r.Get("/export.csv", http_.Handle(ht.log, ht.handleExport))
		r.Post("/", http_.Handle(ht.log, ht.handleCreate))
		r.Put("/{id}", http_.Handle(ht.log, ht.handleUpdate))
		r.Patch("/{id}/available", http_.Handle(ht.log, ht.handleSetAvailable))
		r.Delete("/{id}", http_.Handle(ht.log, ht.handleDelete))
	})

	return ht
}

// ServeHTTP implements http.Handler. Routes are relative to the /books mount.
func (ht *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ht.router.ServeHTTP(w, r)
}

var _ http_.HTTPTransport = (*HTTPTransport)(nil)

type bookResponse struct {
	Book domain.Book `json:"book"`
}

type booksResponse struct {
	Books []domain.Book `json:"books"`
	Count int           `json:"count"`
}

type genresResponse struct {
	Genres []string `json:"genres"`
}

func (ht *HTTPTransport) handleList(w http.ResponseWriter, r *http.Request) error {
	page, err := http_.QueryInt(r, "page", 1)
	if err != nil {
		return err
	}

	perPage, err := http_.QueryInt(r, "per_page", ht.catalogSvc.Config.DefaultPerPage)
	if err != nil {
		return err
	}

	limit, err := http_.QueryInt(r, "limit", 0)
	if err != nil {
		return err
	}

	result, err := ht.catalogSvc.List(r.Context(), page, perPage, limit)
	if err != nil {
		return fmt.Errorf("list books: %w", err)
	}

	return http_.WriteJSON(w, http.StatusOK, result)
}

func (ht *HTTPTransport) handleSearch(w http.ResponseWriter, r *http.Request) error {
	limit, err := http_.QueryInt(r, "limit", 0)
	if err != nil {
		return err
	}

	q := r.URL.Query()

	books, err := ht.catalogSvc.Search(r.Context(), domain.BookQuery{
		Title:  q.Get("title"),
		Author: q.Get("author"),
		Genre:  q.Get("genre"),
		Limit:  limit,
	})
	if err != nil {
		return fmt.Errorf("search books: %w", err)
	}

	return http_.WriteJSON(w, http.StatusOK, booksResponse{Books: books, Count: len(books)})
}

func (ht *HTTPTransport) handleLowStock(w http.ResponseWriter, r *http.Request) error {
	books, err := ht.catalogSvc.ListLowStock(r.Context())
	if err != nil {
		return fmt.Errorf("list low stock: %w", err)
	}

	return http_.WriteJSON(w, http.StatusOK, booksResponse{Books: books, Count: len(books)})
}

func (ht *HTTPTransport) handleGenres(w http.ResponseWriter, r *http.Request) error {
	genres, err := ht.catalogSvc.Genres(r.Context())
	if err != nil {
		return fmt.Errorf("list genres: %w", err)
	}

	return http_.WriteJSON(w, http.StatusOK, genresResponse{Genres: genres})
}

func (ht *HTTPTransport) handleGet(w http.ResponseWriter, r *http.Request) error {
	id, err := http_.PathID(r, "id")
	if err != nil {
		return err
	}

	b, err := ht.catalogSvc.Get(r.Context(), id)
	if err != nil {
		return fmt.Errorf("get book: %w", err)
	}

	return http_.WriteJSON(w, http.StatusOK, bookResponse{Book: b})
}

func (ht *HTTPTransport) handleExport(w http.ResponseWriter, r *http.Request) error {
	var buf bytes.Buffer

	if _, err := ht.catalogSvc.ExportCSV(r.Context(), &buf); err != nil {
		return fmt.Errorf("export catalog: %w", err)
	}

	filename := "books_" + time.Now().UTC().Format("20060102_150405") + ".csv"

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)

	if _, err := buf.WriteTo(w); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}

	return nil
}

func (ht *HTTPTransport) handleCreate(w http.ResponseWriter, r *http.Request) error {
	var patch domain.BookPatch
	if err := http_.DecodeJSON(w, r, &patch); err != nil {
		return err
	}

	b, err := ht.catalogSvc.Create(r.Context(), patch)
	if err != nil {
		return fmt.Errorf("create book: %w", err)
	}

	return http_.WriteJSON(w, http.StatusCreated, bookResponse{Book: b})
}

func (ht *HTTPTransport) handleUpdate(w http.ResponseWriter, r *http.Request) error {
	id, err := http_.PathID(r, "id")
	if err != nil {
		return err
	}

	var patch domain.BookPatch
	if err := http_.DecodeJSON(w, r, &patch); err != nil {
		return err
	}

	b, err := ht.catalogSvc.Update(r.Context(), id, patch)
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}

	return http_.WriteJSON(w, http.StatusOK, bookResponse{Book: b})
}

type availableRequest struct {
	AvailableCopies *int `json:"available_copies"`
}

func (ht *HTTPTransport) handleSetAvailable(w http.ResponseWriter, r *http.Request) error {
	id, err := http_.PathID(r, "id")
	if err != nil {
		return err
	}

	var req availableRequest
	if err := http_.DecodeJSON(w, r, &req); err != nil {
		return err
	}

	if req.AvailableCopies == nil {
		return domain.Validationf("available_copies is required")
	}

	b, err := ht.catalogSvc.SetAvailable(r.Context(), id, *req.AvailableCopies)
	if err != nil {
		return fmt.Errorf("set available copies: %w", err)
	}

	return http_.WriteJSON(w, http.StatusOK, bookResponse{Book: b})
}

func (ht *HTTPTransport) handleDelete(w http.ResponseWriter, r *http.Request) error {
	id, err := http_.PathID(r, "id")
	if err != nil {
		return err
	}

	if err := ht.catalogSvc.Delete(r.Context(), id); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}

	return http_.WriteJSON(w, http.StatusOK, http_.MessageResponse{Message: "book deleted"})
}
