package loansvc

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mkrupp/library/internal/domain"
	"github.com/mkrupp/library/internal/infra/logging"
	http_ "github.com/mkrupp/library/internal/infra/transport/http"
)

// HTTPTransport serves the /loans endpoints.
type HTTPTransport struct {
	loanSvc *LoanService
	log     logging.Logger
	router  chi.Router
}

// NewHTTPTransport creates the /loans router.
func NewHTTPTransport(loanSvc *LoanService, validator http_.TokenValidator) *HTTPTransport {
	ht := &HTTPTransport{
		loanSvc: loanSvc,
		log:     logging.GetLogger("svc.loansvc.http_transport"),
		router:  chi.NewRouter(),
	}

	ht.router.Use(http_.Authenticating(validator, ht.log))
	ht.router.Get("/overdue", http_.Handle(ht.log, ht.handleOverdue))
	ht.router.Get("/mine", http_.Handle(ht.log, ht.handleMine))
	ht.router.Get("/user/{id}", http_.Handle(ht.log, ht.handleForUser))
	ht.router.Get("/{id}", http_.Handle(ht.log, ht.handleGet))

	ht.router.Group(func(r chi.Router) {
		r.Use(http_.RequireRole(domain.RoleLibrarian))
		r.Post("/", http_.Handle(ht.log, ht.handleCheckout))
		r.Put("/{id}/return", http_.Handle(ht.log, ht.handleReturn))
		r.Get("/", http_.Handle(ht.log, ht.handleListAll))
		r.Get("/active", http_.Handle(ht.log, ht.handleActive))
	})

	return ht
}

// ServeHTTP implements http.Handler. Routes are relative to the /loans mount.
func (ht *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ht.router.ServeHTTP(w, r)
}

var _ http_.HTTPTransport = (*HTTPTransport)(nil)

type checkoutRequest struct {
	BookID int64 `json:"book_id"`
	UserID int64 `json:"user_id"`
	Days   int   `json:"days"`
}

type loanResponse struct {
	Loan domain.Loan `json:"loan"`
}

type loansResponse struct {
	Loans []domain.Loan `json:"loans"`
	Count int           `json:"count"`
}

func writeLoans(w http.ResponseWriter, loans []domain.Loan) error {
	return http_.WriteJSON(w, http.StatusOK, loansResponse{Loans: loans, Count: len(loans)})
}

func (ht *HTTPTransport) handleCheckout(w http.ResponseWriter, r *http.Request) error {
	var req checkoutRequest
	if err := http_.DecodeJSON(w, r, &req); err != nil {
		return err
	}

	l, err := ht.loanSvc.Checkout(r.Context(), req.BookID, req.UserID, req.Days)
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}

	return http_.WriteJSON(w, http.StatusCreated, loanResponse{Loan: l})
}

func (ht *HTTPTransport) handleReturn(w http.ResponseWriter, r *http.Request) error {
	id, err := http_.PathID(r, "id")
	if err != nil {
		return err
	}

	l, err := ht.loanSvc.Return(r.Context(), id)
	if err != nil {
		return fmt.Errorf("return: %w", err)
	}

	return http_.WriteJSON(w, http.StatusOK, loanResponse{Loan: l})
}

func (ht *HTTPTransport) handleListAll(w http.ResponseWriter, r *http.Request) error {
	loans, err := ht.loanSvc.ListAll(r.Context())
	if err != nil {
		return fmt.Errorf("list loans: %w", err)
	}

	return writeLoans(w, loans)
}

func (ht *HTTPTransport) handleActive(w http.ResponseWriter, r *http.Request) error {
	loans, err := ht.loanSvc.ListActive(r.Context())
	if err != nil {
		return fmt.Errorf("list active loans: %w", err)
	}

	return writeLoans(w, loans)
}

func (ht *HTTPTransport) handleOverdue(w http.ResponseWriter, r *http.Request) error {
	loans, err := ht.loanSvc.ListOverdue(r.Context())
	if err != nil {
		return fmt.Errorf("list overdue loans: %w", err)
	}

	return writeLoans(w, loans)
}

func (ht *HTTPTransport) handleMine(w http.ResponseWriter, r *http.Request) error {
	identity, err := http_.Identity(r)
	if err != nil {
		return err
	}

	loans, err := ht.loanSvc.ListForUser(r.Context(), identity.UserID)
	if err != nil {
		return fmt.Errorf("list own loans: %w", err)
	}

	return writeLoans(w, loans)
}

func (ht *HTTPTransport) handleForUser(w http.ResponseWriter, r *http.Request) error {
	identity, err := http_.Identity(r)
	if err != nil {
		return err
	}

	userID, err := http_.PathID(r, "id")
	if err != nil {
		return err
	}

	if !identity.CanAccessUser(userID) {
		return domain.ErrRoleNotAllowed
	}

	loans, err := ht.loanSvc.ListForUser(r.Context(), userID)
	if err != nil {
		return fmt.Errorf("list user loans: %w", err)
	}

	return writeLoans(w, loans)
}

func (ht *HTTPTransport) handleGet(w http.ResponseWriter, r *http.Request) error {
	identity, err := http_.Identity(r)
	if err != nil {
		return err
	}

	id, err := http_.PathID(r, "id")
	if err != nil {
		return err
	}

	l, err := ht.loanSvc.Get(r.Context(), id)
	if err != nil {
		return fmt.Errorf("get loan: %w", err)
	}

	if !identity.CanAccessUser(l.UserID) {
		return domain.ErrRoleNotAllowed
	}

	return http_.WriteJSON(w, http.StatusOK, loanResponse{Loan: l})
}
