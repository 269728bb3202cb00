package authsvc

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mkrupp/library/internal/domain"
	"github.com/mkrupp/library/internal/infra/logging"
	http_ "github.com/mkrupp/library/internal/infra/transport/http"
)

// Registrar creates self-registered READER accounts.
type Registrar interface {
	Register(ctx context.Context, name, email, password string) (domain.User, error)
}

// HTTPTransport serves the /auth endpoints.
type HTTPTransport struct {
	authSvc   *AuthService
	registrar Registrar
	log       logging.Logger
	router    chi.Router
}

// NewHTTPTransport creates the /auth router. Registration is delegated to
// registrar.
func NewHTTPTransport(authSvc *AuthService, registrar Registrar) *HTTPTransport {
	ht := &HTTPTransport{
		authSvc:   authSvc,
		registrar: registrar,
		log:       logging.GetLogger("svc.authsvc.http_transport"),
		router:    chi.NewRouter(),
	}

	ht.router.Post("/login", http_.Handle(ht.log, ht.handleLogin))
	ht.router.Post("/register", http_.Handle(ht.log, ht.handleRegister))
	ht.router.Group(func(r chi.Router) {
		r.Use(http_.Authenticating(authSvc, ht.log))
		r.Get("/me", http_.Handle(ht.log, ht.handleMe))
		r.Post("/validate", http_.Handle(ht.log, ht.handleValidate))
	})

	return ht
}

// ServeHTTP implements http.Handler. Routes are relative to the /auth mount:
// - POST /login: Login and get a session token
// - POST /register: Register a READER account
// - GET /me: Current user
// - POST /validate: Decode the bearer token.
func (ht *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ht.router.ServeHTTP(w, r)
}

var _ http_.HTTPTransport = (*HTTPTransport)(nil)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	User domain.User `json:"user"`
}

type identityResponse struct {
	Valid    bool            `json:"valid"`
	Identity domain.Identity `json:"identity"`
}

func (ht *HTTPTransport) handleLogin(w http.ResponseWriter, r *http.Request) error {
	var req loginRequest
	if err := http_.DecodeJSON(w, r, &req); err != nil {
		return err
	}

	resp, err := ht.authSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	return http_.WriteJSON(w, http.StatusOK, resp)
}

// handleRegister ignores any role in the payload; self-registration always
// yields a READER.
func (ht *HTTPTransport) handleRegister(w http.ResponseWriter, r *http.Request) error {
	var req registerRequest
	if err := http_.DecodeJSON(w, r, &req); err != nil {
		return err
	}

	user, err := ht.registrar.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}

	return http_.WriteJSON(w, http.StatusCreated, userResponse{User: user})
}

func (ht *HTTPTransport) handleMe(w http.ResponseWriter, r *http.Request) error {
	identity, err := http_.Identity(r)
	if err != nil {
		return err
	}

	user, err := ht.authSvc.Me(r.Context(), identity)
	if err != nil {
		return fmt.Errorf("me: %w", err)
	}

	return http_.WriteJSON(w, http.StatusOK, userResponse{User: user})
}

func (ht *HTTPTransport) handleValidate(w http.ResponseWriter, r *http.Request) error {
	identity, err := http_.Identity(r)
	if err != nil {
		return err
	}

	return http_.WriteJSON(w, http.StatusOK, identityResponse{Valid: true, Identity: identity})
}
