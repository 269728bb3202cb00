package usersvc

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mkrupp/library/internal/domain"
	"github.com/mkrupp/library/internal/infra/logging"
	http_ "github.com/mkrupp/library/internal/infra/transport/http"
)

// HTTPTransport serves the /users endpoints.
type HTTPTransport struct {
	userSvc *UserService
	log     logging.Logger
	router  chi.Router
}

// NewHTTPTransport creates the /users router. Every route requires a token
// checked by validator.
func NewHTTPTransport(userSvc *UserService, validator http_.TokenValidator) *HTTPTransport {
	ht := &HTTPTransport{
		userSvc: userSvc,
		log:     logging.GetLogger("svc.usersvc.http_transport"),
		router:  chi.NewRouter(),
	}

	ht.router.Use(http_.Authenticating(validator, ht.log))
	ht.router.Get("/me", http_.Handle(ht.log, ht.handleMe))
	ht.router.Get("/{id}", http_.Handle(ht.log, ht.handleGet))

	ht.router.Group(func(r chi.Router) {
		r.Use(http_.RequireRole(domain.RoleLibrarian))
		r.Post("/", http_.Handle(ht.log, ht.handleCreate))
		r.Get("/", http_.Handle(ht.log, ht.handleList))
		r.Put("/{id}", http_.Handle(ht.log, ht.handleUpdate))
		r.Patch("/{id}/active", http_.Handle(ht.log, ht.handleSetActive))
		r.Delete("/{id}", http_.Handle(ht.log, ht.handleDelete))
	})

	return ht
}

// ServeHTTP implements http.Handler. Routes are relative to the /users mount.
func (ht *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ht.router.ServeHTTP(w, r)
}

var _ http_.HTTPTransport = (*HTTPTransport)(nil)

type createRequest struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
}

type activeRequest struct {
	Active *bool `json:"active"`
}

type userResponse struct {
	User domain.User `json:"user"`
}

type usersResponse struct {
	Users []domain.User `json:"users"`
}

func (ht *HTTPTransport) handleCreate(w http.ResponseWriter, r *http.Request) error {
	var req createRequest
	if err := http_.DecodeJSON(w, r, &req); err != nil {
		return err
	}

	role := domain.RoleReader
	if req.Role != "" {
		parsed, err := domain.ParseRole(string(req.Role))
		if err != nil {
			return err
		}

		role = parsed
	}

	u, err := ht.userSvc.CreateWithRole(r.Context(), req.Name, req.Email, req.Password, role)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	return http_.WriteJSON(w, http.StatusCreated, userResponse{User: u})
}

func (ht *HTTPTransport) handleList(w http.ResponseWriter, r *http.Request) error {
	users, err := ht.userSvc.List(r.Context())
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	return http_.WriteJSON(w, http.StatusOK, usersResponse{Users: users})
}

func (ht *HTTPTransport) handleMe(w http.ResponseWriter, r *http.Request) error {
	identity, err := http_.Identity(r)
	if err != nil {
		return err
	}

	u, err := ht.userSvc.Get(r.Context(), identity.UserID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	return http_.WriteJSON(w, http.StatusOK, userResponse{User: u})
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

	if !identity.CanAccessUser(id) {
		return domain.ErrRoleNotAllowed
	}

	u, err := ht.userSvc.Get(r.Context(), id)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	return http_.WriteJSON(w, http.StatusOK, userResponse{User: u})
}

func (ht *HTTPTransport) handleUpdate(w http.ResponseWriter, r *http.Request) error {
	id, err := http_.PathID(r, "id")
	if err != nil {
		return err
	}

	var patch domain.UserPatch
	if err := http_.DecodeJSON(w, r, &patch); err != nil {
		return err
	}

	if patch.Role != nil {
		role, err := domain.ParseRole(string(*patch.Role))
		if err != nil {
			return err
		}

		patch.Role = &role
	}

	u, err := ht.userSvc.Update(r.Context(), id, patch)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	return http_.WriteJSON(w, http.StatusOK, userResponse{User: u})
}

func (ht *HTTPTransport) handleSetActive(w http.ResponseWriter, r *http.Request) error {
	id, err := http_.PathID(r, "id")
	if err != nil {
		return err
	}

	var req activeRequest
	if err := http_.DecodeJSON(w, r, &req); err != nil {
		return err
	}

	if req.Active == nil {
		return domain.Validationf("active is required")
	}

	u, err := ht.userSvc.SetActive(r.Context(), id, *req.Active)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}

	return http_.WriteJSON(w, http.StatusOK, userResponse{User: u})
}

func (ht *HTTPTransport) handleDelete(w http.ResponseWriter, r *http.Request) error {
	id, err := http_.PathID(r, "id")
	if err != nil {
		return err
	}

	if err := ht.userSvc.Delete(r.Context(), id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	return http_.WriteJSON(w, http.StatusOK, http_.MessageResponse{Message: "user deleted"})
}
