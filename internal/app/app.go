// Package app wires the store, the services and their HTTP transports into
// the library server.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mkrupp/library/internal/domain"
	"github.com/mkrupp/library/internal/infra/config"
	"github.com/mkrupp/library/internal/infra/logging"
	http_ "github.com/mkrupp/library/internal/infra/transport/http"
	"github.com/mkrupp/library/internal/repo/blob"
	"github.com/mkrupp/library/internal/repo/book"
	"github.com/mkrupp/library/internal/repo/loan"
	"github.com/mkrupp/library/internal/repo/sqldb"
	"github.com/mkrupp/library/internal/repo/user"
	"github.com/mkrupp/library/internal/svc/authsvc"
	"github.com/mkrupp/library/internal/svc/catalogsvc"
	"github.com/mkrupp/library/internal/svc/coversvc"
	"github.com/mkrupp/library/internal/svc/loansvc"
	"github.com/mkrupp/library/internal/svc/usersvc"
)

const (
	AppName       = "library"
	healthTimeout = 2 * time.Second
)

// Config is the complete configuration of the library server.
type Config struct {
	config.EnvConfig

	Log     logging.LoggerConfig                `envPrefix:"LOG_"`
	HTTP    http_.HTTPTransportConfig           `envPrefix:"HTTP_"`
	DB      sqldb.Config                        `envPrefix:"DB_"`
	Auth    authsvc.AuthConfig                  `envPrefix:"AUTH_"`
	User    usersvc.UserConfig                  `envPrefix:"USER_"`
	Catalog catalogsvc.CatalogConfig            `envPrefix:"CATALOG_"`
	Loan    loansvc.LoanConfig                  `envPrefix:"LOAN_"`
	Cover   coversvc.CoverConfig                `envPrefix:"COVER_"`
	Blob    blob.FileSystemBlobRepositoryConfig `envPrefix:"BLOB_"`
}

// App holds the opened store and the services built on it.
type App struct {
	Config Config

	DB      *sqldb.DB
	Auth    *authsvc.AuthService
	Users   *usersvc.UserService
	Catalog *catalogsvc.CatalogService
	Loans   *loansvc.LoanService
	Covers  *coversvc.BlobCoverService

	log logging.Logger
}

// New opens the store and builds every service. The caller must Close the
// returned App.
func New(ctx context.Context, cfg Config) (app *App, err error) {
	log := logging.GetLogger("app")

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "app init failed", "error", err)
		}
	}()

	db, err := sqldb.Open(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	app, err = newWithDB(ctx, cfg, db)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	return app, nil
}

func newWithDB(ctx context.Context, cfg Config, db *sqldb.DB) (*App, error) {
	users := user.NewSQLUserRepository(db)

	authSvc, err := authsvc.NewAuthService(users, cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("new auth service: %w", err)
	}

	catalogSvc := catalogsvc.NewCatalogService(book.NewSQLBookRepository(db), cfg.Catalog)

	coverSvc, err := coversvc.NewCoverService(ctx, blob.FileSystemBlobRepositoryFactory(cfg.Blob), catalogSvc, cfg.Cover)
	if err != nil {
		return nil, fmt.Errorf("new cover service: %w", err)
	}

	catalogSvc.OnDelete(coverSvc.DeleteForBook)

	return &App{
		Config:  cfg,
		DB:      db,
		Auth:    authSvc,
		Users:   usersvc.NewUserService(users, authSvc, cfg.User),
		Catalog: catalogSvc,
		Loans:   loansvc.NewLoanService(loan.NewSQLLoanRepository(db), cfg.Loan),
		Covers:  coverSvc,
		log:     logging.GetLogger("app"),
	}, nil
}

// Handler returns the complete HTTP API including the tracing, logging and
// panic recovery middlewares.
func (app *App) Handler() http.Handler {
	return http_.Wrap(app.Router(), logging.GetLogger("app.http"))
}

// Router returns the HTTP API without the outer middlewares that
// http_.ListenAndServe adds itself.
func (app *App) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.CleanPath, middleware.StripSlashes)

	router.NotFound(http_.Handle(app.log, func(http.ResponseWriter, *http.Request) error {
		return domain.ErrNotFound.With("route not found")
	}))
	router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		_ = http_.WriteJSON(w, http.StatusMethodNotAllowed, http_.ErrorResponse{Error: "method not allowed"})
	})

	router.Get("/health", app.handleHealth)
	router.Mount("/auth", authsvc.NewHTTPTransport(app.Auth, app.Users))
	router.Mount("/users", usersvc.NewHTTPTransport(app.Users, app.Auth))
	router.Mount("/books", catalogsvc.NewHTTPTransport(app.Catalog, app.Auth))
	router.Mount("/loans", loansvc.NewHTTPTransport(app.Loans, app.Auth))
	router.Mount("/covers", coversvc.NewHTTPTransport(app.Covers, app.Auth, app.Config.Cover))

	return router
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

func (app *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := app.DB.Ping(ctx); err != nil {
		app.log.WarnContext(ctx, "health check failed", "error", err)
		_ = http_.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Database: "disconnected"})

		return
	}

	_ = http_.WriteJSON(w, http.StatusOK, healthResponse{Status: "healthy", Database: "connected"})
}

// Close releases the store.
func (app *App) Close() error {
	if app == nil || app.DB == nil {
		return nil
	}

	if err := app.DB.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}

	return nil
}
