package catalogsvc_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/library/internal/domain"
	"github.com/mkrupp/library/internal/repo/book"
	"github.com/mkrupp/library/internal/repo/loan"
	"github.com/mkrupp/library/internal/repo/sqldb"
	"github.com/mkrupp/library/internal/repo/sqldb/sqldbtest"
	"github.com/mkrupp/library/internal/repo/user"
	"github.com/mkrupp/library/internal/svc/catalogsvc"
)

func testConfig() catalogsvc.CatalogConfig {
	return catalogsvc.CatalogConfig{
		LowStockThreshold:  2,
		SearchDefaultLimit: 200,
		SearchMaxLimit:     500,
		DefaultPerPage:     100,
		MaxPerPage:         500,
	}
}

func setupTestService(t *testing.T, cfg catalogsvc.CatalogConfig) (*catalogsvc.CatalogService, *sqldb.DB) {
	t.Helper()

	db := sqldbtest.Open(t)

	return catalogsvc.NewCatalogService(book.NewSQLBookRepository(db), cfg), db
}

func ptr[T any](v T) *T {
	return &v
}

func newBook(title, author string, copies int) domain.BookPatch {
	return domain.BookPatch{Title: ptr(title), Author: ptr(author), TotalCopies: ptr(copies)}
}

func checkout(t *testing.T, db *sqldb.DB, bookID int64, n int) []domain.Loan {
	t.Helper()

	ctx := context.Background()
	now := time.Now()

	reader, err := user.NewSQLUserRepository(db).Create(ctx, domain.User{
		Name: "Reader", Email: fmt.Sprintf("reader%d-%d@example.org", bookID, now.UnixNano()),
		PasswordHash: "x", Role: domain.RoleReader, Active: true,
	})
	require.NoError(t, err)

	loans := loan.NewSQLLoanRepository(db)
	out := make([]domain.Loan, 0, n)

	for range n {
		l, err := loans.Checkout(ctx, domain.Loan{BookID: bookID, UserID: reader.ID, LoanedAt: now, DueAt: now.Add(time.Hour)})
		require.NoError(t, err)

		out = append(out, l)
	}

	return out
}

func TestCatalogService_Create(t *testing.T) {
	t.Parallel()

	svc, _ := setupTestService(t, testConfig())
	ctx := context.Background()

	tests := []struct {
		name      string
		patch     domain.BookPatch
		wantTotal int
		wantErr   error
	}{
		{name: "defaults to one copy", patch: domain.BookPatch{Title: ptr("Dune"), Author: ptr("Herbert")}, wantTotal: 1},
		{name: "explicit copies", patch: newBook("Emma", "Austen", 4), wantTotal: 4},
		{name: "zero copies", patch: newBook("Ghost", "Nobody", 0), wantTotal: 0},
		{name: "blank title", patch: newBook("  ", "Austen", 1), wantErr: domain.ErrValidation},
		{name: "missing author", patch: domain.BookPatch{Title: ptr("Orphan")}, wantErr: domain.ErrValidation},
		{name: "negative copies", patch: newBook("Neg", "Author", -1), wantErr: domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			created, err := svc.Create(ctx, tt.patch)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, created.TotalCopies)
			assert.Equal(t, created.TotalCopies, created.AvailableCopies)
		})
	}
}

func TestCatalogService_UpdateShrinkBelowLoans(t *testing.T) {
	t.Parallel()

	svc, db := setupTestService(t, testConfig())
	ctx := context.Background()

	b, err := svc.Create(ctx, newBook("Dune", "Frank Herbert", 5))
	require.NoError(t, err)

	checkout(t, db, b.ID, 3)

	_, err = svc.Update(ctx, b.ID, domain.BookPatch{TotalCopies: ptr(2)})
	require.ErrorIs(t, err, domain.ErrInsufficientCopies)
	require.ErrorIs(t, err, domain.ErrConflict)

	unchanged, err := svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, unchanged.TotalCopies)
	assert.Equal(t, 2, unchanged.AvailableCopies)

	updated, err := svc.Update(ctx, b.ID, domain.BookPatch{TotalCopies: ptr(3), Genre: ptr("Sci-Fi")})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.TotalCopies)
	assert.Equal(t, 0, updated.AvailableCopies)
	assert.Equal(t, "Sci-Fi", updated.Genre)
	assert.Equal(t, "Dune", updated.Title)

	grown, err := svc.Update(ctx, b.ID, domain.BookPatch{TotalCopies: ptr(10)})
	require.NoError(t, err)
	assert.Equal(t, 7, grown.AvailableCopies)

	_, err = svc.Update(ctx, 4242, domain.BookPatch{Title: ptr("x")})
	require.ErrorIs(t, err, domain.ErrBookNotFound)
}

func TestCatalogService_SetAvailable(t *testing.T) {
	t.Parallel()

	svc, db := setupTestService(t, testConfig())
	ctx := context.Background()

	b, err := svc.Create(ctx, newBook("Dune", "Frank Herbert", 3))
	require.NoError(t, err)

	loans := checkout(t, db, b.ID, 1)

	_, err = svc.SetAvailable(ctx, b.ID, -1)
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.SetAvailable(ctx, b.ID, 4)
	require.ErrorIs(t, err, domain.ErrValidation)

	updated, err := svc.SetAvailable(ctx, b.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.AvailableCopies)

	_, err = loan.NewSQLLoanRepository(db).Return(ctx, loans[0].ID, time.Now())
	require.NoError(t, err, "return after a manual correction stays within total")

	got, err := svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.AvailableCopies)

	_, err = svc.SetAvailable(ctx, 4242, 0)
	require.ErrorIs(t, err, domain.ErrBookNotFound)
}

func TestCatalogService_ConcurrentUpdatesKeepInventory(t *testing.T) {
	t.Parallel()

	svc, _ := setupTestService(t, testConfig())
	ctx := context.Background()

	b, err := svc.Create(ctx, newBook("Dune", "Frank Herbert", 5))
	require.NoError(t, err)

	var wg sync.WaitGroup

	for i := range 6 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, _ = svc.Update(ctx, b.ID, domain.BookPatch{TotalCopies: ptr(5 + i)})
		}()
	}

	wg.Wait()

	final, err := svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, final.TotalCopies, final.AvailableCopies)
}

func TestCatalogService_Delete(t *testing.T) {
	t.Parallel()

	for _, guard := range []bool{false, true} {
		t.Run(fmt.Sprintf("guard=%v", guard), func(t *testing.T) {
			t.Parallel()

			cfg := testConfig()
			cfg.GuardDelete = guard

			svc, db := setupTestService(t, cfg)
			ctx := context.Background()

			var hooked []int64

			svc.OnDelete(func(_ context.Context, id int64) error {
				hooked = append(hooked, id)

				return nil
			})

			b, err := svc.Create(ctx, newBook("Dune", "Frank Herbert", 1))
			require.NoError(t, err)

			checkout(t, db, b.ID, 1)

			err = svc.Delete(ctx, b.ID)
			if guard {
				require.ErrorIs(t, err, domain.ErrBookHasActiveLoans)
				assert.Empty(t, hooked)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, []int64{b.ID}, hooked)

			err = svc.Delete(ctx, b.ID)
			require.ErrorIs(t, err, domain.ErrBookNotFound)
		})
	}
}

func TestCatalogService_SearchAndListings(t *testing.T) {
	t.Parallel()

	svc, db := setupTestService(t, testConfig())
	ctx := context.Background()

	for _, p := range []domain.BookPatch{
		{Title: ptr("The Hobbit"), Author: ptr("J.R.R. Tolkien"), Genre: ptr("Fantasy"), TotalCopies: ptr(3)},
		{Title: ptr("The Silmarillion"), Author: ptr("J.R.R. Tolkien"), Genre: ptr("Fantasy"), TotalCopies: ptr(1)},
		{Title: ptr("Dune"), Author: ptr("Frank Herbert"), Genre: ptr("Sci-Fi"), TotalCopies: ptr(2)},
		{Title: ptr("Emma"), Author: ptr("Jane Austen"), TotalCopies: ptr(5)},
	} {
		_, err := svc.Create(ctx, p)
		require.NoError(t, err)
	}

	dune, err := svc.Search(ctx, domain.BookQuery{Title: "dune"})
	require.NoError(t, err)
	require.Len(t, dune, 1)
	checkout(t, db, dune[0].ID, 1)

	tests := []struct {
		name  string
		query domain.BookQuery
		want  []string
	}{
		{name: "title case insensitive", query: domain.BookQuery{Title: "HOBBIT"}, want: []string{"The Hobbit"}},
		{name: "author", query: domain.BookQuery{Author: "tolkien"}, want: []string{"The Hobbit", "The Silmarillion"}},
		{name: "anded fields", query: domain.BookQuery{Author: "tolkien", Title: "silm"}, want: []string{"The Silmarillion"}},
		{name: "genre", query: domain.BookQuery{Genre: "sci"}, want: []string{"Dune"}},
		{name: "no filter", query: domain.BookQuery{}, want: []string{"Dune", "Emma", "The Hobbit", "The Silmarillion"}},
		{name: "negative limit clamps to one", query: domain.BookQuery{Limit: -5}, want: []string{"Dune"}},
		{name: "limit", query: domain.BookQuery{Limit: 2}, want: []string{"Dune", "Emma"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			books, err := svc.Search(ctx, tt.query)
			require.NoError(t, err)

			titles := make([]string, 0, len(books))
			for _, b := range books {
				titles = append(titles, b.Title)
			}

			assert.Equal(t, tt.want, titles)
		})
	}

	low, err := svc.ListLowStock(ctx)
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, "Dune", low[0].Title)
	assert.Equal(t, "The Silmarillion", low[1].Title)

	genres, err := svc.Genres(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Fantasy", "Sci-Fi"}, genres)

	page, err := svc.List(ctx, 2, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Books, 1)
	assert.Equal(t, "The Silmarillion", page.Books[0].Title)

	page, err = svc.List(ctx, 0, 9999, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.PerPage)
	assert.Len(t, page.Books, 4)

	page, err = svc.List(ctx, 5, 100, 2)
	require.NoError(t, err)
	assert.Len(t, page.Books, 2)

	page, err = svc.List(ctx, math.MaxInt, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt32/3+1, page.Page)
	assert.Equal(t, 4, page.Total)
	assert.Empty(t, page.Books)
}

func TestCatalogService_ExportCSV(t *testing.T) {
	t.Parallel()

	svc, _ := setupTestService(t, testConfig())
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.BookPatch{Title: ptr(`Quoted, "Title"`), Author: ptr("Someone"), TotalCopies: ptr(2)})
	require.NoError(t, err)

	var buf bytes.Buffer

	count, err := svc.ExportCSV(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "title", records[0][1])
	assert.Equal(t, `Quoted, "Title"`, records[1][1])
	assert.Equal(t, "2", records[1][7])
}
