package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mkrupp/library/internal/app"
	"github.com/mkrupp/library/internal/domain"
	"github.com/mkrupp/library/internal/infra/config"
	"github.com/mkrupp/library/internal/infra/logging"
)

const svcName = "libraryadm"

var ErrUsage = errors.New("usage")

const usage = `usage: libraryadm <command> [flags]

commands:
  create-librarian -name NAME -email EMAIL -password PASSWORD
  seed-books
`

func main() {
	var (
		cfg app.Config

		configPrefix = strings.ToUpper(app.AppName)
		loggerName   = strings.ToLower(strings.Join([]string{app.AppName, svcName}, "."))
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := config.LoadDotEnv(); err != nil {
		panic(err)
	}

	if err := config.Parse(ctx, &cfg, configPrefix); err != nil {
		panic(err)
	}

	logging.Configure(ctx, cfg.Log, loggerName)

	if err := run(ctx, cfg, os.Args[1:]); err != nil {
		if errors.Is(err, ErrUsage) || errors.Is(err, flag.ErrHelp) {
			fmt.Fprint(os.Stderr, usage)
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}

		stop()
		os.Exit(2) //nolint:gocritic
	}
}

func run(ctx context.Context, cfg app.Config, args []string) (err error) {
	log := logging.GetLogger("cmd.libraryadm")

	if len(args) == 0 {
		return ErrUsage
	}

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "command failed", "command", args[0], "error", err)
		}
	}()

	var command func(context.Context, *app.App, []string) error

	switch args[0] {
	case "create-librarian":
		command = createLibrarian
	case "seed-books":
		command = seedBooks
	default:
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}

	library, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("new app: %w", err)
	}

	defer func() {
		if closeErr := library.Close(); closeErr != nil {
			log.ErrorContext(ctx, "close app failed", "error", closeErr)
		}
	}()

	return command(ctx, library, args[1:])
}

func createLibrarian(ctx context.Context, library *app.App, args []string) error {
	flags := flag.NewFlagSet("create-librarian", flag.ContinueOnError)
	name := flags.String("name", "", "display name")
	email := flags.String("email", "", "login email")
	password := flags.String("password", "", "initial password")

	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	if *name == "" || *email == "" || *password == "" {
		return fmt.Errorf("%w: -name, -email and -password are required", ErrUsage)
	}

	u, err := library.Users.CreateWithRole(ctx, *name, *email, *password, domain.RoleLibrarian)
	if err != nil {
		return fmt.Errorf("create librarian: %w", err)
	}

	fmt.Printf("created librarian %d <%s>\n", u.ID, u.Email) //nolint:forbidigo

	return nil
}

type sampleBook struct {
	title, author, isbn, genre, publisher string
	year, copies                          int
}

//nolint:gochecknoglobals
var sampleCatalog = []sampleBook{
	{"One Hundred Years of Solitude", "Gabriel Garcia Marquez", "978-0307474728", "Magical Realism", "Editorial Sudamericana", 1967, 5},
	{"1984", "George Orwell", "978-0451524935", "Dystopia", "Secker and Warburg", 1949, 3},
	{"The Little Prince", "Antoine de Saint-Exupery", "978-0156012195", "Fable", "Reynal and Hitchcock", 1943, 7},
	{"Don Quixote", "Miguel de Cervantes", "978-8424194093", "Novel", "Francisco de Robles", 1605, 4},
	{"Hopscotch", "Julio Cortazar", "978-8437604572", "Experimental Novel", "Editorial Sudamericana", 1963, 2},
	{"The Shadow of the Wind", "Carlos Ruiz Zafon", "978-8408043640", "Mystery", "Editorial Planeta", 2001, 6},
	{"The Savage Detectives", "Roberto Bolano", "978-8433920850", "Novel", "Editorial Anagrama", 1998, 3},
	{"Pedro Paramo", "Juan Rulfo", "978-0802133908", "Magical Realism", "Fondo de Cultura Economica", 1955, 4},
	{"Ficciones", "Jorge Luis Borges", "978-0802130303", "Short Stories", "Editorial Sur", 1944, 5},
	{"The Aleph", "Jorge Luis Borges", "978-8499089515", "Short Stories", "Editorial Losada", 1949, 4},
}

func seedBooks(ctx context.Context, library *app.App, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: seed-books takes no arguments", ErrUsage)
	}

	var created, skipped int

	for _, sample := range sampleCatalog {
		_, found, err := library.Catalog.Books.FindByTitleAuthor(ctx, sample.title, sample.author)
		if err != nil {
			return fmt.Errorf("find %q: %w", sample.title, err)
		}

		if found {
			skipped++

			continue
		}

		_, err = library.Catalog.Create(ctx, domain.BookPatch{
			Title:           &sample.title,
			Author:          &sample.author,
			ISBN:            &sample.isbn,
			PublicationYear: &sample.year,
			Genre:           &sample.genre,
			Publisher:       &sample.publisher,
			TotalCopies:     &sample.copies,
		})
		if err != nil {
			return fmt.Errorf("create %q: %w", sample.title, err)
		}

		created++
	}

	fmt.Printf("seeded %d books, %d already present\n", created, skipped) //nolint:forbidigo

	return nil
}
