package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mkrupp/library/internal/app"
	"github.com/mkrupp/library/internal/infra/config"
	"github.com/mkrupp/library/internal/infra/logging"
	"github.com/mkrupp/library/internal/infra/transport/http"
)

const svcName = "librarysvc"

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

	if err := run(ctx, cfg); err != nil {
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg app.Config) (err error) {
	log := logging.GetLogger("cmd.librarysvc")

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "error", "err", err)
		} else {
			log.InfoContext(ctx, "shutdown")
		}
	}()

	library, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("new app: %w", err)
	}

	defer func() {
		if closeErr := library.Close(); closeErr != nil {
			log.ErrorContext(ctx, "close app failed", "error", closeErr)
		}
	}()

	if err := http.ListenAndServe(ctx, library.Router(), cfg.HTTP); err != nil {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}
