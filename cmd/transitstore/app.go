package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"transitstore.org/internal/app"
	"transitstore.org/internal/appconf"
	"transitstore.org/internal/clock"
	"transitstore.org/internal/restapi"
	"transitstore.org/internal/webui"
)

const shutdownTimeout = 30 * time.Second

// BuildApplication creates the logger and the family stores described by cfg.
func BuildApplication(cfg appconf.Config, logOut io.Writer) (*app.Application, error) {
	logger, err := newLogger(cfg, logOut)
	if err != nil {
		return nil, err
	}

	coreApp, err := app.New(cfg, logger, clock.RealClock{})
	if err != nil {
		return nil, fmt.Errorf("failed to build application: %w", err)
	}
	return coreApp, nil
}

// CreateServer wires the HTTP surface of coreApp into a server listening on
// the configured port. The debug pages are mounted outside production.
func CreateServer(coreApp *app.Application) (*http.Server, *restapi.RestAPI) {
	api := restapi.NewRestAPI(coreApp)

	mux := http.NewServeMux()
	api.SetRoutes(mux)
	if coreApp.Config.Env != appconf.Production {
		webUI := &webui.WebUI{Application: coreApp}
		webUI.SetWebUIRoutes(mux)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", coreApp.Config.Port),
		Handler:      api.Handler(mux),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(coreApp.Logger.Handler(), slog.LevelError),
	}
	return srv, api
}

// Run serves until ctx is cancelled or the process receives SIGINT or
// SIGTERM, then drains in-flight requests and closes the stores.
func Run(ctx context.Context, srv *http.Server, coreApp *app.Application, api *restapi.RestAPI) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coreApp.StartCollectors()

	serveErr := make(chan error, 1)
	go func() {
		coreApp.Logger.Info("starting server", "addr", srv.Addr, "env", coreApp.Config.Env.String())
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		api.Shutdown()
		_ = coreApp.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	coreApp.Logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	api.Shutdown()
	if closeErr := coreApp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	coreApp.Logger.Info("server stopped")
	return nil
}
