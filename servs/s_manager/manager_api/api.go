// Package manager_api exposes the supervisor over HTTP for local tooling:
// a fleet status endpoint and per-service start/stop/restart actions.
package manager_api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/GregAscolab/python-microservice-test/codec"
)

// Controller is the slice of the supervisor the HTTP surface drives.
type Controller interface {
	Snapshot() codec.Record
	StartService(name string) error
	StopService(name string) error
	RestartService(name string) error
}

// API serves the control endpoints.
type API struct {
	addr string
	ctrl Controller
	log  zerolog.Logger

	ln  net.Listener
	srv *http.Server
}

// New builds the API on addr (":0" picks a free port).
func New(addr string, ctrl Controller, log zerolog.Logger) *API {
	return &API{addr: addr, ctrl: ctrl, log: log}
}

// Addr returns the bound address once Start succeeded.
func (a *API) Addr() string {
	if a.ln == nil {
		return a.addr
	}
	return a.ln.Addr().String()
}

// Start binds the listener and serves in the background.
func (a *API) Start() error {
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return err
	}
	a.ln = ln
	a.srv = &http.Server{
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := a.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			a.log.Error().Err(err).Msg("http api stopped")
		}
	}()
	return nil
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (a *API) Stop() {
	if a.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = a.srv.Shutdown(ctx)
}

func (a *API) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/api/status", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, a.ctrl.Snapshot())
	})

	r.Post("/api/services/{name}/{action}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		var err error
		switch chi.URLParam(req, "action") {
		case "start":
			err = a.ctrl.StartService(name)
		case "stop":
			err = a.ctrl.StopService(name)
		case "restart":
			err = a.ctrl.RestartService(name)
		default:
			writeJSON(w, http.StatusNotFound, codec.Record{"status": "error", "message": "unknown action"})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusConflict, codec.Record{"status": "error", "message": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, codec.Record{"status": "ok"})
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
