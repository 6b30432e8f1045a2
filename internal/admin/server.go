// Package admin exposes the local management HTTP API: everything an
// operator can do to the pinned message without touching the bot chat.
package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"pinbot/internal/pin"
	"pinbot/internal/storage"
	"pinbot/pkg/logx"
)

// PinService is the slice of the pin service the API needs.
type PinService interface {
	Create(ctx context.Context, p pin.CreateParams) (storage.PinnedMessage, *pin.Report, error)
	Activate(ctx context.Context, id int64, broadcast bool) (storage.PinnedMessage, *pin.Report, error)
	Broadcast(ctx context.Context, id int64) (storage.PinnedMessage, pin.Report, error)
	DeactivateActive(ctx context.Context) (*storage.PinnedMessage, error)
	MassUnpin(ctx context.Context) (pin.UnpinReport, error)
	Active(ctx context.Context) (*storage.PinnedMessage, error)
	Delete(ctx context.Context, id int64) error
}

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type Server struct {
	cfg Config
	svc PinService
	log logx.Logger

	srv *http.Server
}

func New(cfg Config, svc PinService, log logx.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8421"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{cfg: cfg, svc: svc, log: log}
	s.srv = &http.Server{
		Addr:    cfg.Addr,
		Handler: s.Handler(),
		// WriteTimeout stays 0 unless configured: a broadcast holds the
		// request open for the whole fan-out.
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler builds the route table. Exposed separately for tests.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/pinned", s.handleCreate).Methods(http.MethodPost)
	api.HandleFunc("/pinned/active", s.handleActive).Methods(http.MethodGet)
	api.HandleFunc("/pinned/deactivate", s.handleDeactivate).Methods(http.MethodPost)
	api.HandleFunc("/pinned/unpin", s.handleMassUnpin).Methods(http.MethodPost)
	api.HandleFunc("/pinned/{id:[0-9]+}/activate", s.handleActivate).Methods(http.MethodPost)
	api.HandleFunc("/pinned/{id:[0-9]+}/broadcast", s.handleBroadcast).Methods(http.MethodPost)
	api.HandleFunc("/pinned/{id:[0-9]+}", s.handleDelete).Methods(http.MethodDelete)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	return r
}

// Start serves until ListenAndServe fails or Stop is called.
func (s *Server) Start() {
	go func() {
		s.log.Info("admin api listening", logx.String("addr", s.cfg.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("admin api stopped", logx.Err(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
