package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tycoon/internal/clock"
	"tycoon/internal/game"
	"tycoon/internal/reset"
	"tycoon/internal/scheduler"
	"tycoon/internal/sim"
	"tycoon/internal/store"
	"tycoon/internal/worldevent"
)

// Ticker advances the game by one tick.
type Ticker interface {
	AdvanceOneTick(ctx context.Context) (scheduler.Result, error)
}

type Deps struct {
	Engine  *sim.Engine
	Clock   *clock.Service
	Ticker  Ticker
	Events  *worldevent.Service
	Reset   *reset.Service
	Metrics http.Handler
	// AdminToken guards the admin routes when set.
	AdminToken string
}

type Server struct {
	log        *slog.Logger
	engine     *sim.Engine
	store      *store.Store
	clock      *clock.Service
	ticker     Ticker
	events     *worldevent.Service
	reset      *reset.Service
	metrics    http.Handler
	adminToken string
	mux        *chi.Mux
}

func New(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		log:        logger,
		engine:     deps.Engine,
		store:      deps.Engine.Store(),
		clock:      deps.Clock,
		ticker:     deps.Ticker,
		events:     deps.Events,
		reset:      deps.Reset,
		metrics:    deps.Metrics,
		adminToken: deps.AdminToken,
		mux:        chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.adminMiddleware)
			r.Get("/clock", s.handleClock)
			r.Post("/clock/start", s.handleClockStart)
			r.Post("/clock/stop", s.handleClockStop)
			r.Post("/clock/speed", s.handleClockSpeed)
			r.Post("/ticks", s.handleTick)

			r.Get("/events", s.handleEventsList)
			r.Post("/events", s.handleEventApply)
			r.Post("/events/{id}/reverse", s.handleEventReverse)
			r.Post("/game/reset", s.handleGameReset)
		})

		r.Post("/users", s.handleCreateUser)
		r.Post("/companies", s.handleCreateCompany)
		r.Route("/companies/{id}", func(r chi.Router) {
			r.Use(s.idempotencyMiddleware)
			r.With(s.adminMiddleware).Post("/reset", s.handleCompanyReset)
			r.Get("/", s.handleCompanySummary)
			r.Get("/sales", s.handleCompanySales)
			r.Get("/employees", s.handleCompanyEmployees)
			r.Get("/notifications", s.handleCompanyNotifications)

			r.Post("/purchases/quote", s.handleQuotePurchase)
			r.Post("/purchases", s.handleCreatePurchase)
			r.Post("/sales/{sale_id}/confirm", s.handleConfirmSale)

			r.Post("/employees/{employee_id}/hire", s.handleHire)
			r.Post("/employees/{employee_id}/fire", s.handleFire)
			r.Post("/employees/{employee_id}/promote", s.handlePromote)
			r.Post("/employees/{employee_id}/assign", s.handleAssign)

			r.Post("/machines", s.handleBuyMachine)
			r.Post("/machines/{machine_id}/activate", s.handleMachineActive(true))
			r.Post("/machines/{machine_id}/deactivate", s.handleMachineActive(false))
			r.Post("/machines/{machine_id}/production", s.handleStartProduction)
			r.Post("/machines/{machine_id}/maintenance", s.handleStartMaintenance)

			r.Post("/research", s.handleStartResearch)
			r.Post("/ads", s.handleBuyAd)
			r.Post("/loans", s.handleTakeLoan)
		})
	})
}

func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if token != s.adminToken {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// idempotencyMiddleware claims the Idempotency-Key of a mutating request.
// Replays are rejected with 409; a key whose request failed is released so
// the client can retry with it.
func (s *Server) idempotencyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if key == "" || r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}
		claim := "request:" + chi.URLParam(r, "id") + ":" + key
		err := s.store.Update(r.Context(), func(st *store.State) error {
			return st.Claim(claim, st.Clock.CurrentTime)
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if ww.Status() >= http.StatusBadRequest {
			if err := s.store.Update(context.WithoutCancel(r.Context()), func(st *store.State) error {
				delete(st.Claims, claim)
				return nil
			}); err != nil {
				s.log.Error("release idempotency key", "key", key, "err", err)
			}
		}
	})
}

func writeDomainError(w http.ResponseWriter, err error) {
	var ve *game.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": ve.Error(), "field": ve.Field})
	case errors.Is(err, game.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrLockTimeout):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrDuplicateIdempotency), errors.Is(err, clock.ErrClockMoved):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
