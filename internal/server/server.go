// Package server exposes the application over HTTP: auth/session endpoints,
// the generation flow, gate status polling, the store, the assistant chat,
// and the annotation editor.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lumeo-ai/studio/internal/chat"
	"github.com/lumeo-ai/studio/internal/config"
	"github.com/lumeo-ai/studio/internal/generation"
	"github.com/lumeo-ai/studio/internal/session"
	"github.com/lumeo-ai/studio/internal/storage"
	"github.com/lumeo-ai/studio/internal/store"
	"github.com/lumeo-ai/studio/internal/supabase"
)

type Server struct {
	cfg      config.Config
	log      *slog.Logger
	auth     *supabase.Auth
	data     *supabase.Client
	sessions *session.Store
	flow     *generation.Flow
	store    *store.Service
	chat     *chat.Client
	uploader *storage.Uploader // nil when S3 is not configured
	router   *chi.Mux
}

func NewServer(cfg config.Config, log *slog.Logger, auth *supabase.Auth, data *supabase.Client, sessions *session.Store, flow *generation.Flow, storeSvc *store.Service, chatClient *chat.Client, uploader *storage.Uploader) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		cfg:      cfg,
		log:      log,
		auth:     auth,
		data:     data,
		sessions: sessions,
		flow:     flow,
		store:    storeSvc,
		chat:     chatClient,
		uploader: uploader,
		router:   r,
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/auth/login", s.handleLogin)
	r.Get("/notifications", s.handleNotifications)
	r.Get("/store/plans", s.handleListPlans)

	r.Group(func(protected chi.Router) {
		protected.Use(auth.Middleware)
		protected.Use(auth.RequireAuth)

		protected.Post("/auth/logout", s.handleLogout)
		protected.Get("/me", s.handleMe)
		protected.Get("/history", s.handleHistory)

		protected.Route("/generations", func(r chi.Router) {
			r.Post("/", s.handleGenerate)
			r.Delete("/files/{index}", s.handleRemoveFile)
			r.Delete("/current", s.handleClearWorkspace)
			r.Get("/current", s.handleGateStatus)
			r.Post("/current/skip", s.handleGateSkip)
			r.Post("/current/ad-ended", s.handleGateAdEnded)
			r.Post("/current/ad-failed", s.handleGateAdFailed)
			r.Post("/animate", s.handleAnimate)
		})

		protected.Route("/store", func(r chi.Router) {
			r.Post("/checkout", s.handleCheckout)
			r.Post("/coupon", s.handleCoupon)
			r.Post("/referral", s.handleReferral)
			r.Post("/coins/redeem", s.handleRedeemCoins)
		})

		protected.Post("/chat", s.handleChat)

		protected.Route("/editor", func(r chi.Router) {
			r.Post("/", s.handleEditorOpen)
			r.Delete("/", s.handleEditorClose)
			r.Post("/objects", s.handleEditorAddObject)
			r.Patch("/selection", s.handleEditorUpdateSelection)
			r.Post("/selection/front", s.handleEditorBringToFront)
			r.Delete("/selection", s.handleEditorDeleteSelection)
			r.Post("/export", s.handleEditorExport)
		})
	})

	return s
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("server shutdown error", "err", err)
		}
	}()

	s.log.Info("studio listening", "addr", s.cfg.ListenAddr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorJSON returns the uniform failure shape: a human-readable message,
// never a bare status.
func (s *Server) errorJSON(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) badRequest(w http.ResponseWriter, message string) {
	s.errorJSON(w, http.StatusBadRequest, message)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("handler error", "err", err)
	s.errorJSON(w, http.StatusInternalServerError, "internal error")
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
