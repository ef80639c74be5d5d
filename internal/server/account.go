package server

import (
	"net/http"
	"strconv"

	"github.com/lumeo-ai/studio/internal/models"
	"github.com/lumeo-ai/studio/internal/supabase"
)

// handleLogin returns the provider redirect URL; the browser completes the
// OAuth dance against Supabase directly.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	if provider == "" {
		provider = "google"
	}
	redirectTo := r.URL.Query().Get("redirect_to")
	s.writeJSON(w, http.StatusOK, map[string]string{
		"url": s.auth.OAuthURL(provider, redirectTo),
	})
}

// handleLogout revokes the token remotely and drops the in-memory session.
// Revocation failure still drops the session; local state must not outlive
// the sign-out intent.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	user := supabase.UserFromContext(r.Context())
	token := supabase.TokenFromContext(r.Context())

	if err := s.auth.SignOut(r.Context(), token); err != nil {
		s.log.Warn("remote sign-out failed", "err", err)
	}
	s.sessions.Drop(user.ID)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

// handleMe refreshes and returns the economy snapshot together with the
// ephemeral session state.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user := supabase.UserFromContext(r.Context())
	token := supabase.TokenFromContext(r.Context())

	s.sessions.Refresh(r.Context(), token, user.ID)
	sess := s.sessions.Get(user.ID)

	resp := map[string]any{
		"user": map[string]string{
			"id":     user.ID,
			"email":  user.Email,
			"name":   user.DisplayName(),
			"avatar": user.AvatarURL(),
		},
		"mode":         sess.Mode(),
		"aspect_ratio": sess.AspectRatio(),
		"files":        len(sess.Files()),
		"result_url":   sess.Result(),
	}
	if profile := sess.Profile(); profile != nil {
		resp["profile"] = profile
		resp["referral_link"] = s.store.ReferralLink(profile.ReferralCode)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	user := supabase.UserFromContext(r.Context())
	token := supabase.TokenFromContext(r.Context())

	limit := s.cfg.HistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit < 8 {
		limit = 8
	}
	if limit > 20 {
		limit = 20
	}

	history, err := s.data.FetchHistory(r.Context(), token, user.ID, limit)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if history == nil {
		history = []models.Generation{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": history})
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	items, err := s.data.FetchNotifications(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	if items == nil {
		items = []models.Notification{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
