package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/lumeo-ai/studio/internal/models"
	"github.com/lumeo-ai/studio/internal/store"
	"github.com/lumeo-ai/studio/internal/supabase"
)

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"plans":     store.Plans,
		"coin_goal": store.CoinGoal,
	})
}

// handleCheckout hands back the hosted checkout URL; no payment state is
// kept here. The profile refresh after the webhook lands picks up the new
// plan.
func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	user := supabase.UserFromContext(r.Context())

	var req struct {
		Plan string `json:"plan"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, "invalid json")
		return
	}
	plan, ok := store.PlanByID(models.PlanTier(req.Plan))
	if !ok {
		s.badRequest(w, "unknown plan")
		return
	}
	if plan.ID == models.PlanFree {
		s.badRequest(w, "free plan needs no checkout")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"url": s.store.CheckoutURL(plan, user.ID),
	})
}

// handleCoupon forwards the code and refreshes the balance on success. The
// rejection reason from the backend is surfaced verbatim.
func (s *Server) handleCoupon(w http.ResponseWriter, r *http.Request) {
	user := supabase.UserFromContext(r.Context())
	token := supabase.TokenFromContext(r.Context())

	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Code) == "" {
		s.badRequest(w, "code is required")
		return
	}

	if err := s.store.RedeemCoupon(r.Context(), user.ID, req.Code); err != nil {
		message := "Invalid code"
		var rejection *store.RejectionError
		if errors.As(err, &rejection) {
			message = rejection.Reason
		}
		s.errorJSON(w, http.StatusUnprocessableEntity, message)
		return
	}

	s.sessions.Refresh(r.Context(), token, user.ID)
	resp := map[string]any{"status": "redeemed"}
	if profile := s.sessions.Get(user.ID).Profile(); profile != nil {
		resp["credits"] = profile.Credits
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleReferral records attribution best-effort; the caller always gets a
// success so a broken tracker cannot block onboarding.
func (s *Server) handleReferral(w http.ResponseWriter, r *http.Request) {
	user := supabase.UserFromContext(r.Context())

	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Code) == "" {
		s.badRequest(w, "code is required")
		return
	}

	if err := s.store.TrackReferral(r.Context(), user.ID, strings.TrimSpace(req.Code)); err != nil {
		s.log.Warn("referral tracking failed", "err", err)
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRedeemCoins(w http.ResponseWriter, r *http.Request) {
	user := supabase.UserFromContext(r.Context())
	token := supabase.TokenFromContext(r.Context())

	coins := 0
	if profile := s.sessions.Get(user.ID).Profile(); profile != nil {
		coins = profile.Coins
	}

	if err := s.store.RedeemCoins(r.Context(), user.ID, coins); err != nil {
		if errors.Is(err, store.ErrNotEnoughCoins) {
			s.errorJSON(w, http.StatusUnprocessableEntity, "coin goal not reached")
			return
		}
		s.internalError(w, err)
		return
	}

	s.sessions.Refresh(r.Context(), token, user.ID)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "redeemed"})
}
