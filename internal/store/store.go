// Package store covers the monetization surface: the static plan catalog,
// externally hosted checkout links, coupon redemption, and referral
// attribution. The client never touches payment details; purchases are
// attributed server-side through the client reference on the checkout URL.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lumeo-ai/studio/internal/config"
	"github.com/lumeo-ai/studio/internal/models"
)

var (
	ErrCouponRejected = errors.New("coupon rejected")
	ErrNotEnoughCoins = errors.New("not enough coins")
)

// RejectionError carries the backend's human-readable reason for refusing a
// coupon, shown to the user verbatim.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string { return "coupon rejected: " + e.Reason }

func (e *RejectionError) Unwrap() error { return ErrCouponRejected }

// CoinGoal is the coin balance required to exchange for a Plus month.
const CoinGoal = 250

// Plans is the static catalog shown in the store.
var Plans = []models.Plan{
	{ID: models.PlanFree, Name: "Free", Credits: 100, Price: "R$ 0",
		Features: []string{"100 credits/month", "Watermark", "Basic support"}},
	{ID: models.PlanPlus, Name: "Plus", Credits: 500, Price: "R$ 69",
		Features: []string{"500 credits/month", "Watermark", "Chat access"}},
	{ID: models.PlanPro, Name: "PRO", Credits: 1000, Price: "R$ 99",
		Features: []string{"1000 credits/month", "Queue priority", "Early access"}},
	{ID: models.PlanAgency, Name: "Criação", Credits: 2500, Price: "R$ 199",
		Features: []string{"2500 credits/month", "No watermark", "Commercial license"}},
}

// PlanByID looks a plan up in the catalog.
func PlanByID(id models.PlanTier) (models.Plan, bool) {
	for _, p := range Plans {
		if p.ID == id {
			return p, true
		}
	}
	return models.Plan{}, false
}

// Service talks to the coupon/referral backend and builds checkout links.
type Service struct {
	apiBase      string
	checkoutBase string
	linkBase     string
	httpClient   *http.Client
	log          *slog.Logger
}

func NewService(cfg config.Config, log *slog.Logger) *Service {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		apiBase:      strings.TrimRight(cfg.GenerationAPIURL, "/"),
		checkoutBase: strings.TrimRight(cfg.CheckoutBaseURL, "/"),
		linkBase:     strings.TrimRight(cfg.ReferralLinkBase, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		log:          log,
	}
}

// CheckoutURL returns the hosted checkout page for a plan, parameterized
// with the user identity so the payment webhook can attribute the purchase.
func (s *Service) CheckoutURL(plan models.Plan, userID string) string {
	query := url.Values{}
	query.Set("plan", string(plan.ID))
	query.Set("client_reference_id", userID)
	return s.checkoutBase + "/subscribe?" + query.Encode()
}

// ReferralLink builds the shareable signup link for a referral code.
func (s *Service) ReferralLink(code string) string {
	return s.linkBase + "?ref=" + url.QueryEscape(code)
}

// RedeemCoupon submits a user/code pair. The code is upper-cased; no other
// client-side validation. On rejection the server's reason is wrapped in
// ErrCouponRejected so it can be shown verbatim.
func (s *Service) RedeemCoupon(ctx context.Context, userID, code string) error {
	payload := map[string]string{
		"user_id": userID,
		"code":    strings.ToUpper(strings.TrimSpace(code)),
	}
	if err := s.postJSON(ctx, "/redeem-coupon", payload); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.detail != "" {
			return &RejectionError{Reason: apiErr.detail}
		}
		return &RejectionError{Reason: "Invalid code"}
	}
	return nil
}

// TrackReferral records signup attribution for a referral code. The endpoint
// is idempotent; repeated calls are safe.
func (s *Service) TrackReferral(ctx context.Context, userID, referralCode string) error {
	payload := map[string]string{
		"user_id":       userID,
		"referral_code": referralCode,
	}
	if err := s.postJSON(ctx, "/track-referral", payload); err != nil {
		return fmt.Errorf("track referral: %w", err)
	}
	return nil
}

// RedeemCoins exchanges the coin goal for a Plus month. The balance check is
// a courtesy; the backend re-validates.
func (s *Service) RedeemCoins(ctx context.Context, userID string, coins int) error {
	if coins < CoinGoal {
		return ErrNotEnoughCoins
	}

	form := url.Values{}
	form.Set("user_id", userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBase+"/redeem-coins", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("redeem coins: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		if s.log != nil {
			s.log.Error("coin redemption failed", "status", resp.StatusCode, "body", string(body))
		}
		return fmt.Errorf("coin redemption failed: status=%d", resp.StatusCode)
	}
	return nil
}

type apiError struct {
	status int
	detail string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("status=%d detail=%s", e.status, e.detail)
}

func (s *Service) postJSON(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBase+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		rawBody, _ := io.ReadAll(resp.Body)
		var parsed struct {
			Detail string `json:"detail"`
		}
		_ = json.Unmarshal(rawBody, &parsed)
		return &apiError{status: resp.StatusCode, detail: parsed.Detail}
	}
	return nil
}
