// Package supabase is a thin REST client for the identity/data provider.
// Reads forward the signed-in user's own token so row-level security applies;
// the client never writes economy state, the backend owns every mutation.
package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lumeo-ai/studio/internal/config"
	"github.com/lumeo-ai/studio/internal/models"
)

var ErrProfileNotFound = errors.New("profile not found")

type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.SupabaseURL, "/"),
		anonKey:    cfg.SupabaseAnonKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// FetchProfile reads the profile row (credits, plan tier, referral code,
// coins) for the given user.
func (c *Client) FetchProfile(ctx context.Context, accessToken, userID string) (*models.Profile, error) {
	query := url.Values{}
	query.Set("id", "eq."+userID)
	query.Set("select", "id,credits,plan_tier,referral_code,coins")

	var rows []models.Profile
	if err := c.get(ctx, accessToken, "profiles", query, &rows); err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrProfileNotFound
	}
	return &rows[0], nil
}

// FetchHistory reads the user's most recent generations, newest first.
func (c *Client) FetchHistory(ctx context.Context, accessToken, userID string, limit int) ([]models.Generation, error) {
	if limit <= 0 {
		limit = 20
	}
	query := url.Values{}
	query.Set("user_id", "eq."+userID)
	query.Set("order", "created_at.desc")
	query.Set("limit", strconv.Itoa(limit))

	var rows []models.Generation
	if err := c.get(ctx, accessToken, "generations", query, &rows); err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	return rows, nil
}

// FetchNotifications reads the globally active announcements, newest first.
// The anon key is enough; the table is world-readable.
func (c *Client) FetchNotifications(ctx context.Context) ([]models.Notification, error) {
	query := url.Values{}
	query.Set("active", "eq.true")
	query.Set("order", "created_at.desc")

	var rows []models.Notification
	if err := c.get(ctx, "", "notifications", query, &rows); err != nil {
		return nil, fmt.Errorf("fetch notifications: %w", err)
	}
	return rows, nil
}

func (c *Client) get(ctx context.Context, accessToken, table string, query url.Values, out any) error {
	endpoint := c.baseURL + "/rest/v1/" + url.PathEscape(table)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	if accessToken == "" {
		accessToken = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", table, err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		if c.log != nil {
			c.log.Error("supabase read failed", "table", table, "status", resp.StatusCode, "body", truncateBody(rawBody))
		}
		return fmt.Errorf("supabase error: status=%d table=%s body=%s", resp.StatusCode, table, truncateBody(rawBody))
	}

	if err := json.Unmarshal(rawBody, out); err != nil {
		return fmt.Errorf("decode %s response: %w", table, err)
	}
	return nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
