package supabase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumeo-ai/studio/internal/config"
	"github.com/lumeo-ai/studio/internal/models"
	"github.com/lumeo-ai/studio/pkg/logger"
)

func newRESTClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.Config{SupabaseURL: srv.URL, SupabaseAnonKey: "anon-key"}, logger.New())
}

func TestFetchProfile(t *testing.T) {
	client := newRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/profiles", r.URL.Path)
		assert.Equal(t, "eq.user-1", r.URL.Query().Get("id"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"user-1","credits":95,"plan_tier":"free","referral_code":"FOX42","coins":3}]`))
	})

	profile, err := client.FetchProfile(context.Background(), "user-token", "user-1")
	require.NoError(t, err)
	assert.Equal(t, 95, profile.Credits)
	assert.Equal(t, models.PlanFree, profile.PlanTier)
	assert.Equal(t, "FOX42", profile.ReferralCode)
}

func TestFetchProfileNotFound(t *testing.T) {
	client := newRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := client.FetchProfile(context.Background(), "user-token", "user-1")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestFetchHistoryOrdering(t *testing.T) {
	client := newRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/generations", r.URL.Path)
		assert.Equal(t, "eq.user-1", r.URL.Query().Get("user_id"))
		assert.Equal(t, "created_at.desc", r.URL.Query().Get("order"))
		assert.Equal(t, "12", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[{"id":"g2","type":"video","url":"https://cdn.example/b.mp4"},{"id":"g1","type":"image","url":"https://cdn.example/a.png"}]`))
	})

	history, err := client.FetchHistory(context.Background(), "user-token", "user-1", 12)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.MediaVideo, history[0].Kind)
}

func TestFetchNotificationsUsesAnonKey(t *testing.T) {
	client := newRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/notifications", r.URL.Path)
		assert.Equal(t, "eq.true", r.URL.Query().Get("active"))
		assert.Equal(t, "Bearer anon-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[{"id":"n1","title":"Maintenance","message":"tonight","active":true}]`))
	})

	items, err := client.FetchNotifications(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Maintenance", items[0].Title)
}

func TestFetchProfileServerError(t *testing.T) {
	client := newRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.FetchProfile(context.Background(), "user-token", "user-1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrProfileNotFound)
}
