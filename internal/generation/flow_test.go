package generation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumeo-ai/studio/internal/config"
	"github.com/lumeo-ai/studio/internal/models"
	"github.com/lumeo-ai/studio/pkg/logger"
)

type stubRefresher struct {
	mu    sync.Mutex
	calls int
	done  chan struct{}
}

func newStubRefresher() *stubRefresher {
	return &stubRefresher{done: make(chan struct{}, 1)}
}

func (r *stubRefresher) Refresh(ctx context.Context, accessToken, userID string) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	select {
	case r.done <- struct{}{}:
	default:
	}
}

func (r *stubRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newTestFlow(t *testing.T, handler http.HandlerFunc) (*Flow, *stubRefresher, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	refresher := newStubRefresher()
	api := NewClient(config.Config{GenerationAPIURL: srv.URL}, logger.New())
	return NewFlow(logger.New(), api, refresher), refresher, srv
}

func TestAssessRejections(t *testing.T) {
	flow, _, _ := newTestFlow(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := flow.Assess(Input{Mode: models.ModeGallery, Prompt: "x"}, 100)
	assert.ErrorIs(t, err, ErrInvalidMode)

	_, err = flow.Assess(Input{Mode: models.ModeImage, Prompt: "   "}, 100)
	assert.ErrorIs(t, err, ErrEmptyPrompt)

	files := make([]models.Attachment, MaxImageFiles+1)
	_, err = flow.Assess(Input{Mode: models.ModeImage, Prompt: "x", Files: files}, 100)
	assert.ErrorIs(t, err, ErrTooManyFiles)

	_, err = flow.Assess(Input{Mode: models.ModeVideo, Prompt: "x", Files: files[:2]}, 100)
	assert.ErrorIs(t, err, ErrTooManyFiles)
}

func TestAssessBalanceBoundary(t *testing.T) {
	flow, _, _ := newTestFlow(t, func(w http.ResponseWriter, r *http.Request) {})

	input := Input{Mode: models.ModeImage, Prompt: "x"}

	sub, err := flow.Assess(input, CostImageSingle)
	require.NoError(t, err)
	assert.Equal(t, CostImageSingle, sub.Cost)

	sub, err = flow.Assess(input, CostImageSingle-1)
	assert.ErrorIs(t, err, ErrInsufficientCredits)
	assert.Equal(t, CostImageSingle, sub.Cost)
}

func TestAssessEditingContextCost(t *testing.T) {
	flow, _, _ := newTestFlow(t, func(w http.ResponseWriter, r *http.Request) {})

	sub, err := flow.Assess(Input{
		Mode:           models.ModeImage,
		Prompt:         "make it blue",
		PriorResultURL: "https://cdn.example/prev.png",
	}, 100)
	require.NoError(t, err)
	assert.True(t, sub.EditingContext)
	assert.Equal(t, CostImageMulti, sub.Cost)
}

func TestExecuteRewritesPromptAndSendsBase(t *testing.T) {
	var gotPrompt, gotFromImage string
	flow, refresher, srv := newTestFlow(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/base.png" {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("base-bytes"))
			return
		}
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotPrompt = r.FormValue("prompt")
		gotFromImage = r.FormValue("from_image")
		_, _ = w.Write([]byte(`{"image":"https://cdn.example/out.png"}`))
	})

	input := Input{
		Mode:           models.ModeImage,
		Prompt:         "make it blue",
		AspectRatio:    "1:1",
		PriorResultURL: srv.URL + "/base.png",
	}
	sub, err := flow.Assess(input, 100)
	require.NoError(t, err)
	require.True(t, sub.EditingContext)

	url, err := flow.Execute(context.Background(), "token", "user-1", input, sub)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/out.png", url)
	assert.Equal(t, "EDIT IMAGE: make it blue", gotPrompt)
	assert.True(t, strings.HasPrefix(gotFromImage, "data:image/png;base64,"))

	select {
	case <-refresher.done:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh not triggered after successful dispatch")
	}
	assert.Equal(t, 1, refresher.count())
}

func TestExecuteDegradesWhenBaseUnavailable(t *testing.T) {
	flow, _, srv := newTestFlow(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone.png" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		require.NoError(t, r.ParseMultipartForm(1<<20))
		// The request still goes out as a fresh generation.
		assert.Empty(t, r.FormValue("from_image"))
		_, _ = w.Write([]byte(`{"image":"https://cdn.example/out.png"}`))
	})

	input := Input{
		Mode:           models.ModeImage,
		Prompt:         "make it blue",
		PriorResultURL: srv.URL + "/gone.png",
	}
	sub, err := flow.Assess(input, 100)
	require.NoError(t, err)

	url, err := flow.Execute(context.Background(), "token", "user-1", input, sub)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/out.png", url)
}

func TestExecuteFailureSkipsRefresh(t *testing.T) {
	flow, refresher, _ := newTestFlow(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"detail":"upstream exploded"}`))
	})

	input := Input{Mode: models.ModeImage, Prompt: "x"}
	sub, err := flow.Assess(input, 100)
	require.NoError(t, err)

	_, err = flow.Execute(context.Background(), "token", "user-1", input, sub)
	require.Error(t, err)
	assert.Equal(t, "upstream exploded", UserMessage(err))
	assert.Equal(t, 0, refresher.count())
}

func TestUserMessageFallback(t *testing.T) {
	assert.Equal(t, "Something went wrong while processing your request.",
		UserMessage(context.DeadlineExceeded))
	assert.Equal(t, "quota exceeded", UserMessage(&APIError{Status: 429, Detail: "quota exceeded"}))
}

func TestFetchStartFrame(t *testing.T) {
	flow, _, srv := newTestFlow(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-bytes"))
	})

	frame, err := flow.FetchStartFrame(context.Background(), srv.URL+"/img.jpg")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", frame.ContentType)
	assert.Equal(t, []byte("jpeg-bytes"), frame.Data)
}
