package generation

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

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.Config{GenerationAPIURL: srv.URL}, logger.New())
}

func TestGenerateImageMultipart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate-image", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "user-1", r.FormValue("user_id"))
		assert.Equal(t, "a red fox", r.FormValue("prompt"))
		assert.Equal(t, "1:1", r.FormValue("aspect_ratio"))
		assert.Len(t, r.MultipartForm.File["files"], 2)
		assert.Empty(t, r.FormValue("from_image"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"image":"https://cdn.example/fox.png"}`))
	})

	url, err := client.GenerateImage(context.Background(), ImageRequest{
		UserID:      "user-1",
		Prompt:      "a red fox",
		AspectRatio: "1:1",
		Files: []models.Attachment{
			{Name: "a.png", ContentType: "image/png", Data: []byte("aa")},
			{Name: "b.png", ContentType: "image/png", Data: []byte("bb")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/fox.png", url)
}

func TestGenerateImageFromImageOnlyWithoutFiles(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "data:image/png;base64,aGk=", r.FormValue("from_image"))
		_, _ = w.Write([]byte(`{"image":"https://cdn.example/edited.png"}`))
	})

	url, err := client.GenerateImage(context.Background(), ImageRequest{
		UserID:    "user-1",
		Prompt:    "make it blue",
		FromImage: "data:image/png;base64,aGk=",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/edited.png", url)
}

func TestGenerateVideoStartFrame(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate-video", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Len(t, r.MultipartForm.File["file_start"], 1)
		_, _ = w.Write([]byte(`{"video":"https://cdn.example/clip.mp4"}`))
	})

	frame := models.Attachment{Name: "base.jpg", ContentType: "image/jpeg", Data: []byte("frame")}
	url, err := client.GenerateVideo(context.Background(), VideoRequest{
		UserID:     "user-1",
		Prompt:     "animate it",
		StartFrame: &frame,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/clip.mp4", url)
}

func TestGenerateImageSurfacesServerDetail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"prompt violates content policy"}`))
	})

	_, err := client.GenerateImage(context.Background(), ImageRequest{UserID: "u", Prompt: "x"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "prompt violates content policy", apiErr.Detail)
}

func TestGenerateImageMissingURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := client.GenerateImage(context.Background(), ImageRequest{UserID: "u", Prompt: "x"})
	assert.Error(t, err)
}
