package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumeo-ai/studio/internal/config"
	"github.com/lumeo-ai/studio/internal/models"
	"github.com/lumeo-ai/studio/pkg/logger"
)

func newTestChat(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.Config{ChatAPIURL: srv.URL}, logger.New())
}

func TestTranscriptStartsWithGreeting(t *testing.T) {
	tr := NewTranscript()
	turns := tr.Messages()
	require.Len(t, turns, 1)
	assert.Equal(t, models.RoleModel, turns[0].Role)
	assert.NotEmpty(t, turns[0].Text)
	assert.Equal(t, DefaultPersona, tr.Persona())
}

func TestSetPersonaIgnoresUnknown(t *testing.T) {
	tr := NewTranscript()
	tr.SetPersona(PersonaSEO)
	assert.Equal(t, PersonaSEO, tr.Persona())

	tr.SetPersona("astrologo")
	assert.Equal(t, PersonaSEO, tr.Persona())
}

func TestSendAppendsBothTurns(t *testing.T) {
	client := newTestChat(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)

		// The backend validates history as {role, parts} with parts a plain
		// string; decoding into string here rejects any list-shaped parts.
		var req struct {
			History []struct {
				Role  string `json:"role"`
				Parts string `json:"parts"`
			} `json:"history"`
			Persona string `json:"persona"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, string(PersonaCopy), req.Persona)
		// Greeting + the new user turn.
		require.Len(t, req.History, 2)
		assert.Equal(t, "model", req.History[0].Role)
		assert.Equal(t, "user", req.History[1].Role)
		assert.Equal(t, "preciso de um slogan", req.History[1].Parts)

		_, _ = w.Write([]byte(`{"response":"Que tal: Voe mais alto."}`))
	})

	tr := NewTranscript()
	tr.SetPersona(PersonaCopy)

	reply, err := client.Send(context.Background(), tr, "preciso de um slogan")
	require.NoError(t, err)
	assert.Equal(t, models.RoleModel, reply.Role)
	assert.Equal(t, "Que tal: Voe mais alto.", reply.Text)
	assert.Len(t, tr.Messages(), 3)
}

func TestSendFallsBackOnBackendFailure(t *testing.T) {
	client := newTestChat(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	tr := NewTranscript()
	reply, err := client.Send(context.Background(), tr, "oi")
	require.NoError(t, err)
	assert.Equal(t, fallbackReply, reply.Text)

	// The user's turn is preserved even though the backend failed.
	turns := tr.Messages()
	require.Len(t, turns, 3)
	assert.Equal(t, "oi", turns[1].Text)
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	client := newTestChat(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend must not be called for empty messages")
	})

	_, err := client.Send(context.Background(), NewTranscript(), "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestResetRestoresGreetingAndPersona(t *testing.T) {
	tr := NewTranscript()
	tr.SetPersona(PersonaSales)
	tr.append(models.ChatMessage{Role: models.RoleUser, Text: "oi"})

	tr.Reset()
	assert.Equal(t, DefaultPersona, tr.Persona())
	assert.Len(t, tr.Messages(), 1)
}

func TestExtractPrompt(t *testing.T) {
	reply := "Aqui está a ideia.\n\nPROMPT: a golden fox logo, minimal, vector\n\nQuer ajustar algo?"
	prompt, ok := ExtractPrompt(reply)
	require.True(t, ok)
	assert.Equal(t, "a golden fox logo, minimal, vector", prompt)
	assert.True(t, HasPrompt(reply))
}

func TestExtractPromptAtEnd(t *testing.T) {
	prompt, ok := ExtractPrompt("Use este: PROMPT: neon city at night")
	require.True(t, ok)
	assert.Equal(t, "neon city at night", prompt)
}

func TestExtractPromptAbsent(t *testing.T) {
	_, ok := ExtractPrompt("sem sugestão desta vez")
	assert.False(t, ok)
	assert.False(t, HasPrompt("sem sugestão desta vez"))

	_, ok = ExtractPrompt("PROMPT:   ")
	assert.False(t, ok)
}
