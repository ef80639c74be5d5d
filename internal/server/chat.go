package server

import (
	"errors"
	"net/http"

	"github.com/lumeo-ai/studio/internal/chat"
	"github.com/lumeo-ai/studio/internal/supabase"
)

// handleChat appends a turn to the session transcript. When the reply
// embeds a generation-ready prompt it is extracted alongside.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	user := supabase.UserFromContext(r.Context())
	sess := s.sessions.Get(user.ID)

	var req struct {
		Message string `json:"message"`
		Persona string `json:"persona"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, "invalid json")
		return
	}

	transcript := sess.Transcript()
	if req.Persona != "" {
		if !chat.ValidPersona(chat.Persona(req.Persona)) {
			s.badRequest(w, "unknown persona")
			return
		}
		transcript.SetPersona(chat.Persona(req.Persona))
	}

	reply, err := s.chat.Send(r.Context(), transcript, req.Message)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) {
			s.badRequest(w, "message is required")
			return
		}
		s.internalError(w, err)
		return
	}

	resp := map[string]any{
		"reply":   reply,
		"persona": transcript.Persona(),
	}
	if prompt, ok := chat.ExtractPrompt(reply.Text); ok {
		resp["prompt"] = prompt
	}
	s.writeJSON(w, http.StatusOK, resp)
}
