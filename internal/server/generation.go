package server

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lumeo-ai/studio/internal/adgate"
	"github.com/lumeo-ai/studio/internal/generation"
	"github.com/lumeo-ai/studio/internal/models"
	"github.com/lumeo-ai/studio/internal/session"
	"github.com/lumeo-ai/studio/internal/supabase"
)

const maxUploadBytes = 32 << 20

// handleGenerate stages the submission, assesses cost against the remote
// balance, arms the reveal gate, and dispatches the generation in the
// background. The response carries the filler to play, not the result.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	user := supabase.UserFromContext(r.Context())
	token := supabase.TokenFromContext(r.Context())
	sess := s.sessions.Get(user.ID)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.badRequest(w, "multipart form required")
		return
	}

	if raw := r.FormValue("mode"); raw != "" {
		mode := models.Mode(raw)
		if mode != models.ModeImage && mode != models.ModeVideo {
			s.badRequest(w, "mode must be image or video")
			return
		}
		if mode != sess.Mode() {
			sess.SetMode(mode)
		}
	}
	if ratio := r.FormValue("aspect_ratio"); ratio != "" {
		sess.SetAspectRatio(ratio)
	}

	if form := r.MultipartForm; form != nil {
		for _, header := range form.File["files"] {
			attachment, err := readAttachment(header)
			if err != nil {
				s.badRequest(w, "unreadable upload: "+header.Filename)
				return
			}
			if err := sess.Attach(attachment); err != nil {
				if errors.Is(err, session.ErrAttachmentLimit) {
					s.badRequest(w, "too many attachments for this mode")
					return
				}
				s.internalError(w, err)
				return
			}
		}
	}

	profile := sess.Profile()
	if profile == nil {
		s.sessions.Refresh(r.Context(), token, user.ID)
		profile = sess.Profile()
	}
	balance := 0
	if profile != nil {
		balance = profile.Credits
	}

	input := sess.Input(r.FormValue("prompt"))
	sub, err := s.flow.Assess(input, balance)
	if err != nil {
		switch {
		case errors.Is(err, generation.ErrInsufficientCredits):
			s.writeJSON(w, http.StatusPaymentRequired, map[string]any{
				"error":    "not enough credits",
				"cost":     sub.Cost,
				"balance":  balance,
				"redirect": "/store",
			})
		case errors.Is(err, generation.ErrEmptyPrompt):
			s.badRequest(w, "prompt is required")
		case errors.Is(err, generation.ErrTooManyFiles):
			s.badRequest(w, "too many attachments for this mode")
		default:
			s.badRequest(w, err.Error())
		}
		return
	}

	gate := sess.Gate()
	gate.Arm(input.Mode, s.cfg.ShortAdURLs, s.cfg.LongAdURLs)

	go s.runGeneration(token, user.ID, sess, input, sub)

	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"cost":            sub.Cost,
		"editing_context": sub.EditingContext,
		"gate":            gate.Snapshot(),
	})
}

// runGeneration executes the dispatched request outside the HTTP request
// lifetime. Failure leaves the previously displayed result untouched.
func (s *Server) runGeneration(token, userID string, sess *session.Session, input generation.Input, sub generation.Submission) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GenerationTimeout)
	defer cancel()

	url, err := s.flow.Execute(ctx, token, userID, input, sub)
	if err != nil {
		s.log.Error("generation failed", "user", userID, "mode", input.Mode, "err", err)
		sess.Gate().Fail(generation.UserMessage(err))
		return
	}

	// Staged uploads stay until the user removes them, switches mode, or
	// clears the workspace; only an explicit clear ends their lifetime.
	sess.SetResult(url)
	sess.Gate().ResultReady(url)
}

func (s *Server) handleGateStatus(w http.ResponseWriter, r *http.Request) {
	s.writeGate(w, r, func(g *adgate.Gate) {})
}

func (s *Server) handleGateSkip(w http.ResponseWriter, r *http.Request) {
	s.writeGate(w, r, func(g *adgate.Gate) { g.Skip() })
}

func (s *Server) handleGateAdEnded(w http.ResponseWriter, r *http.Request) {
	s.writeGate(w, r, func(g *adgate.Gate) { g.FillerEnded() })
}

func (s *Server) handleGateAdFailed(w http.ResponseWriter, r *http.Request) {
	s.writeGate(w, r, func(g *adgate.Gate) { g.PlaybackFailed() })
}

func (s *Server) writeGate(w http.ResponseWriter, r *http.Request, event func(*adgate.Gate)) {
	user := supabase.UserFromContext(r.Context())
	gate := s.sessions.Get(user.ID).Gate()
	event(gate)
	s.writeJSON(w, http.StatusOK, gate.Snapshot())
}

// handleRemoveFile drops one staged attachment by its position in the
// current list. Out-of-range indexes are ignored.
func (s *Server) handleRemoveFile(w http.ResponseWriter, r *http.Request) {
	user := supabase.UserFromContext(r.Context())
	sess := s.sessions.Get(user.ID)

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.badRequest(w, "index must be a number")
		return
	}
	sess.RemoveFile(index)
	s.writeJSON(w, http.StatusOK, map[string]any{"files": len(sess.Files())})
}

// handleClearWorkspace resets the displayed result and staged uploads,
// which also ends any editing context.
func (s *Server) handleClearWorkspace(w http.ResponseWriter, r *http.Request) {
	user := supabase.UserFromContext(r.Context())
	sess := s.sessions.Get(user.ID)
	sess.ClearAll()
	s.writeJSON(w, http.StatusOK, map[string]any{"result_url": "", "files": 0})
}

// handleAnimate turns a prior image result into the start frame of a video
// generation: the session flips to video mode holding exactly that frame.
func (s *Server) handleAnimate(w http.ResponseWriter, r *http.Request) {
	user := supabase.UserFromContext(r.Context())
	sess := s.sessions.Get(user.ID)

	var req struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.badRequest(w, "invalid json")
		return
	}
	url := strings.TrimSpace(req.URL)
	if url == "" {
		url = sess.Result()
	}
	if url == "" {
		s.badRequest(w, "no image to animate")
		return
	}

	frame, err := s.flow.FetchStartFrame(r.Context(), url)
	if err != nil {
		s.log.Error("animate source fetch failed", "err", err)
		s.errorJSON(w, http.StatusBadGateway, "could not load the image to animate")
		return
	}

	sess.StageForVideo(*frame)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"mode":  models.ModeVideo,
		"files": 1,
	})
}

func readAttachment(header *multipart.FileHeader) (models.Attachment, error) {
	f, err := header.Open()
	if err != nil {
		return models.Attachment{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return models.Attachment{}, err
	}
	return models.Attachment{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
