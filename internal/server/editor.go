package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/lumeo-ai/studio/internal/editor"
	"github.com/lumeo-ai/studio/internal/supabase"
)

// handleEditorOpen creates a canvas for the session, optionally loading a
// result or gallery image as the background.
func (s *Server) handleEditorOpen(w http.ResponseWriter, r *http.Request) {
	user := supabase.UserFromContext(r.Context())
	sess := s.sessions.Get(user.ID)

	var req struct {
		URL string `json:"url"`
	}
	// An empty body opens a blank canvas.
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.badRequest(w, "invalid json")
		return
	}

	scene := editor.New(s.cfg.EditorFontDir, nil)
	if url := strings.TrimSpace(req.URL); url != "" {
		attachment, err := s.flow.FetchStartFrame(r.Context(), url)
		if err != nil {
			s.log.Error("editor background fetch failed", "err", err)
			s.errorJSON(w, http.StatusBadGateway, "could not load the image")
			return
		}
		scene, err = editor.NewFromImage(s.cfg.EditorFontDir, attachment.Data)
		if err != nil {
			s.badRequest(w, "unsupported image format")
			return
		}
	}
	sess.SetScene(scene)

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"width":  editor.CanvasWidth,
		"height": editor.CanvasHeight,
		"fonts":  editor.Fonts,
	})
}

func (s *Server) handleEditorClose(w http.ResponseWriter, r *http.Request) {
	user := supabase.UserFromContext(r.Context())
	s.sessions.Get(user.ID).CloseScene()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) scene(w http.ResponseWriter, r *http.Request) *editor.Scene {
	user := supabase.UserFromContext(r.Context())
	scene := s.sessions.Get(user.ID).Scene()
	if scene == nil {
		s.errorJSON(w, http.StatusConflict, "no canvas open")
	}
	return scene
}

// handleEditorAddObject appends a text, rect, circle, or sticker object. The
// new object becomes the selection.
func (s *Server) handleEditorAddObject(w http.ResponseWriter, r *http.Request) {
	scene := s.scene(w, r)
	if scene == nil {
		return
	}

	var req struct {
		Kind  string `json:"kind"`
		Text  string `json:"text"`
		Glyph string `json:"glyph"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, "invalid json")
		return
	}

	var obj *editor.Object
	switch editor.Kind(req.Kind) {
	case editor.KindText:
		text := req.Text
		if text == "" {
			text = "Seu texto"
		}
		obj = scene.AddText(text)
	case editor.KindRect:
		obj = scene.AddRect()
	case editor.KindCircle:
		obj = scene.AddCircle()
	case editor.KindSticker:
		if req.Glyph == "" {
			s.badRequest(w, "glyph is required for stickers")
			return
		}
		obj = scene.AddSticker(req.Glyph)
	default:
		s.badRequest(w, "unknown object kind")
		return
	}

	s.writeJSON(w, http.StatusCreated, obj)
}

// handleEditorUpdateSelection mutates the selected object. An id in the
// body re-selects first, so a single call can target any object.
func (s *Server) handleEditorUpdateSelection(w http.ResponseWriter, r *http.Request) {
	scene := s.scene(w, r)
	if scene == nil {
		return
	}

	var req struct {
		ID       string   `json:"id"`
		Fill     string   `json:"fill"`
		Font     string   `json:"font"`
		FontSize *float64 `json:"font_size"`
		X        *float64 `json:"x"`
		Y        *float64 `json:"y"`
		Text     *string  `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, "invalid json")
		return
	}

	if req.ID != "" {
		if err := scene.Select(req.ID); err != nil {
			s.badRequest(w, "unknown object")
			return
		}
	}

	apply := func(err error) bool {
		if err == nil {
			return true
		}
		if errors.Is(err, editor.ErrNoSelection) {
			s.errorJSON(w, http.StatusConflict, "nothing selected")
		} else {
			s.badRequest(w, err.Error())
		}
		return false
	}

	if req.Fill != "" && !apply(scene.SetFill(req.Fill)) {
		return
	}
	if req.Font != "" && !apply(scene.SetFont(req.Font)) {
		return
	}
	if req.FontSize != nil && !apply(scene.SetFontSize(*req.FontSize)) {
		return
	}
	if req.X != nil && req.Y != nil && !apply(scene.Move(*req.X, *req.Y)) {
		return
	}
	if req.Text != nil {
		if !apply(scene.BeginTextEdit()) {
			return
		}
		scene.EndTextEdit(*req.Text)
	}

	obj, ok := scene.Selected()
	if !ok {
		s.errorJSON(w, http.StatusConflict, "nothing selected")
		return
	}
	s.writeJSON(w, http.StatusOK, obj)
}

func (s *Server) handleEditorBringToFront(w http.ResponseWriter, r *http.Request) {
	scene := s.scene(w, r)
	if scene == nil {
		return
	}
	if err := scene.BringToFront(); err != nil {
		s.errorJSON(w, http.StatusConflict, "nothing selected")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"objects": scene.Objects()})
}

// handleEditorDeleteSelection removes the selected object. During inline
// text editing the delete is ignored, matching keyboard semantics.
func (s *Server) handleEditorDeleteSelection(w http.ResponseWriter, r *http.Request) {
	scene := s.scene(w, r)
	if scene == nil {
		return
	}
	scene.DeleteSelected()
	s.writeJSON(w, http.StatusOK, map[string]any{"objects": scene.Objects()})
}

// handleEditorExport rasterizes the canvas. With S3 configured the PNG is
// uploaded and its public URL returned; otherwise the bytes stream back
// directly.
func (s *Server) handleEditorExport(w http.ResponseWriter, r *http.Request) {
	scene := s.scene(w, r)
	if scene == nil {
		return
	}

	data, err := scene.Export()
	if err != nil {
		s.internalError(w, err)
		return
	}

	if s.uploader != nil {
		url, err := s.uploader.Upload(r.Context(), data, "image/png")
		if err != nil {
			s.internalError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"url": url})
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", `attachment; filename="arte-lumeo.png"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
