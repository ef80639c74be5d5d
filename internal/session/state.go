// Package session holds the per-user UI state the browser used to keep in
// component variables: mode, staged uploads, the displayed result, the ad
// gate, and cached snapshots of remote profile/history. Nothing here
// persists; a reload re-fetches everything remote.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/lumeo-ai/studio/internal/adgate"
	"github.com/lumeo-ai/studio/internal/chat"
	"github.com/lumeo-ai/studio/internal/editor"
	"github.com/lumeo-ai/studio/internal/generation"
	"github.com/lumeo-ai/studio/internal/models"
	"github.com/lumeo-ai/studio/internal/supabase"
)

var ErrAttachmentLimit = errors.New("attachment limit reached for mode")

// Session is one user's ephemeral UI state.
type Session struct {
	mu sync.Mutex

	mode        models.Mode
	aspectRatio string
	files       []models.Attachment
	resultURL   string

	gate *adgate.Gate

	transcript *chat.Transcript
	scene      *editor.Scene

	profile *models.Profile
	history []models.Generation
}

// Transcript returns the session's assistant conversation.
func (s *Session) Transcript() *chat.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

// Scene returns the open editor scene, or nil when no canvas is open.
func (s *Session) Scene() *editor.Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scene
}

// SetScene opens a canvas, replacing any previous one.
func (s *Session) SetScene(scene *editor.Scene) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scene = scene
}

// CloseScene discards the open canvas.
func (s *Session) CloseScene() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scene = nil
}

// Gate returns the session's reveal gate.
func (s *Session) Gate() *adgate.Gate {
	return s.gate
}

// Mode returns the active mode.
func (s *Session) Mode() models.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches mode and drops staged uploads, mirroring the mode tabs.
func (s *Session) SetMode(mode models.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	s.files = nil
}

// SetAspectRatio stores a normalized aspect ratio selection.
func (s *Session) SetAspectRatio(ratio string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aspectRatio = generation.NormalizeAspectRatio(ratio)
}

// Attach stages an upload, enforcing the per-mode cap (8 for image, 1 for
// video, none in gallery).
func (s *Session) Attach(file models.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.mode {
	case models.ModeImage:
		if len(s.files) >= generation.MaxImageFiles {
			return ErrAttachmentLimit
		}
	case models.ModeVideo:
		if len(s.files) >= generation.MaxVideoFiles {
			return ErrAttachmentLimit
		}
	default:
		return ErrAttachmentLimit
	}
	s.files = append(s.files, file)
	return nil
}

// RemoveFile drops one staged upload by index; out-of-range is a no-op.
func (s *Session) RemoveFile(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.files) {
		return
	}
	s.files = append(s.files[:index], s.files[index+1:]...)
}

// Files returns a copy of the staged uploads.
func (s *Session) Files() []models.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Attachment, len(s.files))
	copy(out, s.files)
	return out
}

// ClearAll resets result, uploads and, implicitly, the editing context.
func (s *Session) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resultURL = ""
	s.files = nil
}

// AspectRatio returns the staged aspect ratio.
func (s *Session) AspectRatio() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aspectRatio == "" {
		return generation.DefaultAspectRatio
	}
	return s.aspectRatio
}

// Result returns the currently displayed result URL, if any.
func (s *Session) Result() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultURL
}

// SetResult replaces the displayed result.
func (s *Session) SetResult(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resultURL = url
}

// StageForVideo flips the session into video mode with the given start frame
// as its single upload (the "animate" action).
func (s *Session) StageForVideo(frame models.Attachment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = models.ModeVideo
	s.files = []models.Attachment{frame}
	s.resultURL = ""
}

// Input builds the ephemeral in-flight request for the flow.
func (s *Session) Input(prompt string) generation.Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	files := make([]models.Attachment, len(s.files))
	copy(files, s.files)
	ratio := s.aspectRatio
	if ratio == "" {
		ratio = generation.DefaultAspectRatio
	}
	return generation.Input{
		Mode:           s.mode,
		Prompt:         prompt,
		AspectRatio:    ratio,
		Files:          files,
		PriorResultURL: s.resultURL,
	}
}

// Profile returns the cached profile snapshot, possibly nil before the
// first refresh.
func (s *Session) Profile() *models.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// History returns the cached gallery snapshot.
func (s *Session) History() []models.Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Generation, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) setRemoteState(profile *models.Profile, history []models.Generation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if profile != nil {
		s.profile = profile
	}
	if history != nil {
		s.history = history
	}
}

// Store keeps the live sessions, one per authenticated user. It is also the
// single producer of cached remote state: every refetch funnels through
// Refresh.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	data  *supabase.Client
	log   *slog.Logger
	limit int
}

func NewStore(data *supabase.Client, log *slog.Logger, historyLimit int) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		data:     data,
		log:      log,
		limit:    historyLimit,
	}
}

// Get returns the user's session, creating a fresh one on first touch.
func (m *Store) Get(userID string) *Session {
	m.mu.RLock()
	sess, ok := m.sessions[userID]
	m.mu.RUnlock()
	if ok {
		return sess
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok = m.sessions[userID]; ok {
		return sess
	}
	sess = &Session{
		mode:        models.ModeImage,
		aspectRatio: generation.DefaultAspectRatio,
		gate:        adgate.New(),
		transcript:  chat.NewTranscript(),
	}
	m.sessions[userID] = sess
	return sess
}

// Drop removes a session on sign-out.
func (m *Store) Drop(userID string) {
	m.mu.Lock()
	if sess, ok := m.sessions[userID]; ok {
		sess.Gate().Disarm()
		delete(m.sessions, userID)
	}
	m.mu.Unlock()
}

// Refresh re-reads profile and history from the data provider and swaps the
// cached snapshots. Read failures keep the previous snapshot.
func (m *Store) Refresh(ctx context.Context, accessToken, userID string) {
	sess := m.Get(userID)

	profile, err := m.data.FetchProfile(ctx, accessToken, userID)
	if err != nil {
		if !errors.Is(err, supabase.ErrProfileNotFound) {
			m.log.Warn("profile refresh failed", "err", err)
		}
		profile = nil
	}
	history, err := m.data.FetchHistory(ctx, accessToken, userID, m.limit)
	if err != nil {
		m.log.Warn("history refresh failed", "err", err)
		history = nil
	}
	sess.setRemoteState(profile, history)
}
