// Package adgate withholds finished image results behind a filler video.
// Two completion signals race: the filler reaching its natural end and the
// backend result arriving. The result is revealed at whichever happens
// later, or immediately on an explicit skip.
package adgate

import (
	"math/rand"
	"sync"
	"time"

	"github.com/lumeo-ai/studio/internal/models"
)

type State string

const (
	StateIdle     State = "idle"
	StateWaiting  State = "waiting"
	StateRevealed State = "revealed"
	StateFailed   State = "failed"
)

// Progress ticks every 100ms by half a percent and parks below completion:
// it models "still working", not a real estimate.
const (
	tickInterval = 100 * time.Millisecond
	tickStep     = 0.5
	progressCap  = 95.0
)

// Gate is the reveal state machine for one in-flight generation. A session
// owns at most one; re-arming replaces the previous run.
type Gate struct {
	mu sync.Mutex

	state       State
	fillerURL   string
	progress    float64
	passthrough bool // video mode: results bypass gating
	degraded    bool // filler playback failed: reveal on arrival
	fillerDone  bool
	pendingURL  string
	revealedURL string
	failMsg     string

	stopTicker chan struct{}
}

func New() *Gate {
	return &Gate{state: StateIdle}
}

// Arm starts a run: picks a filler at random from the pool for the mode and
// starts the progress ticker. Video results are not gated; the filler still
// plays but the result passes straight through.
func (g *Gate) Arm(mode models.Mode, shortPool, longPool []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.stopTickerLocked()

	pool := shortPool
	if mode == models.ModeVideo {
		pool = longPool
	}
	g.fillerURL = ""
	if len(pool) > 0 {
		g.fillerURL = pool[rand.Intn(len(pool))]
	}

	g.state = StateWaiting
	g.progress = 0
	g.passthrough = mode == models.ModeVideo
	g.degraded = false
	g.fillerDone = false
	g.pendingURL = ""
	g.revealedURL = ""
	g.failMsg = ""

	stop := make(chan struct{})
	g.stopTicker = stop
	go g.run(stop)
}

func (g *Gate) run(stop chan struct{}) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			g.tick()
		}
	}
}

func (g *Gate) tick() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateWaiting {
		return
	}
	if g.progress < progressCap {
		g.progress += tickStep
	}
}

// ResultReady stages the backend result. It reveals immediately when gating
// does not apply (video, degraded playback, filler already over); otherwise
// the result stays pending until the filler ends or the user skips.
func (g *Gate) ResultReady(url string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateWaiting {
		return
	}
	if g.passthrough || g.degraded || g.fillerDone {
		g.revealLocked(url)
		return
	}
	g.pendingURL = url
}

// FillerEnded marks the filler's natural end and reveals any pending result.
// With no result yet the filler is expected to hold until one arrives.
func (g *Gate) FillerEnded() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateWaiting {
		return
	}
	g.fillerDone = true
	if g.pendingURL != "" {
		g.revealLocked(g.pendingURL)
	}
}

// Skip short-circuits the gate: an already pending result is revealed at
// once; with nothing pending the skip has no effect.
func (g *Gate) Skip() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateWaiting || g.pendingURL == "" {
		return
	}
	g.revealLocked(g.pendingURL)
}

// PlaybackFailed records that the filler cannot play (autoplay blocked past
// recovery, media error). The filler-end requirement is waived so the result
// reveals on arrival.
func (g *Gate) PlaybackFailed() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateWaiting {
		return
	}
	g.degraded = true
	if g.pendingURL != "" {
		g.revealLocked(g.pendingURL)
	}
}

// Fail terminates the run after a generation error. The caller restores the
// previously displayed result; the gate only clears the loading state.
func (g *Gate) Fail(message string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateWaiting {
		return
	}
	g.state = StateFailed
	g.failMsg = message
	g.pendingURL = ""
	g.stopTickerLocked()
}

// Disarm resets the gate to idle, stopping the ticker.
func (g *Gate) Disarm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = StateIdle
	g.pendingURL = ""
	g.stopTickerLocked()
}

func (g *Gate) revealLocked(url string) {
	g.state = StateRevealed
	g.revealedURL = url
	g.pendingURL = ""
	g.stopTickerLocked()
}

func (g *Gate) stopTickerLocked() {
	if g.stopTicker != nil {
		close(g.stopTicker)
		g.stopTicker = nil
	}
}

// Snapshot is the externally visible gate status.
type Snapshot struct {
	State     State   `json:"state"`
	Progress  float64 `json:"progress"`
	FillerURL string  `json:"filler_url,omitempty"`
	ResultURL string  `json:"result_url,omitempty"`
	Pending   bool    `json:"pending"`
	Error     string  `json:"error,omitempty"`
}

// Snapshot reports the current status. The result URL is only present once
// revealed; a pending-but-withheld result surfaces only as the Pending flag.
func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Snapshot{
		State:     g.state,
		Progress:  g.progress,
		FillerURL: g.fillerURL,
		ResultURL: g.revealedURL,
		Pending:   g.pendingURL != "",
		Error:     g.failMsg,
	}
}
