package adgate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumeo-ai/studio/internal/models"
)

var (
	shortPool = []string{"https://ads.example/short-a.mp4", "https://ads.example/short-b.mp4"}
	longPool  = []string{"https://ads.example/long-a.mp4", "https://ads.example/long-b.mp4"}
)

func armedGate(t *testing.T, mode models.Mode) *Gate {
	t.Helper()
	g := New()
	g.Arm(mode, shortPool, longPool)
	t.Cleanup(g.Disarm)
	return g
}

func TestArmPicksFillerFromModePool(t *testing.T) {
	g := armedGate(t, models.ModeImage)
	snap := g.Snapshot()
	assert.Equal(t, StateWaiting, snap.State)
	assert.Contains(t, shortPool, snap.FillerURL)

	g = armedGate(t, models.ModeVideo)
	assert.Contains(t, longPool, g.Snapshot().FillerURL)
}

func TestImageResultWithheldUntilFillerEnds(t *testing.T) {
	g := armedGate(t, models.ModeImage)

	g.ResultReady("https://cdn.example/out.png")
	snap := g.Snapshot()
	assert.Equal(t, StateWaiting, snap.State)
	assert.Empty(t, snap.ResultURL, "result must not leak before the filler ends")
	assert.True(t, snap.Pending)

	g.FillerEnded()
	snap = g.Snapshot()
	assert.Equal(t, StateRevealed, snap.State)
	assert.Equal(t, "https://cdn.example/out.png", snap.ResultURL)
}

func TestFillerEndsBeforeResult(t *testing.T) {
	g := armedGate(t, models.ModeImage)

	g.FillerEnded()
	assert.Equal(t, StateWaiting, g.Snapshot().State)

	g.ResultReady("https://cdn.example/out.png")
	snap := g.Snapshot()
	assert.Equal(t, StateRevealed, snap.State)
	assert.Equal(t, "https://cdn.example/out.png", snap.ResultURL)
}

func TestSkipOnlyRevealsPendingResult(t *testing.T) {
	g := armedGate(t, models.ModeImage)

	// Nothing pending yet: skip is a no-op.
	g.Skip()
	assert.Equal(t, StateWaiting, g.Snapshot().State)

	g.ResultReady("https://cdn.example/out.png")
	g.Skip()
	snap := g.Snapshot()
	assert.Equal(t, StateRevealed, snap.State)
	assert.Equal(t, "https://cdn.example/out.png", snap.ResultURL)
}

func TestVideoResultsPassStraightThrough(t *testing.T) {
	g := armedGate(t, models.ModeVideo)

	g.ResultReady("https://cdn.example/clip.mp4")
	snap := g.Snapshot()
	assert.Equal(t, StateRevealed, snap.State)
	assert.Equal(t, "https://cdn.example/clip.mp4", snap.ResultURL)
}

func TestPlaybackFailureDegradesGating(t *testing.T) {
	g := armedGate(t, models.ModeImage)

	g.PlaybackFailed()
	g.ResultReady("https://cdn.example/out.png")
	assert.Equal(t, StateRevealed, g.Snapshot().State)
}

func TestPlaybackFailureAfterResultReveals(t *testing.T) {
	g := armedGate(t, models.ModeImage)

	g.ResultReady("https://cdn.example/out.png")
	g.PlaybackFailed()
	assert.Equal(t, StateRevealed, g.Snapshot().State)
}

func TestFailCarriesMessage(t *testing.T) {
	g := armedGate(t, models.ModeImage)

	g.Fail("upstream exploded")
	snap := g.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, "upstream exploded", snap.Error)
	assert.Empty(t, snap.ResultURL)
}

func TestRearmResetsPreviousRun(t *testing.T) {
	g := armedGate(t, models.ModeImage)
	g.ResultReady("https://cdn.example/old.png")
	g.FillerEnded()
	require.Equal(t, StateRevealed, g.Snapshot().State)

	g.Arm(models.ModeImage, shortPool, longPool)
	snap := g.Snapshot()
	assert.Equal(t, StateWaiting, snap.State)
	assert.Empty(t, snap.ResultURL)
	assert.False(t, snap.Pending)
	assert.Zero(t, snap.Progress)
}

func TestDisarmStopsRun(t *testing.T) {
	g := New()
	g.Arm(models.ModeImage, shortPool, longPool)
	g.Disarm()
	assert.Equal(t, StateIdle, g.Snapshot().State)
}
